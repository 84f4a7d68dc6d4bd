package main

import (
	"log"
)

var Prefix string

func init() {
	log.SetFlags(log.LstdFlags)
	if Prefix != "" {
		log.SetPrefix(Prefix + " ")
	}
}
