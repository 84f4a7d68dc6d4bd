// Package printer writes raw datagrams and control messages to stdout.
package printer

import (
	"io"
	"log"
	"os"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/fatih/color"
)

var (
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

// Printer is a pipeline.Handler.
type Printer struct {
	out *log.Logger
}

// New returns a Printer writing to stdout.
func New() *Printer {
	return NewTo(os.Stdout)
}

// NewTo returns a Printer writing to w.  Lines carry no prefix or timestamp.
func NewTo(w io.Writer) *Printer {
	return &Printer{out: log.New(w, "", 0)}
}

func (p *Printer) Handle(m codec.Message, _ *pipeline.Flags) error {
	switch v := m.(type) {
	case codec.Datagram:
		c, _ := codec.PeekChannel(v.Raw)
		p.out.Printf("%s %s", cyan.Sprintf("%-3s", c), v.Raw)
	case codec.Alarm, codec.Process:
		p.out.Print(red.Sprintf("%s", codec.Encode(m)))
	default:
		p.out.Print(yellow.Sprintf("%s", codec.Encode(m)))
	}

	return nil
}
