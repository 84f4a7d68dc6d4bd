// Package tally counts the messages seen by a pipeline worker.
package tally

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
)

// Counts is a snapshot of a Tally.
type Counts struct {
	// Data is datagrams per channel.  Malformed datagrams are counted under "".
	Data    map[string]int
	Control map[codec.Kind]int
}

// Datagrams returns the total over all channels.
func (c Counts) Datagrams() int {
	var n int
	for _, v := range c.Data {
		n += v
	}
	return n
}

func (c Counts) String() string {
	var ch []string
	for k := range c.Data {
		ch = append(ch, k)
	}
	sort.Strings(ch)

	var b strings.Builder
	for _, k := range ch {
		fmt.Fprintf(&b, "%s=%d ", k, c.Data[k])
	}
	for _, k := range []codec.Kind{codec.KindAlarm, codec.KindReset, codec.KindImgPath, codec.KindProcess} {
		fmt.Fprintf(&b, "%s=%d ", k, c.Control[k])
	}

	return strings.TrimSpace(b.String())
}

// Tally is a pipeline.Handler.  It is safe to read Counts while the pipeline runs.
type Tally struct {
	mu      sync.Mutex
	data    map[string]int
	control map[codec.Kind]int
}

func New() *Tally {
	return &Tally{
		data:    make(map[string]int),
		control: make(map[codec.Kind]int),
	}
}

func (t *Tally) Handle(m codec.Message, _ *pipeline.Flags) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch v := m.(type) {
	case codec.Datagram:
		c, _ := codec.PeekChannel(v.Raw)
		t.data[c]++
	default:
		t.control[m.Kind()]++
	}

	return nil
}

func (t *Tally) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := Counts{
		Data:    make(map[string]int, len(t.data)),
		Control: make(map[codec.Kind]int, len(t.control)),
	}
	for k, v := range t.data {
		c.Data[k] = v
	}
	for k, v := range t.control {
		c.Control[k] = v
	}

	return c
}

func (t *Tally) Close() error {
	log.Printf("tally: %s", t.Counts())
	return nil
}
