// Package pipeline is the packet driven fan out at the centre of rsudp: a UDP producer
// that locks onto one Shake, a broadcaster that copies every message to each worker
// queue in order, and the consumer loop the workers run in.
package pipeline

import (
	"math"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/inventory"
)

// Network is the FDSN network code of every Raspberry Shake.
const Network = "AM"

// Environment describes the stream found by the producer at startup.  It is read only
// once the pipeline is running.
type Environment struct {
	Network, Station string
	Port             int
	// Tf is the transmission period in milliseconds.
	Tf         float64
	SampleRate int
	Channels   []string
	// Inventory is nil when the station response could not be fetched.
	Inventory *inventory.Inventory
	OutputDir string
	Debug     bool
}

// Packets returns how many datagrams for one channel span d.
func (e *Environment) Packets(d time.Duration) int {
	if e.Tf <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds() * 1000 / e.Tf))
}

// Select returns the stream channels matched by list, where "all" matches every channel
// and other entries match by suffix (e.g. HZ).  Entries that can match no known channel
// tag are returned in unknown.
func (e *Environment) Select(list []string) (selected, unknown []string) {
	want := make(map[string]bool)

	for _, f := range list {
		var known bool
		for _, c := range codec.Channels {
			if codec.Match(f, c) {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, f)
			continue
		}

		for _, c := range e.Channels {
			if codec.Match(f, c) {
				want[c] = true
			}
		}
	}

	for _, c := range e.Channels {
		if want[c] {
			selected = append(selected, c)
		}
	}

	return selected, unknown
}
