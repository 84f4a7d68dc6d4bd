// Package trace is for rolling per-channel time series with masked gaps.
package trace

import (
	"math"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
)

// Units of raw data.
const Counts = "counts"

// Trace is a regularly sampled time series.  Mask is nil when there are no gaps,
// otherwise a true entry marks a missing sample.
type Trace struct {
	Network, Station, Location, Channel string
	SampleRate                          float64
	Start                               time.Time
	Data                                []float64
	Mask                                []bool
	Units                               string
}

// FromPacket builds a trace from a decoded datagram.
func FromPacket(network, station string, sps float64, p codec.Packet) *Trace {
	t := &Trace{
		Network:    network,
		Station:    station,
		Location:   "00",
		Channel:    p.Channel,
		SampleRate: sps,
		Start:      p.Time,
		Data:       make([]float64, len(p.Samples)),
		Units:      Counts,
	}
	for i, s := range p.Samples {
		t.Data[i] = float64(s)
	}
	return t
}

// Len is the number of samples including masked ones.
func (t *Trace) Len() int {
	return len(t.Data)
}

// Delta is the sample interval.
func (t *Trace) Delta() time.Duration {
	return time.Duration(float64(time.Second) / t.SampleRate)
}

// TimeAt returns the time of sample i.
func (t *Trace) TimeAt(i int) time.Time {
	return t.Start.Add(time.Duration(math.Round(float64(i) * float64(time.Second) / t.SampleRate)))
}

// End returns the time of the last sample, start + (n-1)/sps.
func (t *Trace) End() time.Time {
	if len(t.Data) == 0 {
		return t.Start
	}
	return t.TimeAt(len(t.Data) - 1)
}

// offset returns the position of at relative to the first sample in samples.
func (t *Trace) offset(at time.Time) float64 {
	return at.Sub(t.Start).Seconds() * t.SampleRate
}

// Masked reports whether the trace holds any gaps.
func (t *Trace) Masked() bool {
	for _, m := range t.Mask {
		if m {
			return true
		}
	}
	return false
}

// IsMasked reports whether sample i is missing.
func (t *Trace) IsMasked(i int) bool {
	return t.Mask != nil && t.Mask[i]
}

// Copy returns a deep copy of t.
func (t *Trace) Copy() *Trace {
	c := *t
	c.Data = append([]float64(nil), t.Data...)
	if t.Mask != nil {
		c.Mask = append([]bool(nil), t.Mask...)
	}
	return &c
}

// Fill controls how masked samples are treated when dense data is needed.
type Fill int

const (
	// FillNone preserves the mask.
	FillNone Fill = iota
	// FillLatest repeats the last unmasked sample.
	FillLatest
)

// Filled returns a copy of t.  With FillLatest masked samples take the value of
// the previous unmasked sample (or the first unmasked sample for leading gaps) and
// the mask is cleared.
func (t *Trace) Filled(f Fill) *Trace {
	c := t.Copy()
	if f == FillNone || c.Mask == nil {
		return c
	}

	last, ok := 0.0, false
	for i := range c.Data {
		if !c.Mask[i] {
			last, ok = c.Data[i], true
			break
		}
	}
	if !ok {
		last = 0
	}

	for i := range c.Data {
		if c.Mask[i] {
			c.Data[i] = last
			continue
		}
		last = c.Data[i]
	}
	c.Mask = nil

	return c
}

// Runs splits t into traces of contiguous unmasked samples.
func (t *Trace) Runs() []*Trace {
	if !t.Masked() {
		if len(t.Data) == 0 {
			return nil
		}
		return []*Trace{t.Copy()}
	}

	var runs []*Trace
	start := -1
	for i := 0; i <= len(t.Data); i++ {
		gap := i == len(t.Data) || t.Mask[i]
		switch {
		case !gap && start < 0:
			start = i
		case gap && start >= 0:
			runs = append(runs, t.sub(start, i))
			start = -1
		}
	}

	return runs
}

// sub returns a copy of samples [i, j).
func (t *Trace) sub(i, j int) *Trace {
	c := *t
	c.Start = t.TimeAt(i)
	c.Data = append([]float64(nil), t.Data[i:j]...)
	c.Mask = nil
	if t.Mask != nil {
		c.Mask = append([]bool(nil), t.Mask[i:j]...)
		if !c.Masked() {
			c.Mask = nil
		}
	}
	return &c
}

// Int32s returns the samples rounded to integers.  Masked samples are zero.
func (t *Trace) Int32s() []int32 {
	d := make([]int32, len(t.Data))
	for i, v := range t.Data {
		if t.IsMasked(i) {
			continue
		}
		d[i] = int32(math.Round(v))
	}
	return d
}
