package trace

import (
	"math"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
)

// MaxGap is the longest gap merged as masked samples.  Longer gaps start a new segment.
const MaxGap = 30 * time.Second

// epsilon absorbs floating point noise when converting times to sample positions.
const epsilon = 1e-6

// Stream holds sorted, disjoint trace segments per channel.
// It is not safe for concurrent use.
type Stream struct {
	segments map[string][]*Trace
}

func NewStream() *Stream {
	return &Stream{segments: make(map[string][]*Trace)}
}

// AppendPacket merges a decoded datagram into the stream.
func (s *Stream) AppendPacket(network, station string, sps float64, p codec.Packet) {
	s.Append(FromPacket(network, station, sps, p))
}

// Append merges t into the segments for its channel.  Overlapping samples are taken
// from the data already held, gaps shorter than MaxGap are masked.
func (s *Stream) Append(t *Trace) {
	if t == nil || len(t.Data) == 0 || t.SampleRate <= 0 {
		return
	}

	segs := s.segments[t.Channel]

	// common case, t continues the last segment.
	if n := len(segs); n > 0 && near(segs[n-1], t) && !t.Start.Before(segs[n-1].Start) {
		segs[n-1] = merge(segs[n-1], t)
		if n == 1 || !near(segs[n-2], segs[n-1]) {
			return
		}
	}

	merged := t.Copy()
	var keep []*Trace

	for _, seg := range segs {
		if near(seg, merged) {
			merged = merge(seg, merged)
			continue
		}
		keep = append(keep, seg)
	}

	s.segments[t.Channel] = insert(keep, merged)
}

// insert adds t into segs keeping them sorted by start time.
func insert(segs []*Trace, t *Trace) []*Trace {
	i := len(segs)
	for i > 0 && segs[i-1].Start.After(t.Start) {
		i--
	}
	segs = append(segs, nil)
	copy(segs[i+1:], segs[i:])
	segs[i] = t
	return segs
}

// near reports whether a and b overlap or are separated by less than MaxGap.
func near(a, b *Trace) bool {
	return b.Start.Sub(a.End()) < MaxGap && a.Start.Sub(b.End()) < MaxGap
}

// merge combines b into a with a's samples taking precedence.  Masked samples in a
// are filled from b.  When b starts at or after the end of a, a is extended in place.
func merge(a, b *Trace) *Trace {
	k := int(math.Round(a.offset(b.Start)))

	if k >= len(a.Data) {
		gap := k - len(a.Data)
		if a.Mask == nil && (gap > 0 || b.Masked()) {
			a.Mask = make([]bool, len(a.Data), cap(a.Data))
		}
		for i := 0; i < gap; i++ {
			a.Data = append(a.Data, 0)
			a.Mask = append(a.Mask, true)
		}
		a.Data = append(a.Data, b.Data...)
		if a.Mask != nil {
			for i := range b.Data {
				a.Mask = append(a.Mask, b.IsMasked(i))
			}
		}
		return a
	}

	lo := min(0, k)
	hi := max(len(a.Data), k+len(b.Data))

	data := make([]float64, hi-lo)
	mask := make([]bool, hi-lo)
	for i := range mask {
		mask[i] = true
	}

	for i, v := range b.Data {
		if !b.IsMasked(i) {
			data[k-lo+i], mask[k-lo+i] = v, false
		}
	}
	for i, v := range a.Data {
		if !a.IsMasked(i) {
			data[i-lo], mask[i-lo] = v, false
		}
	}

	c := *a
	c.Start = a.TimeAt(lo)
	c.Data = data
	c.Mask = mask
	if !c.Masked() {
		c.Mask = nil
	}

	return &c
}

// Channels returns the channels held in canonical order.
func (s *Stream) Channels() []string {
	var c []string
	for k, v := range s.segments {
		if len(v) > 0 {
			c = append(c, k)
		}
	}
	return codec.Canonical(c)
}

// Segments returns the segments for channel, oldest first.  They must not be modified.
func (s *Stream) Segments(channel string) []*Trace {
	return s.segments[channel]
}

// Latest returns the most recent segment for channel or nil.
func (s *Stream) Latest(channel string) *Trace {
	segs := s.segments[channel]
	if len(segs) == 0 {
		return nil
	}
	return segs[len(segs)-1]
}

// Empty reports whether the stream holds no samples.
func (s *Stream) Empty() bool {
	return len(s.Channels()) == 0
}

// End returns the latest sample time in the stream.
func (s *Stream) End() time.Time {
	var t time.Time
	for _, segs := range s.segments {
		if n := len(segs); n > 0 && segs[n-1].End().After(t) {
			t = segs[n-1].End()
		}
	}
	return t
}

// index returns the position of the first sample of t at or after at.
func index(t *Trace, at time.Time) int {
	i := int(math.Ceil(t.offset(at) - epsilon))
	return max(0, min(i, len(t.Data)))
}

// Slice drops every sample before start.
func (s *Stream) Slice(start time.Time) {
	for c, segs := range s.segments {
		var keep []*Trace
		for _, seg := range segs {
			i := index(seg, start)
			if i >= len(seg.Data) {
				continue
			}
			if i > 0 {
				seg.Start = seg.TimeAt(i)
				seg.Data = seg.Data[i:]
				if seg.Mask != nil {
					seg.Mask = seg.Mask[i:]
				}
			}
			keep = append(keep, seg)
		}
		if len(keep) == 0 {
			delete(s.segments, c)
			continue
		}
		s.segments[c] = keep
	}
}

// Split removes every sample before cut from s and returns them as a new Stream.
func (s *Stream) Split(cut time.Time) *Stream {
	head := NewStream()

	for c, segs := range s.segments {
		var keep []*Trace
		for _, seg := range segs {
			i := index(seg, cut)
			switch {
			case i == 0:
				keep = append(keep, seg)
			case i >= len(seg.Data):
				head.segments[c] = append(head.segments[c], seg)
			default:
				head.segments[c] = append(head.segments[c], seg.sub(0, i))
				tail := seg.sub(i, len(seg.Data))
				keep = append(keep, tail)
			}
		}
		if len(keep) == 0 {
			delete(s.segments, c)
			continue
		}
		s.segments[c] = keep
	}

	return head
}
