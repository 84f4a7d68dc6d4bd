package mseed

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const frameSize = 64

// packing is one way of filling a 32 bit data word with differences.
type packing struct {
	nib, dnib uint32
	count     int
	bits      uint
}

// packings in order of preference, densest first.
var packings = []packing{
	{nib: 3, dnib: 2, count: 7, bits: 4},
	{nib: 3, dnib: 1, count: 6, bits: 5},
	{nib: 3, dnib: 0, count: 5, bits: 6},
	{nib: 1, count: 4, bits: 8},
	{nib: 2, dnib: 3, count: 3, bits: 10},
	{nib: 2, dnib: 2, count: 2, bits: 15},
	{nib: 2, dnib: 1, count: 1, bits: 30},
}

func fits(v int32, bits uint) bool {
	lim := int64(1) << (bits - 1)
	return int64(v) >= -lim && int64(v) < lim
}

// word packs d into a data word using p.  The first difference is the most significant.
func (p packing) word(d []int32) uint32 {
	mask := uint32(1)<<p.bits - 1

	var w uint32
	for j := 0; j < p.count; j++ {
		w |= (uint32(d[j]) & mask) << (p.bits * uint(p.count-1-j))
	}
	if p.nib != 1 {
		w |= p.dnib << 30
	}
	return w
}

// steim2 compresses as many samples of x as fit into frames 64 byte frames.  It returns
// the frame data, the number of samples encoded, and the number of frames used.
// The first difference is written as zero, readers take the first sample from X0.
func steim2(x []int32, frames int) ([]byte, int, int, error) {
	if len(x) == 0 {
		return nil, 0, 0, nil
	}

	diff := make([]int32, len(x))
	for i := 1; i < len(x); i++ {
		d := int64(x[i]) - int64(x[i-1])
		if d < -(1<<29) || d >= 1<<29 {
			return nil, 0, 0, errors.Errorf("steim2: difference %d at sample %d exceeds 30 bits", d, i)
		}
		diff[i] = int32(d)
	}

	buf := make([]byte, frames*frameSize)

	var n, used int

	for f := 0; f < frames && n < len(x); f++ {
		frame := buf[f*frameSize : (f+1)*frameSize]
		var nibbles uint32

		first := 1
		if f == 0 {
			// words 1 and 2 of the first frame hold X0 and Xn.
			first = 3
		}

		for w := first; w < 16 && n < len(x); w++ {
			var p packing
			var ok bool
			for _, c := range packings {
				if n+c.count > len(diff) {
					continue
				}
				ok = true
				for _, d := range diff[n : n+c.count] {
					if !fits(d, c.bits) {
						ok = false
						break
					}
				}
				if ok {
					p = c
					break
				}
			}
			if !ok {
				return nil, 0, 0, errors.Errorf("steim2: cannot pack sample %d", n)
			}

			binary.BigEndian.PutUint32(frame[w*4:], p.word(diff[n:n+p.count]))
			nibbles |= p.nib << (30 - 2*uint(w))
			n += p.count
		}

		binary.BigEndian.PutUint32(frame[0:4], nibbles)
		used = f + 1
	}

	binary.BigEndian.PutUint32(buf[4:8], uint32(x[0]))
	binary.BigEndian.PutUint32(buf[8:12], uint32(x[n-1]))

	return buf, n, used, nil
}
