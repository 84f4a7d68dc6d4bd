package codec

import (
	"bytes"
	"math"

	"github.com/pkg/errors"
)

// maxProbePackets bounds how many datagrams a probe will read.
const maxProbePackets = 256

// Source returns the next datagram payload.  It returns ErrNoDataReceived when its
// receive timeout expires.
type Source func() ([]byte, error)

// ProbeTransmission reads successive datagrams until the channel of the first one
// repeats and returns the transmission period in milliseconds and the first datagram.
func ProbeTransmission(next Source) (float64, []byte, error) {
	first, p0, err := nextPacket(next)
	if err != nil {
		return 0, nil, err
	}

	for i := 0; i < maxProbePackets; i++ {
		_, p, err := nextPacket(next)
		switch {
		case errors.Cause(err) == ErrNoDataReceived:
			return 0, nil, errors.Wrapf(ErrParameterProbeTimeout, "no second packet for %s", p0.Channel)
		case err != nil:
			return 0, nil, err
		}

		if p.Channel != p0.Channel {
			continue
		}

		tf := math.Round(p.Time.Sub(p0.Time).Seconds()*1000*1000) / 1000
		if tf <= 0 {
			return 0, nil, errors.Wrapf(ErrParameterProbeTimeout, "non increasing time for %s", p0.Channel)
		}

		return tf, first, nil
	}

	return 0, nil, errors.Wrapf(ErrParameterProbeTimeout, "%s did not repeat in %d packets", p0.Channel, maxProbePackets)
}

// SampleRate returns the sample rate implied by a datagram and the transmission
// period tf in milliseconds.
func SampleRate(b []byte, tf float64) (int, error) {
	if tf <= 0 {
		return 0, errors.Wrapf(ErrBadSampleRate, "transmission period %g", tf)
	}

	commas := bytes.Count(b, []byte(","))
	sps := float64(commas-1) * 1000 / tf

	r := math.Round(sps)
	if r < 1 || math.Abs(sps-r) > 0.01*r {
		return 0, errors.Wrapf(ErrBadSampleRate, "%g samples per second", sps)
	}

	return int(r), nil
}

// ProbeChannels reads datagrams until the first channel tag seen comes round again and
// returns every tag seen in canonical order.
func ProbeChannels(next Source) ([]string, error) {
	_, p0, err := nextPacket(next)
	if err != nil {
		return nil, err
	}

	seen := []string{p0.Channel}

	for i := 0; i < maxProbePackets; i++ {
		_, p, err := nextPacket(next)
		if err != nil {
			return nil, err
		}
		if p.Channel == p0.Channel {
			return Canonical(seen), nil
		}
		seen = append(seen, p.Channel)
	}

	return Canonical(seen), nil
}

// nextPacket skips datagrams that do not parse.
func nextPacket(next Source) ([]byte, Packet, error) {
	for i := 0; i < maxProbePackets; i++ {
		b, err := next()
		if err != nil {
			return nil, Packet{}, err
		}
		p, err := Parse(b)
		if err != nil {
			continue
		}
		return b, p, nil
	}
	return nil, Packet{}, errors.Wrap(ErrMalformedPacket, "no valid packets while probing")
}
