// Package codec is for decoding Raspberry Shake UDP datagrams and the control messages
// passed between the producer and its workers.
package codec

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// MaxDatagram is the receive buffer size for a single datagram.
const MaxDatagram = 2048

var (
	ErrMalformedPacket       = errors.New("malformed packet")
	ErrParameterProbeTimeout = errors.New("parameter probe timeout")
	ErrBadSampleRate         = errors.New("bad sample rate")
	ErrNoDataReceived        = errors.New("no data received")
)

// Packet is a decoded datagram: one block of samples for one channel.
type Packet struct {
	Channel string
	Time    time.Time
	Samples []int32
}

// Parse decodes a datagram of the form {'EHZ', 1577836800.000, 12345, 12346, ...}.
func Parse(b []byte) (Packet, error) {
	b = bytes.TrimSpace(b)
	b = bytes.TrimPrefix(b, []byte("{"))
	b = bytes.TrimSuffix(b, []byte("}"))

	fields := bytes.Split(b, []byte(","))
	if len(fields) < 3 {
		return Packet{}, errors.Wrapf(ErrMalformedPacket, "%d fields", len(fields))
	}

	channel := string(bytes.Trim(bytes.TrimSpace(fields[0]), `'"`))
	if channel == "" {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "empty channel")
	}

	t, err := ParseTimestamp(string(bytes.TrimSpace(fields[1])))
	if err != nil {
		return Packet{}, errors.Wrap(ErrMalformedPacket, err.Error())
	}

	p := Packet{
		Channel: channel,
		Time:    t,
		Samples: make([]int32, 0, len(fields)-2),
	}

	for _, f := range fields[2:] {
		v, err := strconv.ParseInt(string(bytes.TrimSpace(f)), 10, 32)
		if err != nil {
			return Packet{}, errors.Wrap(ErrMalformedPacket, err.Error())
		}
		p.Samples = append(p.Samples, int32(v))
	}

	return p, nil
}

// ParseTimestamp converts Unix epoch seconds to a UTC time rounded to the microsecond.
func ParseTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, errors.Errorf("invalid timestamp %s", s)
	}

	return time.Unix(0, int64(math.Round(f*1e6))*int64(time.Microsecond)).UTC(), nil
}

// FormatTimestamp renders t as Unix epoch seconds with three decimals.
func FormatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano()/int64(time.Millisecond))/1000.0, 'f', 3, 64)
}

// Format builds a datagram from a packet.  It is the inverse of Parse.
func Format(p Packet) []byte {
	var b bytes.Buffer

	b.WriteString("{'")
	b.WriteString(p.Channel)
	b.WriteString("', ")
	b.WriteString(FormatTimestamp(p.Time))
	for _, s := range p.Samples {
		b.WriteString(", ")
		b.WriteString(strconv.FormatInt(int64(s), 10))
	}
	b.WriteString("}")

	return b.Bytes()
}

// PeekChannel returns the channel tag of a datagram without decoding the samples.
func PeekChannel(b []byte) (string, bool) {
	b = bytes.TrimPrefix(bytes.TrimSpace(b), []byte("{"))
	i := bytes.IndexByte(b, ',')
	if i < 0 {
		return "", false
	}
	c := string(bytes.Trim(bytes.TrimSpace(b[:i]), `'"`))

	return c, c != ""
}
