package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeFormat is the layout of times carried in control messages.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Kind identifies the variant of a Message.
type Kind int

const (
	KindData Kind = iota
	KindTerm
	KindAlarm
	KindReset
	KindImgPath
	KindProcess
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindTerm:
		return "TERM"
	case KindAlarm:
		return "ALARM"
	case KindReset:
		return "RESET"
	case KindImgPath:
		return "IMGPATH"
	case KindProcess:
		return "PROCESS"
	default:
		return "UNKNOWN"
	}
}

// Message is carried on the pipeline queues.  The set of variants is closed.
type Message interface {
	Kind() Kind
	message()
}

// Datagram is a raw packet as received from the Shake.
type Datagram struct {
	Raw []byte
}

// Term stops every task that sees it.
type Term struct{}

// Alarm is raised when a detector triggers.
type Alarm struct {
	Time time.Time
}

// Reset is raised when a detector re-arms.
type Reset struct {
	Time time.Time
}

// ImgPath announces an event screenshot.
type ImgPath struct {
	Time time.Time
	Path string
}

// Process carries the peak ground motion summary of an event.
type Process struct {
	Motion PeakMotion
}

// PeakMotion is the JSON payload of a PROCESS message.  Units are m/s² and m.
type PeakMotion struct {
	MaxPGA        float64   `json:"max_pga"`
	MaxPGD        float64   `json:"max_pgd"`
	MaxPGAChannel string    `json:"max_pga_channel"`
	MaxPGDChannel string    `json:"max_pgd_channel"`
	EventTime     EventTime `json:"event_time"`
}

// EventTime marshals as a UTC time using TimeFormat.
type EventTime struct {
	time.Time
}

// MarshalJSON replaces the RFC3339Nano form promoted from time.Time.
func (t EventTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(TimeFormat) + `"`), nil
}

func (t *EventTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	var err error
	t.Time, err = parseTime(s)
	return err
}

func (Datagram) Kind() Kind { return KindData }
func (Term) Kind() Kind     { return KindTerm }
func (Alarm) Kind() Kind    { return KindAlarm }
func (Reset) Kind() Kind    { return KindReset }
func (ImgPath) Kind() Kind  { return KindImgPath }
func (Process) Kind() Kind  { return KindProcess }

func (Datagram) message() {}
func (Term) message()     {}
func (Alarm) message()    {}
func (Reset) message()    {}
func (ImgPath) message()  {}
func (Process) message()  {}

// Encode serializes m as a leading keyword and space separated arguments.
// Datagrams are returned unchanged.
func Encode(m Message) []byte {
	switch v := m.(type) {
	case Datagram:
		return v.Raw
	case Term:
		return []byte("TERM")
	case Alarm:
		return []byte("ALARM " + v.Time.UTC().Format(TimeFormat))
	case Reset:
		return []byte("RESET " + v.Time.UTC().Format(TimeFormat))
	case ImgPath:
		return []byte("IMGPATH " + v.Time.UTC().Format(TimeFormat) + " " + v.Path)
	case Process:
		pm := v.Motion
		pm.MaxPGA, pm.MaxPGD = finite(pm.MaxPGA), finite(pm.MaxPGD)
		b, err := json.Marshal(pm)
		if err != nil {
			panic(err)
		}
		return append([]byte("PROCESS "), b...)
	default:
		return nil
	}
}

// Decode is the inverse of Encode.  Anything that is not a control message must look
// like a datagram or ErrMalformedPacket is returned.
func Decode(b []byte) (Message, error) {
	s := string(bytes.TrimSpace(b))

	keyword, arg, _ := strings.Cut(s, " ")

	switch keyword {
	case "TERM":
		return Term{}, nil
	case "ALARM":
		t, err := parseTime(arg)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedPacket, err.Error())
		}
		return Alarm{Time: t}, nil
	case "RESET":
		t, err := parseTime(arg)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedPacket, err.Error())
		}
		return Reset{Time: t}, nil
	case "IMGPATH":
		ts, path, ok := strings.Cut(arg, " ")
		if !ok || path == "" {
			return nil, errors.Wrap(ErrMalformedPacket, "IMGPATH missing path")
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedPacket, err.Error())
		}
		return ImgPath{Time: t, Path: path}, nil
	case "PROCESS":
		var p PeakMotion
		if err := json.Unmarshal([]byte(arg), &p); err != nil {
			return nil, errors.Wrap(ErrMalformedPacket, err.Error())
		}
		return Process{Motion: p}, nil
	}

	if strings.HasPrefix(s, "{") {
		return Datagram{Raw: b}, nil
	}

	return nil, errors.Wrapf(ErrMalformedPacket, "unknown message %.16q", s)
}

// finite replaces NaN and infinities, which JSON cannot carry, with zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
