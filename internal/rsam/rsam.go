// Package rsam computes real-time seismic amplitude measurements: the minimum, maximum,
// and mean absolute amplitude over a rolling interval.
package rsam

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/dsp"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/response"
	"github.com/GeoNet/rsudp/internal/trace"
	"github.com/pkg/errors"
)

// Output formats.
const (
	Lite    = "LITE"
	Labeled = "RSAM"
)

// Config is the rsam section of the settings.
type Config struct {
	Channel    string
	Interval   time.Duration
	Deconvolve bool
	Units      string
	// Quiet stops each result being logged.
	Quiet bool
	// FwAddr and FwPort are where results are sent over UDP, none when FwAddr is empty.
	FwAddr   string
	FwPort   int
	FwFormat string
}

// Result is one measurement.
type Result struct {
	Channel        string
	Time           time.Time
	Min, Max, Mean float64
	Units          string
}

// Format returns r as a datagram in format.
func (r Result) Format(format string) []byte {
	if strings.ToUpper(format) == Lite {
		return []byte(fmt.Sprintf("%s,%s,%s,%s\n", codec.FormatTimestamp(r.Time), num(r.Min), num(r.Max), num(r.Mean)))
	}
	return []byte(fmt.Sprintf("RSAM CHAN=%s min=%s max=%s mean=%s t=%s\n", r.Channel, num(r.Min), num(r.Max), num(r.Mean), r.Time.UTC().Format(codec.TimeFormat)))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

// RSAM is a pipeline.Handler.
type RSAM struct {
	env     *pipeline.Environment
	cfg     Config
	channel string
	deconv  *response.Deconvolver
	stream  *trace.Stream
	conn    net.Conn
	next    time.Time
	last    *Result
}

// New returns an RSAM worker for the first channel matching cfg.Channel.  When an
// address is configured the UDP socket is opened here.
func New(env *pipeline.Environment, cfg Config) (*RSAM, error) {
	ch, ok := codec.Select(cfg.Channel, env.Channels)
	if !ok {
		return nil, errors.Errorf("rsam: no channel matching %q in %v", cfg.Channel, env.Channels)
	}

	if cfg.Interval <= 0 {
		return nil, errors.Errorf("rsam: invalid interval %s", cfg.Interval)
	}

	r := &RSAM{
		env:     env,
		cfg:     cfg,
		channel: ch,
		stream:  trace.NewStream(),
	}

	if cfg.Deconvolve {
		r.deconv = response.New(env.Inventory)
	}

	if cfg.FwAddr != "" {
		conn, err := net.Dial("udp", net.JoinHostPort(cfg.FwAddr, strconv.Itoa(cfg.FwPort)))
		if err != nil {
			return nil, errors.Wrap(err, "rsam: opening forward socket")
		}
		r.conn = conn
	}

	return r, nil
}

// Last is the latest measurement, nil before the first.
func (r *RSAM) Last() *Result {
	return r.last
}

func (r *RSAM) Handle(m codec.Message, f *pipeline.Flags) error {
	d, ok := m.(codec.Datagram)
	if !ok {
		return nil
	}

	if c, ok := codec.PeekChannel(d.Raw); !ok || c != r.channel {
		return nil
	}

	p, err := codec.Parse(d.Raw)
	if err != nil {
		if r.env.Debug {
			log.Printf("rsam: %s", err)
		}
		return nil
	}

	r.stream.AppendPacket(r.env.Network, r.env.Station, float64(r.env.SampleRate), p)

	return nil
}

// Cycle measures the last interval of data each time the data has advanced by an interval.
func (r *RSAM) Cycle(f *pipeline.Flags) error {
	t := r.stream.Latest(r.channel)
	if t == nil {
		return nil
	}

	end := t.End()
	if r.next.IsZero() {
		r.next = t.Start.Add(r.cfg.Interval)
	}
	if end.Before(r.next) {
		return nil
	}
	r.next = end.Add(r.cfg.Interval)

	defer r.stream.Slice(end.Add(-r.cfg.Interval))

	c := t.Filled(trace.FillLatest)

	units := trace.Counts
	if r.deconv != nil {
		if err := r.deconv.Trace(c, r.cfg.Units); err != nil {
			return errors.Wrap(err, "rsam: deconvolving")
		}
		units = c.Units
	}

	from := end.Add(-r.cfg.Interval)
	i := 0
	for i < c.Len() && c.TimeAt(i).Before(from) {
		i++
	}

	lo, hi, mean := dsp.AbsStats(c.Data[i:])

	res := Result{Channel: r.channel, Time: end, Min: lo, Max: hi, Mean: mean, Units: units}
	r.last = &res

	if !r.cfg.Quiet {
		log.Printf("rsam: %s %s min %g max %g mean %g", r.channel, units, lo, hi, mean)
	}

	if r.conn != nil {
		if _, err := r.conn.Write(res.Format(r.cfg.FwFormat)); err != nil {
			return errors.Wrap(err, "rsam: forwarding")
		}
	}

	return nil
}

// Close closes the forward socket.
func (r *RSAM) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
