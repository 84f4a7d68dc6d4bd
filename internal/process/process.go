// Package process computes peak ground acceleration and displacement after an alarm.
package process

import (
	"log"
	"math"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/dsp"
	"github.com/GeoNet/rsudp/internal/metrics"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/response"
	"github.com/GeoNet/rsudp/internal/trace"
	"github.com/pkg/errors"
)

const (
	// DefaultDelay is how long after an alarm the peaks are computed.
	DefaultDelay = 10 * time.Second
	// DefaultWindow is how much data is kept for the computation.
	DefaultWindow = 90 * time.Second
)

// Config for the processor.  Zero values take the defaults.
type Config struct {
	// Delay is how much data after an ALARM is waited for before its PROCESS is sent.
	// A RESET or TERM sends it sooner.  Peaks are measured from Delay before the ALARM.
	Delay time.Duration
	// Window is how much data is kept, at least twice Delay.
	Window time.Duration
}

// Processor is a pipeline.Handler.  It keeps a rolling copy of every channel and publishes
// one PROCESS message per ALARM.
type Processor struct {
	env    *pipeline.Environment
	cfg    Config
	deconv *response.Deconvolver
	stream *trace.Stream

	pending []time.Time
	reset   bool
}

// New returns a Processor.
func New(env *pipeline.Environment, cfg Config) *Processor {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Window < 2*cfg.Delay {
		cfg.Window = max(DefaultWindow, 2*cfg.Delay)
	}

	p := &Processor{
		env:    env,
		cfg:    cfg,
		deconv: response.New(env.Inventory),
		stream: trace.NewStream(),
	}

	if !p.deconv.Available() {
		log.Println("process: no inventory, peak motion will not be computed")
	}

	return p
}

func (p *Processor) Handle(m codec.Message, f *pipeline.Flags) error {
	switch v := m.(type) {
	case codec.Datagram:
		pk, err := codec.Parse(v.Raw)
		if err != nil {
			if p.env.Debug {
				log.Printf("process: %s", err)
			}
			return nil
		}
		p.stream.AppendPacket(p.env.Network, p.env.Station, float64(p.env.SampleRate), pk)
	case codec.Alarm:
		p.pending = append(p.pending, v.Time)
	case codec.Reset:
		p.reset = len(p.pending) > 0
	}

	return nil
}

// Cycle publishes the peaks for every alarm whose delay has passed in the data, or for
// all alarms after a RESET.
func (p *Processor) Cycle(f *pipeline.Flags) error {
	end := p.stream.End()
	defer p.stream.Slice(end.Add(-p.cfg.Window))

	var keep []time.Time
	var first error

	for _, at := range p.pending {
		if !p.reset && end.Before(at.Add(p.cfg.Delay)) {
			keep = append(keep, at)
			continue
		}

		pm, err := p.Peaks(at)
		switch {
		case err != nil:
			if first == nil {
				first = err
			}
		case pm != nil:
			log.Printf("process: %s intensity %s", codec.Encode(codec.Process{Motion: *pm}), Intensity(pm.MaxPGA))
			f.Send(codec.Process{Motion: *pm})
		}
	}

	p.pending = keep
	p.reset = false

	return first
}

// Close computes the peaks for alarms still pending.
func (p *Processor) Close() error {
	for _, at := range p.pending {
		pm, err := p.Peaks(at)
		if err != nil {
			return err
		}
		if pm != nil {
			log.Printf("process: at stop %s intensity %s", codec.Encode(codec.Process{Motion: *pm}), Intensity(pm.MaxPGA))
		}
	}
	p.pending = nil

	return nil
}

// Peaks returns the peak motion from the event at onward.  It returns nil without an
// inventory or data.
func (p *Processor) Peaks(at time.Time) (*codec.PeakMotion, error) {
	if !p.deconv.Available() || p.stream.Empty() {
		return nil, nil
	}

	tm := metrics.Start()
	defer tm.Track("process.peaks")

	from := at.Add(-p.cfg.Delay)

	pm := codec.PeakMotion{EventTime: codec.EventTime{Time: at.UTC()}}
	var found bool

	for _, c := range p.channels() {
		t := p.stream.Latest(c)

		acc, err := p.peak(t, response.Acc, from)
		if err != nil {
			return nil, err
		}
		disp, err := p.peak(t, response.Disp, from)
		if err != nil {
			return nil, err
		}

		if acc > pm.MaxPGA || !found {
			pm.MaxPGA, pm.MaxPGAChannel = acc, c
		}
		if disp > pm.MaxPGD || !found {
			pm.MaxPGD, pm.MaxPGDChannel = disp, c
		}
		found = true
	}

	if !found {
		return nil, nil
	}

	return &pm, nil
}

// channels are the geophone and accelerometer channels with a response, leaving out the
// vertical geophone when any other channel can be used.  Infrasound is never ground motion.
func (p *Processor) channels() []string {
	var all, rest []string

	for _, c := range p.stream.Channels() {
		class := codec.ClassOf(c)
		if class != codec.ClassVelocity && class != codec.ClassAcceleration {
			continue
		}
		if _, ok := p.env.Inventory.Response(c); !ok {
			continue
		}
		all = append(all, c)
		if class == codec.ClassVelocity && c[len(c)-1] == 'Z' {
			continue
		}
		rest = append(rest, c)
	}

	if len(rest) > 0 {
		return rest
	}
	return all
}

// peak deconvolves a copy of t to units and returns the largest absolute value from
// onward.
func (p *Processor) peak(t *trace.Trace, units string, from time.Time) (float64, error) {
	c := t.Copy()

	if err := p.deconv.Trace(c, units); err != nil {
		return 0, errors.Wrapf(err, "process: %s %s", c.Channel, units)
	}

	i := int(math.Max(0, math.Ceil(from.Sub(c.Start).Seconds()*c.SampleRate)))
	if i >= c.Len() {
		i = 0
	}

	return dsp.AbsMax(c.Data[i:]), nil
}
