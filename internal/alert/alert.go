// Package alert is the STA/LTA event detector.  It raises ALARM when the ratio of the
// short-term to the long-term average passes a threshold and RESET when it falls back
// below the reset level.
package alert

import (
	"log"
	"math"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/dsp"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/response"
	"github.com/GeoNet/rsudp/internal/trace"
	"github.com/pkg/errors"
)

// filterOrder is the number of poles in the optional trigger filter.
const filterOrder = 4

// Config is the alert section of the settings.
type Config struct {
	// Channel is matched by suffix, e.g. HZ.
	Channel string
	// STA and LTA are window lengths in seconds.
	STA, LTA  float64
	Threshold float64
	// Reset is the level the ratio must fall below before the detector re-arms.
	Reset float64
	// Highpass and Lowpass are the trigger filter corners in Hz, 0 for none.
	Highpass, Lowpass float64
	Deconvolve        bool
	Units             string
}

// Alert is a pipeline.Handler.
type Alert struct {
	env     *pipeline.Environment
	cfg     Config
	channel string
	filter  dsp.Filter
	deconv  *response.Deconvolver
	stream  *trace.Stream

	ns, nl  int
	warmup  int
	packets int
	running bool
	fresh   bool

	// evaluated is the time of the last sample already evaluated.
	evaluated time.Time
	alarmed   bool
	level     float64
}

// New returns an Alert for the first stream channel matching cfg.Channel.
func New(env *pipeline.Environment, cfg Config) (*Alert, error) {
	ch, ok := codec.Select(cfg.Channel, env.Channels)
	if !ok {
		return nil, errors.Errorf("alert: no channel matching %q in %v", cfg.Channel, env.Channels)
	}

	if cfg.STA <= 0 || cfg.LTA <= cfg.STA {
		return nil, errors.Errorf("alert: need 0 < sta < lta got %g %g", cfg.STA, cfg.LTA)
	}

	sps := float64(env.SampleRate)

	f, err := design(cfg.Highpass, cfg.Lowpass, sps)
	if err != nil {
		return nil, errors.Wrap(err, "alert")
	}

	a := &Alert{
		env:     env,
		cfg:     cfg,
		channel: ch,
		filter:  f,
		stream:  trace.NewStream(),
		ns:      int(math.Round(cfg.STA * sps)),
		nl:      int(math.Round(cfg.LTA * sps)),
		warmup:  env.Packets(time.Duration(cfg.LTA * float64(time.Second))),
	}

	if cfg.Deconvolve {
		a.deconv = response.New(env.Inventory)
		if !a.deconv.Available() {
			log.Println("alert: no inventory, the trigger uses counts")
		}
	}

	return a, nil
}

// design returns the trigger filter for the corners fmin and fmax, nil when none is wanted.
func design(fmin, fmax, sps float64) (dsp.Filter, error) {
	nyquist := sps / 2

	switch {
	case fmin <= 0 && (fmax <= 0 || fmax >= nyquist):
		return nil, nil
	case fmin > 0 && (fmax <= 0 || fmax >= nyquist):
		return dsp.Highpass(fmin, sps, filterOrder)
	case fmin <= 0:
		return dsp.Lowpass(fmax, sps, filterOrder)
	default:
		return dsp.Bandpass(fmin, fmax, sps, filterOrder)
	}
}

// Channel is the channel the detector runs on.
func (a *Alert) Channel() string {
	return a.channel
}

// Level is the largest ratio found in the last cycle.
func (a *Alert) Level() float64 {
	return a.level
}

// Handle merges datagrams for the detector channel into the rolling trace.
func (a *Alert) Handle(m codec.Message, f *pipeline.Flags) error {
	d, ok := m.(codec.Datagram)
	if !ok {
		return nil
	}

	if c, ok := codec.PeekChannel(d.Raw); !ok || c != a.channel {
		return nil
	}

	p, err := codec.Parse(d.Raw)
	if err != nil {
		if a.env.Debug {
			log.Printf("alert: %s", err)
		}
		return nil
	}

	a.packets++
	if a.packets == 1 {
		log.Printf("alert: %s warming up for %g seconds", a.channel, a.cfg.LTA)
	}

	a.stream.AppendPacket(a.env.Network, a.env.Station, float64(a.env.SampleRate), p)
	a.fresh = true

	return nil
}

// Cycle evaluates the samples that arrived since the last cycle.
func (a *Alert) Cycle(f *pipeline.Flags) error {
	if !a.fresh || a.packets < a.warmup {
		return nil
	}
	a.fresh = false

	if !a.running {
		a.running = true
		log.Printf("alert: %s running, sta %gs lta %gs threshold %g reset %g", a.channel, a.cfg.STA, a.cfg.LTA, a.cfg.Threshold, a.cfg.Reset)
	}

	latest := a.stream.Latest(a.channel)
	if latest == nil {
		return nil
	}

	t := latest.Filled(trace.FillLatest)
	end := t.End()

	// keep lta seconds before the next cycle's new data.
	defer a.stream.Slice(end.Add(-time.Duration(a.cfg.LTA * float64(time.Second))))

	first := 0
	if !a.evaluated.IsZero() {
		first = int(math.Floor(a.evaluated.Sub(t.Start).Seconds()*t.SampleRate+0.5)) + 1
	}
	first = max(first, a.nl)

	if first >= t.Len() {
		return nil
	}

	if a.deconv != nil {
		if err := a.deconv.Trace(t, a.cfg.Units); err != nil {
			return errors.Wrap(err, "alert: deconvolving")
		}
	}

	if a.filter != nil {
		dsp.Demean(t.Data)
		a.filter.Apply(t.Data)
	}

	cft := dsp.RecursiveSTALTA(t.Data, a.ns, a.nl)
	level, at := dsp.MaxFrom(cft, first)
	if at < 0 {
		return nil
	}
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return errors.Errorf("alert: non finite sta/lta at %s", t.TimeAt(at).Format(codec.TimeFormat))
	}

	a.evaluated = end
	a.level = level

	switch {
	case !a.alarmed && level > a.cfg.Threshold:
		a.alarmed = true
		log.Printf("alert: trigger on %s, sta/lta %.2f > %.2f at %s", a.channel, level, a.cfg.Threshold, t.TimeAt(at).Format(codec.TimeFormat))
		f.Alarm(end)
	case a.alarmed && level < a.cfg.Reset:
		a.alarmed = false
		log.Printf("alert: %s re-armed, sta/lta %.2f < %.2f", a.channel, level, a.cfg.Reset)
		f.Reset(end)
	}

	return nil
}
