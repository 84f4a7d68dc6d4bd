package response

import (
	"strings"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/dsp"
	"github.com/GeoNet/rsudp/internal/inventory"
	"github.com/GeoNet/rsudp/internal/trace"
	"github.com/pkg/errors"
)

// Output units requested from Deconvolve.
const (
	// Channel leaves each channel in its native physical units.
	Channel = "CHAN"
	Vel     = "VEL"
	Acc     = "ACC"
	Disp    = "DISP"
	Grav    = "GRAV"
)

// Unit labels stored on deconvolved traces.
var labels = map[string]string{
	Vel:  "m/s",
	Acc:  "m/s²",
	Disp: "m",
	Grav: "g",
}

// ValidUnits reports whether u is an output unit Deconvolve understands.
func ValidUnits(u string) bool {
	switch strings.ToUpper(u) {
	case Channel, Vel, Acc, Disp, Grav:
		return true
	}
	return false
}

// Corners the accelerometer low cut snaps to, in Hz.
var Corners = []float64{0.1, 0.3, 0.5}

// Snap returns the smallest corner not below f, or the largest corner.
func Snap(f float64) float64 {
	for _, c := range Corners {
		if f <= c {
			return c
		}
	}
	return Corners[len(Corners)-1]
}

// Deconvolver removes instrument responses from a station's traces.
type Deconvolver struct {
	inv     *inventory.Inventory
	remover *Remover
}

// New returns a Deconvolver for inv.  A nil inventory leaves traces in counts.
func New(inv *inventory.Inventory) *Deconvolver {
	return &Deconvolver{inv: inv, remover: NewRemover(32)}
}

// Available reports whether responses can be removed.
func (d *Deconvolver) Available() bool {
	return d != nil && d.inv != nil
}

// Trace deconvolves t in place to units.  Masked samples are filled with the
// latest value first.  Infrasound is never deconvolved.
func (d *Deconvolver) Trace(t *trace.Trace, units string) error {
	units = strings.ToUpper(units)
	if !ValidUnits(units) {
		return errors.Errorf("unknown units %s", units)
	}

	if !d.Available() {
		return nil
	}

	class := codec.ClassOf(t.Channel)
	if class == codec.ClassPressure || class == codec.ClassUnknown {
		return nil
	}

	resp, ok := d.inv.Response(t.Channel)
	if !ok {
		return nil
	}

	if t.Mask != nil {
		*t = *t.Filled(trace.FillLatest)
	}

	switch class {
	case codec.ClassVelocity:
		d.geophone(t, resp, units)
	case codec.ClassAcceleration:
		if err := d.accelerometer(t, resp, units); err != nil {
			return err
		}
	}

	if !dsp.Finite(t.Data) {
		return errors.Errorf("%s deconvolution produced non finite values", t.Channel)
	}

	return nil
}

func (d *Deconvolver) geophone(t *trace.Trace, resp inventory.Response, units string) {
	dt := 1 / t.SampleRate
	sps := t.SampleRate

	d.remover.remove(t.Data, sps, resp, removal{
		target:     velocity,
		preFilt:    []float64{0.1, 0.6, 0.95 * sps, sps},
		waterLevel: WaterLevel,
	})

	switch units {
	case Acc:
		dsp.Differentiate(t.Data, dt)
	case Grav:
		dsp.Differentiate(t.Data, dt)
		for i := range t.Data {
			t.Data[i] /= dsp.Gravity
		}
	case Disp:
		dsp.Integrate(t.Data, dt)
		dsp.TaperLeft(t.Data, 0.1, int(sps))
		dsp.Demean(t.Data)
	default:
		units = Vel
	}

	t.Units = labels[units]
}

func (d *Deconvolver) accelerometer(t *trace.Trace, resp inventory.Response, units string) error {
	dt := 1 / t.SampleRate
	sps := t.SampleRate

	lowcut := Snap(dsp.LowCorner(t.Data, sps, dsp.DefaultPowerThreshold))

	dsp.Taper(t.Data, 0.1)
	d.remover.remove(t.Data, sps, resp, removal{
		target:     acceleration,
		waterLevel: WaterLevel,
	})

	bp, err := dsp.Bandpass(lowcut, 0.49*sps, sps, 4)
	if err != nil {
		return errors.Wrapf(err, "%s", t.Channel)
	}
	bp.ZeroPhase(t.Data)

	switch units {
	case Vel:
		dsp.Integrate(t.Data, dt)
		dsp.Demean(t.Data)
	case Disp:
		// two integrations of acceleration give metres.  A further derivative would
		// return velocity, so there is none.
		dsp.Integrate(t.Data, dt)
		dsp.Detrend(t.Data)
		dsp.Integrate(t.Data, dt)
		dsp.Detrend(t.Data)
	case Grav:
		for i := range t.Data {
			t.Data[i] /= dsp.Gravity
		}
	default:
		units = Acc
	}

	t.Units = labels[units]

	return nil
}
