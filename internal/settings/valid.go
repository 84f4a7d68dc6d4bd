package settings

import (
	"regexp"

	"github.com/GeoNet/rsudp/internal/response"
	"github.com/GeoNet/rsudp/internal/rsam"
	"github.com/pkg/errors"
)

// ErrInvalid is the cause of every validation error.
var ErrInvalid = errors.New("invalid settings")

var station = regexp.MustCompile(`^[A-Z0-9]{5}$`)

type validator func(s *Settings) error

var validators = []validator{
	general,
	forward,
	alert,
	process,
	custom,
	rsamSettings,
}

// Validate checks the settings of every enabled section.  Errors have ErrInvalid as their
// cause.
func (s *Settings) Validate() error {
	for _, fn := range validators {
		if err := fn(s); err != nil {
			return err
		}
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}

func general(s *Settings) error {
	if s.Settings.Port < 1 || s.Settings.Port > 65535 {
		return invalid("settings.port %d out of range", s.Settings.Port)
	}

	if !station.MatchString(s.Settings.Station) {
		return invalid("settings.station %q must be 5 letters or digits", s.Settings.Station)
	}

	if s.Settings.OutputDir == "" && s.Write.Enabled {
		return invalid("settings.output_dir must be set to write data")
	}

	return nil
}

func forward(s *Settings) error {
	f := s.Forward
	if !f.Enabled {
		return nil
	}

	if len(f.Address) == 0 {
		return invalid("forward.address is empty")
	}

	if len(f.Address) != len(f.Port) {
		return invalid("forward.address has %d entries and forward.port %d", len(f.Address), len(f.Port))
	}

	for i, p := range f.Port {
		if p < 1 || p > 65535 {
			return invalid("forward.port[%d] %d out of range", i, p)
		}
		if f.Address[i] == "" {
			return invalid("forward.address[%d] is empty", i)
		}
	}

	return nil
}

func alert(s *Settings) error {
	a := s.Alert
	if !a.Enabled {
		return nil
	}

	switch {
	case a.STA <= 0 || a.LTA <= a.STA:
		return invalid("alert.sta %g must be positive and less than alert.lta %g", a.STA, a.LTA)
	case a.Threshold <= 0:
		return invalid("alert.threshold %g must be positive", a.Threshold)
	case a.Reset <= 0 || a.Reset > a.Threshold:
		return invalid("alert.reset %g must be positive and no more than alert.threshold %g", a.Reset, a.Threshold)
	case a.Highpass < 0 || a.Lowpass < 0:
		return invalid("alert filter corners must not be negative")
	case a.Deconvolve && !response.ValidUnits(a.Units):
		return invalid("alert.units %q", a.Units)
	}

	return nil
}

func process(s *Settings) error {
	p := s.Process
	if !p.Enabled {
		return nil
	}

	if p.Delay < 0 || p.Window <= 0 {
		return invalid("process.delay %g and process.window %g", p.Delay, p.Window)
	}

	return nil
}

func custom(s *Settings) error {
	if s.Custom.Enabled && (s.Custom.Codefile == "" || s.Custom.Codefile == "n/a") {
		return invalid("custom.codefile must be set")
	}

	return nil
}

func rsamSettings(s *Settings) error {
	r := s.RSAM
	if !r.Enabled {
		return nil
	}

	switch {
	case r.Interval <= 0:
		return invalid("rsam.interval %g must be positive", r.Interval)
	case r.FwFormat != rsam.Lite && r.FwFormat != rsam.Labeled:
		return invalid("rsam.fwformat %q must be %s or %s", r.FwFormat, rsam.Lite, rsam.Labeled)
	case r.FwAddr != "" && (r.FwPort < 1 || r.FwPort > 65535):
		return invalid("rsam.fwport %d out of range", r.FwPort)
	case r.Deconvolve && !response.ValidUnits(r.Units):
		return invalid("rsam.units %q", r.Units)
	}

	return nil
}
