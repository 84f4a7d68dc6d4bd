package main

import (
	"fmt"
	"log"
	"time"

	"github.com/GeoNet/rsudp/internal/alert"
	"github.com/GeoNet/rsudp/internal/custom"
	"github.com/GeoNet/rsudp/internal/eventdb"
	"github.com/GeoNet/rsudp/internal/forward"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/printer"
	"github.com/GeoNet/rsudp/internal/process"
	"github.com/GeoNet/rsudp/internal/publish"
	"github.com/GeoNet/rsudp/internal/rsam"
	"github.com/GeoNet/rsudp/internal/settings"
	"github.com/GeoNet/rsudp/internal/tally"
	"github.com/GeoNet/rsudp/internal/writer"
	"github.com/pkg/errors"
)

// register adds a worker for each enabled section of s to b.  t is always added, last.
func register(b *pipeline.Broadcaster, env *pipeline.Environment, s settings.Settings, t *tally.Tally) error {
	add := func(name string, h pipeline.Handler) {
		b.Register(pipeline.NewConsumer(name, h))
		log.Printf("started %s", name)
	}

	if s.PrintData.Enabled {
		add("printer", printer.New())
	}

	if s.Write.Enabled {
		w, err := writer.New(env, s.Write.Channels)
		if err != nil {
			return err
		}
		add("writer", w)
	}

	if s.Forward.Enabled {
		for i, a := range s.Forward.Address {
			f, err := forward.New(env, forward.Config{
				Address:  a,
				Port:     s.Forward.Port[i],
				Channels: s.Forward.Channels,
				Data:     s.Forward.FwdData,
				Alarms:   s.Forward.FwdAlarms,
			})
			if err != nil {
				return err
			}
			add(fmt.Sprintf("forward-%d", i), f)
		}
	}

	if s.Alert.Enabled {
		a, err := alert.New(env, alert.Config{
			Channel:    s.Alert.Channel,
			STA:        s.Alert.STA,
			LTA:        s.Alert.LTA,
			Threshold:  s.Alert.Threshold,
			Reset:      s.Alert.Reset,
			Highpass:   s.Alert.Highpass,
			Lowpass:    s.Alert.Lowpass,
			Deconvolve: s.Alert.Deconvolve,
			Units:      s.Alert.Units,
		})
		if err != nil {
			return err
		}
		add("alert", a)

		if s.Process.Enabled {
			add("process", process.New(env, process.Config{
				Delay:  seconds(s.Process.Delay),
				Window: seconds(s.Process.Window),
			}))
		}
	}

	if s.RSAM.Enabled {
		r, err := rsam.New(env, rsam.Config{
			Channel:    s.RSAM.Channel,
			Interval:   seconds(s.RSAM.Interval),
			Deconvolve: s.RSAM.Deconvolve,
			Units:      s.RSAM.Units,
			Quiet:      s.RSAM.Quiet,
			FwAddr:     s.RSAM.FwAddr,
			FwPort:     s.RSAM.FwPort,
			FwFormat:   s.RSAM.FwFormat,
		})
		if err != nil {
			return err
		}
		add("rsam", r)
	}

	if s.Custom.Enabled {
		c, err := custom.New(custom.Config{Codefile: s.Custom.Codefile, WinOverride: s.Custom.WinOverride})
		if err != nil {
			return err
		}
		add("custom", c)
	}

	if s.EventDB.Enabled {
		a, err := eventdb.New(env.Station, eventdb.Config{Table: s.EventDB.Table})
		if err != nil {
			return err
		}
		add("eventdb", a)
	}

	if s.Redis.Enabled {
		p, err := publish.New(env.Station, publish.Config{Address: s.Redis.Address, Channel: s.Redis.Channel})
		if err != nil {
			return errors.Wrap(err, "redis")
		}
		add("publish", p)
	}

	for _, u := range []struct {
		name    string
		enabled bool
	}{
		{"plot", s.Plot.Enabled},
		{"alertsound", s.AlertSound.Enabled},
		{"tweets", s.Tweets.Enabled},
		{"telegram", s.Telegram.Enabled},
	} {
		if u.enabled {
			log.Printf("WARN: %s is not supported, ignoring", u.name)
		}
	}

	add("tally", t)

	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
