package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/GeoNet/kit/health"
	"github.com/GeoNet/rsudp/internal/forward"
	"github.com/GeoNet/rsudp/internal/inventory"
	"github.com/GeoNet/rsudp/internal/metrics"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/settings"
	"github.com/GeoNet/rsudp/internal/tally"
	"github.com/GeoNet/rsudp/internal/writer"
	"github.com/pkg/errors"
)

// run starts the pipeline and returns the exit code.
func run(ctx context.Context, s settings.Settings) int {
	p, err := pipeline.Listen(ctx, s.Settings.Port)
	if err != nil {
		log.Printf("ERROR: %s", err)
		return exitFatal
	}
	defer p.Close()

	p.Debug = s.Settings.Debug

	if s.Settings.SOH != "" {
		p.Health = health.New(s.Settings.SOH, 2*pipeline.DataTimeout, time.Minute)
		log.Printf("state of health on %s%s", s.Settings.SOH, health.CheckPath)
	}

	log.Printf("waiting for data on %s", p.Addr())

	env, err := p.Probe(s.Settings.Station)
	if err != nil {
		log.Printf("ERROR: %s", err)
		return exitFatal
	}

	env.OutputDir = s.Settings.OutputDir
	env.Inventory = fetchInventory(ctx, env)

	b := pipeline.NewBroadcaster(p.Out())
	t := tally.New()

	if err := register(b, env, s, t); err != nil {
		log.Printf("ERROR: %s", err)
		return registerExit(err)
	}

	err = pipeline.Run(ctx, p, b)

	summary(p, t)

	if err != nil {
		log.Printf("ERROR: %s", err)
		return exitFatal
	}

	return exitOK
}

// registerExit is exitInvalid for a bad channel list and exitFatal for anything else.
func registerExit(err error) int {
	switch errors.Cause(err) {
	case writer.ErrUnknownChannel, forward.ErrUnknownChannel:
		return exitInvalid
	default:
		return exitFatal
	}
}

// fetchInventory returns nil when the station is unknown or the fetch fails.
func fetchInventory(ctx context.Context, env *pipeline.Environment) *inventory.Inventory {
	if env.Station == settings.Unknown {
		log.Printf("station is %s, no instrument response", settings.Unknown)
		return nil
	}

	inv, err := inventory.NewClient().Fetch(ctx, env.Network, env.Station)
	if err != nil {
		log.Printf("WARN: no instrument response for %s.%s: %s", env.Network, env.Station, err)
		return nil
	}

	return inv
}

func summary(p *pipeline.Producer, t *tally.Tally) {
	log.Printf("messages: %s", metrics.Totals())

	for _, s := range metrics.ReadTimers() {
		log.Printf("timer: %s", s)
	}

	log.Printf("datagrams per worker: %d", t.Counts().Datagrams())

	if b := p.Blocked(); len(b) > 0 {
		log.Printf("blocked senders: %s", strings.Join(b, ", "))
	}
}
