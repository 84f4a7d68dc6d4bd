// Package publish sends control messages to a Redis pub/sub channel as JSON.
package publish

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/GeoNet/kit/slogger"
	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PasswordEnv names the environment variable holding the Redis password.
const PasswordEnv = "RSUDP_REDIS_PASSWD"

// Timeout bounds each publish.
const Timeout = 2 * time.Second

// RetryDelay is the wait before the single reconnection attempt.
var RetryDelay = 5 * time.Second

type Config struct {
	Address string
	// Channel defaults to EventsChannel(station).
	Channel string
}

// Event is the published JSON document.
type Event struct {
	ID      string    `json:"id"`
	Station string    `json:"station"`
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time"`
	Payload string    `json:"payload"`
}

// EventsChannel is the default channel for a station.
func EventsChannel(station string) string {
	return "rsudp:" + station + ":events"
}

// NewEvent returns the Event for every control message except TERM.
func NewEvent(station string, m codec.Message) (Event, bool) {
	e := Event{
		ID:      uuid.NewString(),
		Station: station,
		Kind:    m.Kind().String(),
		Payload: string(codec.Encode(m)),
	}

	switch v := m.(type) {
	case codec.Alarm:
		e.Time = v.Time
	case codec.Reset:
		e.Time = v.Time
	case codec.ImgPath:
		e.Time = v.Time
	case codec.Process:
		e.Time = v.Motion.EventTime.Time
	default:
		return Event{}, false
	}

	e.Time = e.Time.UTC()

	return e, true
}

// Publisher is a pipeline.Handler.
type Publisher struct {
	rdb       *redis.Client
	station   string
	channel   string
	published int
	enabled   bool
	log       *slogger.SmartLogger
}

// New connects to Redis at c.Address.  The password, if any, is read from PasswordEnv.
// An unreachable server is retried once after RetryDelay and the Publisher then drops
// every event.
func New(station string, c Config) (*Publisher, error) {
	if c.Address == "" {
		return nil, errors.New("publish: empty redis address")
	}

	return NewWithOptions(&redis.Options{
		Addr:     c.Address,
		Password: os.Getenv(PasswordEnv),
	}, station, c.Channel), nil
}

func NewWithOptions(opts *redis.Options, station, channel string) *Publisher {
	if channel == "" {
		channel = EventsChannel(station)
	}

	p := &Publisher{
		rdb:     redis.NewClient(opts),
		station: station,
		channel: channel,
		log:     slogger.NewSmartLogger(time.Minute, "publish:"),
	}

	if err := p.ping(); err != nil {
		log.Printf("publish: problem pinging redis at %s: %s, retrying in %s", opts.Addr, err, RetryDelay)
		time.Sleep(RetryDelay)

		if err := p.ping(); err != nil {
			log.Printf("publish: problem pinging redis at %s: %s, continuing without publishing", opts.Addr, err)
			return p
		}
	}

	p.enabled = true
	log.Printf("publish: events to %s on %s", opts.Addr, channel)

	return p
}

func (p *Publisher) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	return p.rdb.Ping(ctx).Err()
}

// Enabled is false when Redis could not be reached at startup.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

func (p *Publisher) Handle(m codec.Message, _ *pipeline.Flags) error {
	if !p.enabled {
		return nil
	}

	e, ok := NewEvent(p.station, m)
	if !ok {
		return nil
	}

	if err := p.Publish(e); err != nil {
		p.log.Log(err.Error())
		return nil
	}

	p.published++

	return nil
}

func (p *Publisher) Publish(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return errors.Wrapf(err, "publishing %s to %s", e.Kind, p.channel)
	}

	return nil
}

func (p *Publisher) Published() int {
	return p.published
}

func (p *Publisher) Close() error {
	log.Printf("publish: published %d events", p.published)
	return p.rdb.Close()
}
