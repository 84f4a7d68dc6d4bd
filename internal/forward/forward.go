// Package forward retransmits datagrams, and optionally control messages, over UDP.
package forward

import (
	"log"
	"net"
	"strconv"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/pkg/errors"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Config is one destination of the forward section of the settings.
type Config struct {
	Address  string
	Port     int
	Channels []string
	// Data forwards matched datagrams byte for byte.
	Data bool
	// Alarms forwards ALARM, RESET, IMGPATH, and PROCESS messages.
	Alarms bool
}

// Forwarder is a pipeline.Handler.
type Forwarder struct {
	cfg      Config
	channels map[string]bool
	conn     net.Conn
	sent     int
}

// New opens the UDP socket to the destination.
func New(env *pipeline.Environment, cfg Config) (*Forwarder, error) {
	sel, unknown := env.Select(cfg.Channels)
	if len(unknown) > 0 {
		return nil, errors.Wrapf(ErrUnknownChannel, "forward: %v", unknown)
	}

	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "forward: %s", addr)
	}

	f := &Forwarder{
		cfg:      cfg,
		channels: make(map[string]bool),
		conn:     conn,
	}
	for _, c := range sel {
		f.channels[c] = true
	}

	log.Printf("forward: %v to %s data %t alarms %t", sel, addr, cfg.Data, cfg.Alarms)

	return f, nil
}

func (f *Forwarder) Handle(m codec.Message, _ *pipeline.Flags) error {
	var b []byte

	switch v := m.(type) {
	case codec.Datagram:
		if !f.cfg.Data {
			return nil
		}
		if c, ok := codec.PeekChannel(v.Raw); !ok || !f.channels[c] {
			return nil
		}
		b = v.Raw
	default:
		if !f.cfg.Alarms {
			return nil
		}
		b = codec.Encode(m)
	}

	if _, err := f.conn.Write(b); err != nil {
		return errors.Wrap(err, "forward")
	}
	f.sent++

	return nil
}

// Sent is the number of messages forwarded.
func (f *Forwarder) Sent() int {
	return f.sent
}

func (f *Forwarder) Close() error {
	log.Printf("forward: %d messages sent to %s", f.sent, f.conn.RemoteAddr())
	return f.conn.Close()
}
