package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/GeoNet/kit/health"
	"github.com/GeoNet/kit/slogger"
	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/metrics"
	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
)

const (
	// DataTimeout is how long probing waits for a datagram.
	DataTimeout = 15 * time.Second

	// JoinWindow bounds how long tasks are given to stop after TERM.
	JoinWindow = 3 * time.Second

	// maxBlocked bounds the blocked sender list.
	maxBlocked = 64

	// pollInterval is the longest the producer waits between flag polls.
	pollInterval = time.Second
)

// Producer owns the UDP socket.  It locks onto the first sender and publishes its
// datagrams, and the messages raised by workers, on the master queue.
type Producer struct {
	// Timeout bounds the wait for data while probing.
	Timeout time.Duration
	// Health, when set, is marked ok for every published datagram.
	Health *health.Service
	Debug  bool

	conn    net.PacketConn
	port    int
	out     Queue
	workers []Worker
	buf     []byte
	log     *slogger.SmartLogger

	mu      sync.Mutex
	sender  net.IP
	blocked *lru.Cache
	seen    map[string]time.Time
}

// Listen opens the UDP port with address reuse.  Port 0 picks a free port.
func Listen(ctx context.Context, port int) (*Producer, error) {
	lc := reuseAddrListenConfig()

	conn, err := lc.ListenPacket(ctx, "udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "opening port %d", port)
	}

	p := &Producer{
		Timeout: DataTimeout,
		conn:    conn,
		port:    port,
		out:     NewQueue(),
		buf:     make([]byte, codec.MaxDatagram),
		log:     slogger.NewSmartLogger(time.Minute, "dropped datagram from blocked sender"),
		blocked: lru.New(maxBlocked),
		seen:    make(map[string]time.Time),
	}

	p.blocked.OnEvicted = func(key lru.Key, _ interface{}) {
		delete(p.seen, key.(string))
	}

	if a, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		p.port = a.Port
	}

	return p, nil
}

// Addr is the local address of the socket.
func (p *Producer) Addr() net.Addr {
	return p.conn.LocalAddr()
}

// Out is the master queue.
func (p *Producer) Out() Queue {
	return p.out
}

// Watch adds workers whose flags are polled after every datagram.
func (p *Producer) Watch(w ...Worker) {
	p.workers = append(p.workers, w...)
}

// Close closes the socket.
func (p *Producer) Close() error {
	return p.conn.Close()
}

// Sender returns the locked sender address, nil before the first datagram.
func (p *Producer) Sender() net.IP {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sender
}

// Blocked returns the addresses of senders whose datagrams were dropped.
func (p *Producer) Blocked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b []string
	for k := range p.seen {
		b = append(b, k)
	}
	sort.Strings(b)

	return b
}

// Probe reads datagrams until the stream parameters are known and returns them as an
// Environment for station.  Datagrams read while probing are not published.
func (p *Producer) Probe(station string) (*Environment, error) {
	next := func() ([]byte, error) {
		return p.read(p.Timeout)
	}

	tf, first, err := codec.ProbeTransmission(next)
	if err != nil {
		return nil, errors.Wrap(err, "probing transmission period")
	}

	sps, err := codec.SampleRate(first, tf)
	if err != nil {
		return nil, err
	}

	channels, err := codec.ProbeChannels(next)
	if err != nil {
		return nil, errors.Wrap(err, "probing channels")
	}

	log.Printf("stream from %s: %g ms per packet, %d sps, channels %v", p.Sender(), tf, sps, channels)

	return &Environment{
		Network:    Network,
		Station:    station,
		Port:       p.port,
		Tf:         tf,
		SampleRate: sps,
		Channels:   channels,
		Debug:      p.Debug,
	}, nil
}

// Run publishes datagrams until ctx is done, a watched worker stops, the socket fails,
// or the sender transmits TERM.  It publishes TERM once before returning.
func (p *Producer) Run(ctx context.Context) error {
	defer p.term()

	for {
		if ctx.Err() != nil {
			log.Println("producer: interrupted")
			return nil
		}

		b, err := p.read(pollInterval)
		switch {
		case errors.Cause(err) == codec.ErrNoDataReceived:
		case err != nil:
			return errors.Wrap(err, "reading datagram")
		case bytes.Equal(bytes.TrimSpace(b), []byte("TERM")):
			log.Println("producer: stream ended")
			return nil
		default:
			if p.Debug {
				log.Printf("producer: %s", b)
			}
			if !p.publish(ctx, codec.Datagram{Raw: b}) {
				return nil
			}
			metrics.MsgRx()
			if p.Health != nil {
				p.Health.Ok()
			}
		}

		if !p.poll(ctx) {
			return nil
		}
	}
}

// poll publishes the messages raised by workers.  It is false once any worker has stopped.
func (p *Producer) poll(ctx context.Context) bool {
	alive := true

	for _, w := range p.workers {
		f := w.Flags()

		for _, m := range f.Poll() {
			log.Printf("%s: %s", w.Name(), codec.Encode(m))
			if !p.publish(ctx, m) {
				return false
			}
		}

		if !f.Alive() {
			log.Printf("producer: %s has stopped", w.Name())
			alive = false
		}
	}

	return alive
}

func (p *Producer) publish(ctx context.Context, m codec.Message) bool {
	select {
	case p.out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Producer) term() {
	select {
	case p.out <- codec.Term{}:
	case <-time.After(JoinWindow):
		log.Println("producer: master queue full, TERM not sent")
	}
}

// read returns the next datagram from the locked sender.  It returns codec.ErrNoDataReceived
// when timeout passes without one.
func (p *Producer) read(timeout time.Duration) ([]byte, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	for {
		n, addr, err := p.conn.ReadFrom(p.buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, codec.ErrNoDataReceived
			}
			return nil, err
		}

		if !p.accept(addr) {
			continue
		}

		b := make([]byte, n)
		copy(b, p.buf[:n])

		return b, nil
	}
}

// accept locks onto the first sender and reports whether addr is that sender.
// Only the IP is compared.
func (p *Producer) accept(addr net.Addr) bool {
	var ip net.IP
	if a, ok := addr.(*net.UDPAddr); ok {
		ip = a.IP
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sender == nil {
		p.sender = ip
		log.Printf("producer: locked to sender %s", ip)
		return true
	}

	if p.sender.Equal(ip) {
		return true
	}

	metrics.MsgBlocked()

	key := ip.String()
	if _, ok := p.blocked.Get(key); !ok {
		p.blocked.Add(key, true)
		p.seen[key] = time.Now().UTC()
		log.Printf("producer: blocking datagrams from %s, already locked to %s", key, p.sender)
		return false
	}

	p.log.Log("dropped datagram from blocked sender", key)

	return false
}
