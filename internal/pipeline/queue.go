package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
)

// QueueSize is the capacity of the master queue and of every worker queue.
const QueueSize = 2048

// Queue is a bounded FIFO of messages.  Senders block while it is full.
type Queue chan codec.Message

// NewQueue returns an empty Queue with capacity QueueSize.
func NewQueue() Queue {
	return make(Queue, QueueSize)
}

// Flags is the back channel from a worker to the producer.  The worker raises messages
// and the producer polls and clears them after every datagram it publishes.
type Flags struct {
	stopped atomic.Bool

	mu     sync.Mutex
	outbox []codec.Message
}

// Alarm asks the producer to publish ALARM t.
func (f *Flags) Alarm(t time.Time) {
	f.Send(codec.Alarm{Time: t.UTC()})
}

// Reset asks the producer to publish RESET t.
func (f *Flags) Reset(t time.Time) {
	f.Send(codec.Reset{Time: t.UTC()})
}

// Send asks the producer to publish m.
func (f *Flags) Send(m codec.Message) {
	f.mu.Lock()
	f.outbox = append(f.outbox, m)
	f.mu.Unlock()
}

// Stop marks the worker as no longer alive.  The producer then shuts the pipeline down.
func (f *Flags) Stop() {
	f.stopped.Store(true)
}

// Alive is false once Stop has been called.
func (f *Flags) Alive() bool {
	return !f.stopped.Load()
}

// Poll returns and clears everything raised since the last Poll, in the order raised.
func (f *Flags) Poll() []codec.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.outbox
	f.outbox = nil

	return m
}
