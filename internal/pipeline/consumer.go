package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/GeoNet/kit/slogger"
	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/metrics"
	"github.com/pkg/errors"
)

// Worker is a task fed by the broadcaster.
type Worker interface {
	Name() string
	Inbox() Queue
	Flags() *Flags
	// Done is closed when Run has returned.
	Done() <-chan struct{}
	Run(ctx context.Context) error
}

// Handler is the worker specific part of a Consumer.  Handle sees every message except
// TERM, in queue order.
type Handler interface {
	Handle(m codec.Message, f *Flags) error
}

// Cycler is implemented by handlers that work once per drained burst of messages.
type Cycler interface {
	Cycle(f *Flags) error
}

// Closer is implemented by handlers with state to flush when they stop.
type Closer interface {
	Close() error
}

// Consumer runs a Handler over its own queue.  It implements Worker.
type Consumer struct {
	name    string
	handler Handler
	inbox   Queue
	flags   Flags
	done    chan struct{}
	log     *slogger.SmartLogger
}

// NewConsumer returns a Consumer with a fresh queue.
func NewConsumer(name string, h Handler) *Consumer {
	return &Consumer{
		name:    name,
		handler: h,
		inbox:   NewQueue(),
		done:    make(chan struct{}),
		log:     slogger.NewSmartLogger(10*time.Second, ""),
	}
}

func (c *Consumer) Name() string {
	return c.name
}

func (c *Consumer) Inbox() Queue {
	return c.inbox
}

func (c *Consumer) Flags() *Flags {
	return &c.flags
}

func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Run handles messages until TERM, a fatal error, MaxFailures consecutive failing cycles,
// or ctx is done.  The handler is closed in every case.  Run returns nil after TERM or
// cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	defer close(c.done)

	var failures int

	for {
		var m codec.Message

		select {
		case <-ctx.Done():
			return c.close(nil)
		case m = <-c.inbox:
		}

		term, err := c.drain(m)
		if err == nil && !term {
			if cy, ok := c.handler.(Cycler); ok {
				err = cy.Cycle(&c.flags)
			}
		}

		switch {
		case err == nil:
			failures = 0
		case IsFatal(err):
			c.flags.Stop()
			log.Printf("%s: stopping: %s", c.name, err)
			return c.close(errors.Wrap(err, c.name))
		default:
			metrics.MsgErr()
			failures++
			c.log.Log(c.name+":", err)
			if failures >= MaxFailures {
				c.flags.Stop()
				log.Printf("%s: stopping after %d consecutive failures", c.name, failures)
				return c.close(errors.Wrapf(err, "%s: %d consecutive failures", c.name, failures))
			}
		}

		if term {
			return c.close(nil)
		}
	}
}

// drain handles m and the messages already queued behind it, up to TERM or QueueSize
// messages.  It returns the first error.
func (c *Consumer) drain(m codec.Message) (bool, error) {
	var first error

	for i := 0; ; i++ {
		if m.Kind() == codec.KindTerm {
			return true, first
		}

		switch err := c.handler.Handle(m, &c.flags); {
		case err == nil:
			metrics.MsgProc()
		case IsFatal(err):
			return false, err
		case first == nil:
			first = err
		}

		if i >= QueueSize {
			return false, first
		}

		select {
		case m = <-c.inbox:
		default:
			return false, first
		}
	}
}

func (c *Consumer) close(err error) error {
	if cl, ok := c.handler.(Closer); ok {
		if cerr := cl.Close(); cerr != nil {
			log.Printf("%s: closing: %s", c.name, cerr)
			if err == nil {
				err = errors.Wrapf(cerr, "%s: closing", c.name)
			}
		}
	}

	return err
}
