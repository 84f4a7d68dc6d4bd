package pipeline

import (
	"context"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/metrics"
)

// Broadcaster copies every message from the master queue to each registered worker
// queue in order of registration.
type Broadcaster struct {
	in      Queue
	workers []Worker
}

// NewBroadcaster returns a Broadcaster draining in.
func NewBroadcaster(in Queue) *Broadcaster {
	return &Broadcaster{in: in}
}

// Register adds w.  Every worker must be registered before Run.
func (b *Broadcaster) Register(w Worker) {
	b.workers = append(b.workers, w)
}

// Workers returns the registered workers.
func (b *Broadcaster) Workers() []Worker {
	return b.workers
}

// Run delivers messages until it has forwarded TERM or ctx is done.  A full worker queue
// blocks delivery to it and to the workers after it; a worker that has stopped is skipped.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		var m codec.Message

		select {
		case <-ctx.Done():
			return nil
		case m = <-b.in:
		}

		for _, w := range b.workers {
			select {
			case w.Inbox() <- m:
				metrics.MsgTx()
			case <-w.Done():
			case <-ctx.Done():
				return nil
			}
		}

		if m.Kind() == codec.KindTerm {
			return nil
		}
	}
}
