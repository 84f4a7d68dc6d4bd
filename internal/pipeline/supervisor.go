package pipeline

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run starts the producer, broadcaster, and every worker registered with b, and waits
// for them.  Cancelling ctx makes the producer publish TERM.  Once the producer has
// returned the other tasks have JoinWindow to finish before they are cancelled.
// It returns the first task error.
func Run(ctx context.Context, p *Producer, b *Broadcaster) error {
	inner, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Watch(b.Workers()...)

	var g errgroup.Group

	g.Go(func() error {
		err := p.Run(ctx)

		time.AfterFunc(JoinWindow, func() {
			if inner.Err() == nil {
				log.Printf("tasks still running %s after TERM, cancelling", JoinWindow)
				cancel()
			}
		})

		return err
	})

	g.Go(func() error {
		return b.Run(inner)
	})

	for _, w := range b.Workers() {
		w := w
		g.Go(func() error {
			return w.Run(inner)
		})
	}

	return g.Wait()
}
