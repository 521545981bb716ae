// Package sink implements the consumer side of the broadcast bus:
// debug (structured log), folder (one JSON file per message), http (POST
// per message), and db (insert into a lake table). Each sink subscribes
// independently, so a failing sink never blocks or drops messages for
// any other sink.
package sink

import (
	"context"

	"github.com/cdviz-collector/cdviz-collector/internal/bus"
	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
)

// Sink consumes messages from its own Subscription until the bus closes
// or ctx is cancelled.
type Sink interface {
	Run(ctx context.Context, sub *bus.Subscription) error
}

// runLoop is the shared consume loop every sink wraps: Recv, dispatch to
// handle, log-and-continue on any error (lag or handle failure), return
// on ErrClosed or ctx cancellation. A sink's own handle failures never
// stop the loop, preserving per-sink isolation: one failing
// sink must not affect delivery to any other subscriber.
func runLoop(ctx context.Context, sub *bus.Subscription, handle func(*cdevents.Message) error, onErr func(error)) error {
	type received struct {
		msg *cdevents.Message
		err error
	}
	ch := make(chan received)

	go func() {
		for {
			msg, err := sub.Recv()
			select {
			case ch <- received{msg, err}:
			case <-ctx.Done():
				return
			}
			if err == bus.ErrClosed {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-ch:
			if r.err != nil {
				if r.err == bus.ErrClosed {
					return nil
				}
				onErr(r.err)
				continue
			}
			if err := handle(r.msg); err != nil {
				onErr(err)
			}
		}
	}
}
