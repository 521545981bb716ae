// Package bus implements the single in-process broadcast bus:
// bounded capacity, many producers via a clonable handle, many consumers
// via Subscribe, each published Message delivered to every active
// subscriber in FIFO order. A subscriber that falls more than Capacity
// messages behind sees a lagged(n) error on its next Recv and then
// resumes at the newest element rather than silently dropping messages.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
)

// ErrNoSubscribers is returned by Publish when there are zero active
// subscribers.
var ErrNoSubscribers = errors.New("bus: no subscribers")

// ErrClosed is returned by Recv once the bus has been closed and the
// subscriber's buffered backlog is drained.
var ErrClosed = errors.New("bus: closed")

// LaggedError reports that a subscriber missed n messages because it
// fell behind the bus's bounded capacity.
type LaggedError struct{ N int }

func (e *LaggedError) Error() string { return fmt.Sprintf("bus: lagged(%d)", e.N) }

// Bus is a bounded, multi-producer multi-consumer fan-out of
// cdevents.Message values.
type Bus struct {
	capacity int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New constructs a Bus with the given bounded per-subscriber capacity.
// A non-positive capacity falls back to the design baseline of 100.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 100
	}
	return &Bus{capacity: capacity, subs: make(map[*Subscription]struct{})}
}

// Publish implements cdevents.Publisher: delivers msg to every active
// subscriber. A subscriber whose buffer is full drops its oldest buffered
// message and counts it as lag instead of blocking the publisher; it will
// see a LaggedError on its next Recv. Publishing on a closed bus returns
// ErrClosed.
func (b *Bus) Publish(msg *cdevents.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if len(b.subs) == 0 {
		return ErrNoSubscribers
	}
	for sub := range b.subs {
		sub.deliver(msg)
	}
	return nil
}

// Subscribe registers a new consumer handle. Each sink task holds exactly
// one Subscription.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		capacity: b.capacity,
		buf:      make([]*cdevents.Message, 0, b.capacity),
		notify:   make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	sub.bus = b
	return sub
}

// Unsubscribe removes sub from the bus's fan-out set.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Close marks the bus closed; subscribers drain their backlog and then
// observe ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.closeNotify()
	}
}

// SubscriberCount reports the number of active subscribers, mainly for
// orchestrator startup checks and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is one consumer handle: a bounded ring buffer with its own
// cursor, guarded by its own mutex so Publish never blocks on a slow
// consumer.
type Subscription struct {
	bus          *Bus
	mu           sync.Mutex
	buf          []*cdevents.Message
	capacity     int
	lagged       int
	notify       chan struct{}
	closed       bool
	notifyClosed bool
}

// closeNotify closes the notify channel at most once, guarding against
// the bus closing it (Bus.Close) and the subscription closing it
// (Subscription.Close) racing each other.
func (s *Subscription) closeNotify() {
	s.mu.Lock()
	already := s.notifyClosed
	s.notifyClosed = true
	s.mu.Unlock()
	if !already {
		close(s.notify)
	}
}

// deliver appends msg to the subscriber's ring buffer, dropping the
// oldest buffered message (and counting it as lag) once the buffer is
// full.
func (s *Subscription) deliver(msg *cdevents.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= s.capacity {
		s.buf = s.buf[1:]
		s.lagged++
	}
	s.buf = append(s.buf, msg)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv blocks until a message is available, the subscription lags, or the
// bus closes and the backlog drains. On lag it returns (nil, *LaggedError)
// and resumes at the newest buffered element on the next call.
func (s *Subscription) Recv() (*cdevents.Message, error) {
	for {
		s.mu.Lock()
		if s.lagged > 0 {
			n := s.lagged
			s.lagged = 0
			s.mu.Unlock()
			return nil, &LaggedError{N: n}
		}
		if len(s.buf) > 0 {
			msg := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return msg, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		_, ok := <-s.notify
		if !ok {
			s.mu.Lock()
			s.closed = true
			hasBacklog := len(s.buf) > 0 || s.lagged > 0
			s.mu.Unlock()
			if !hasBacklog {
				return nil, ErrClosed
			}
		}
	}
}

// Close detaches the subscription from its bus and unblocks any pending
// Recv with ErrClosed. Call exactly once a sink task is done consuming.
func (s *Subscription) Close() {
	if s.bus != nil {
		s.bus.Unsubscribe(s)
	}
	s.closeNotify()
}
