package engine

import (
	"context"
	"sync"
)

// EventKind distinguishes broadcast events.
type EventKind string

const (
	// EventSnapshot is published after the mirror has been rewritten.
	EventSnapshot EventKind = "snapshot"

	// EventStatus is published when the status projection may have changed.
	EventStatus EventKind = "status"

	// EventRevalidate is published after a replay pass so views that render
	// server data can reload it.
	EventRevalidate EventKind = "revalidate"
)

// Event is one broadcast notification.
type Event struct {
	Seq    int64     `json:"seq"`
	Kind   EventKind `json:"kind"`
	Hash   string    `json:"hash,omitempty"`
	Status *Status   `json:"status,omitempty"`
}

// subscriberBacklog bounds each subscriber's queue.
const subscriberBacklog = 256

// Subscription receives broadcast events in publish order.
//
// Readers wait on Wait() and drain with Next():
//
//	for {
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case <-sub.Wait():
//	        for ev, ok := sub.Next(); ok; ev, ok = sub.Next() {
//	            ...
//	        }
//	    }
//	}
type Subscription struct {
	hub   *hub
	queue *eventQueue[Event]
}

// Wait returns a channel that signals when events may be available. It is
// closed when the subscription is closed.
func (s *Subscription) Wait() <-chan struct{} {
	return s.queue.Wait()
}

// Next returns the oldest undelivered event without blocking.
func (s *Subscription) Next() (Event, bool) {
	return s.queue.TryDequeue()
}

// Receive blocks until an event arrives, ctx is done or the subscription
// is closed.
func (s *Subscription) Receive(ctx context.Context) (Event, error) {
	for {
		if ev, ok := s.queue.TryDequeue(); ok {
			return ev, nil
		}
		if s.queue.Closed() {
			return Event{}, context.Canceled
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Dropped reports how many events were discarded because the reader fell
// behind.
func (s *Subscription) Dropped() int {
	return s.queue.Dropped()
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.queue.Close()
}

// hub fans events out to subscriptions.
type hub struct {
	mu    sync.Mutex
	subs  map[*Subscription]struct{}
	clock *Clock
}

func newHub() *hub {
	return &hub{
		subs:  make(map[*Subscription]struct{}),
		clock: NewClock(),
	}
}

func (h *hub) subscribe() *Subscription {
	s := &Subscription{hub: h, queue: newEventQueue[Event](subscriberBacklog)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *hub) publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev.Seq = h.clock.Next()
	for s := range h.subs {
		s.queue.Enqueue(ev)
	}
	return ev
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
