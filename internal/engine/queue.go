package engine

import "sync"

// eventQueue is a thread-safe FIFO queue.
//
// A positive limit bounds the queue: pushing onto a full queue drops the
// oldest entry. The trigger queue uses a limit of 1 so any number of pending
// sync requests collapse into one pass; subscriber queues use a larger limit
// so a stalled reader cannot grow memory without bound.
//
// The queue uses a channel for signaling so readers can wait on it in a
// select together with ctx.Done().
type eventQueue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped int
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newEventQueue[T any](limit int) *eventQueue[T] {
	return &eventQueue[T]{
		items:  make([]T, 0, 8),
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds v to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue[T]) Enqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.limit > 0 && len(q.items) >= q.limit {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, v)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front entry without blocking.
func (q *eventQueue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Wait returns a channel that signals when entries may be available.
// The channel is closed by Close.
func (q *eventQueue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many entries were discarded by the limit.
func (q *eventQueue[T]) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Closed reports whether Close has been called.
func (q *eventQueue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes all waiters.
func (q *eventQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
