package engine

import (
	"context"
	"sync"
)

// Outcome is the result of a submitted chain.
type Outcome struct {
	Result Result
	Err    error
}

// pending is one submitted chain waiting for the Run loop.
type pending struct {
	ctx  context.Context
	req  Request
	fn   ChainFunc
	done chan Outcome
}

// chainQueue is a thread-safe FIFO of submitted chains.
//
// The queue is unbounded so that Submit never blocks a producer. A buffered
// signal channel of size 1 coalesces wake-ups for the Run loop.
type chainQueue struct {
	mu     sync.Mutex
	items  []*pending
	closed bool
	signal chan struct{}
}

func newChainQueue() *chainQueue {
	return &chainQueue{
		items:  make([]*pending, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds p to the back of the queue.
// Returns false if the queue is closed.
func (q *chainQueue) Enqueue(p *pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, p)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front item without blocking.
func (q *chainQueue) TryDequeue() (*pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	p := q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed when the queue closes.
func (q *chainQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *chainQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *chainQueue) closedAndEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close stops accepting new items and returns whatever was still queued.
func (q *chainQueue) Close() []*pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)
	rest := q.items
	q.items = nil
	return rest
}
