package scheduler

import (
	"sync"

	"pomotimer/internal/session"
)

// message is one entry on the run loop's queue. Exactly one field is set.
type message struct {
	cmd        session.Command
	query      chan session.Snapshot
	foreground *bool
	attached   bool
	withdraw   []int
	restored   bool
}

// queue is an unbounded FIFO. push never blocks; signal carries at most one
// pending wake-up for the run loop, which then drains everything queued.
type queue struct {
	mu     sync.Mutex
	items  []message
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(m message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) drain() []message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
