// Package bridge relays scheduler snapshots to at most one attached listener.
//
// Delivery is best effort and never blocks the publisher. A listener that
// misses snapshots while detached (or while its buffer is full) recovers
// from the persisted cold state.
package bridge

import (
	"sync"

	"pomotimer/internal/session"
)

// DefaultBuffer is used when Attach is called with a non-positive buffer.
const DefaultBuffer = 16

type slot struct {
	id uint64
	ch chan session.Snapshot
}

// Bridge is a single-slot, replaceable sink.
type Bridge struct {
	mu      sync.Mutex
	current *slot
	nextID  uint64
	dropped uint64

	// OnDrop, when set, is called for every snapshot discarded to make room.
	OnDrop func()
}

func New() *Bridge {
	return &Bridge{}
}

// Attach installs a new listener and closes the previous one, if any. Only
// snapshots published after Attach returns are delivered. The returned detach
// func clears the slot only while this listener still owns it.
func (b *Bridge) Attach(buffer int) (<-chan session.Snapshot, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan session.Snapshot, buffer)

	b.mu.Lock()
	b.nextID++
	s := &slot{id: b.nextID, ch: ch}
	previous := b.current
	b.current = s
	if previous != nil {
		close(previous.ch)
	}
	b.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.current != nil && b.current.id == s.id {
				close(s.ch)
				b.current = nil
			}
		})
	}
	return ch, detach
}

// Detach clears the slot. Detaching with no listener is a no-op.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		close(b.current.ch)
		b.current = nil
	}
}

// Attached reports whether a listener currently owns the slot.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

// Publish hands snap to the listener without blocking. It reports whether a
// listener received it. When the listener's buffer is full the oldest queued
// snapshot is discarded so the newest always lands.
func (b *Bridge) Publish(snap session.Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return false
	}
	ch := b.current.ch
	for {
		select {
		case ch <- snap:
			return true
		default:
		}
		select {
		case <-ch:
			b.dropped++
			if b.OnDrop != nil {
				b.OnDrop()
			}
		default:
		}
	}
}

// Dropped returns how many snapshots were discarded on full buffers.
func (b *Bridge) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
