package scheduler

import (
	"context"
	"log"
	"time"

	"pomotimer/internal/session"
	"pomotimer/internal/storage"
)

// writer persists snapshots off the run loop. Only the latest pending
// snapshot is kept: a slow store sees fewer writes, never stale ones.
type writer struct {
	store   storage.StateStore
	timeout time.Duration
	onFail  func()
	pending chan session.Snapshot
}

func newWriter(store storage.StateStore, timeout time.Duration, onFail func()) *writer {
	return &writer{
		store:   store,
		timeout: timeout,
		onFail:  onFail,
		pending: make(chan session.Snapshot, 1),
	}
}

// submit replaces any pending snapshot with snap. It must only be called from
// the run loop.
func (w *writer) submit(snap session.Snapshot) {
	select {
	case w.pending <- snap:
		return
	default:
	}
	select {
	case <-w.pending:
	default:
	}
	select {
	case w.pending <- snap:
	default:
	}
}

func (w *writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Flush what the loop left behind before exiting.
			select {
			case snap := <-w.pending:
				w.save(snap)
			default:
			}
			return
		case snap := <-w.pending:
			w.save(snap)
		}
	}
}

// save runs detached from run's context so the final flush still lands.
func (w *writer) save(snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("Scheduler: failed to persist state: %v", err)
		if w.onFail != nil {
			w.onFail()
		}
	}
}
