// Package notifytest provides a recording notify.Renderer for tests.
package notifytest

import (
	"context"
	"sync"

	"pomotimer/internal/notify"
	"pomotimer/internal/session"
)

// Recorder captures every render and cancel call.
type Recorder struct {
	mu       sync.Mutex
	rendered []notify.Notification
	canceled []int
	onAction func(int, session.Intent)
	onClosed func(int)

	// RenderErr, when set, is returned from Render.
	RenderErr error
}

func (r *Recorder) Render(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RenderErr != nil {
		return r.RenderErr
	}
	r.rendered = append(r.rendered, n)
	return nil
}

func (r *Recorder) Cancel(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, id)
	return nil
}

func (r *Recorder) OnAction(fn func(int, session.Intent)) {
	r.mu.Lock()
	r.onAction = fn
	r.mu.Unlock()
}

func (r *Recorder) OnClosed(fn func(int)) {
	r.mu.Lock()
	r.onClosed = fn
	r.mu.Unlock()
}

// Tap simulates the user pressing a button (or the body) of notification id.
func (r *Recorder) Tap(id int, intent session.Intent) {
	r.mu.Lock()
	fn := r.onAction
	r.mu.Unlock()
	if fn != nil {
		fn(id, intent)
	}
}

// Dismiss simulates the user closing notification id on the host.
func (r *Recorder) Dismiss(id int) {
	r.mu.Lock()
	fn := r.onClosed
	r.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

func (r *Recorder) Rendered() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.rendered...)
}

// RenderedID returns renders of notification id, oldest first.
func (r *Recorder) RenderedID(id int) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.rendered {
		if n.ID == id {
			out = append(out, n)
		}
	}
	return out
}

func (r *Recorder) Canceled() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.canceled...)
}

// CancelCount returns how many times id was cancelled.
func (r *Recorder) CancelCount(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.canceled {
		if c == id {
			n++
		}
	}
	return n
}
