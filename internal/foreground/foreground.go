// Package foreground reports whether the presentation window has focus. The
// scheduler withdraws its notifications while it does.
package foreground

import (
	"context"
	"strings"
)

// Focus describes the active window.
type Focus struct {
	Class    string // WM_CLASS class
	Instance string // WM_CLASS instance
	Title    string
}

// Watcher polls the windowing system and calls report on every foreground
// transition of the presentation window. Run blocks until ctx is done.
type Watcher interface {
	Run(ctx context.Context, report func(foreground bool)) error
	Close() error
}

// Tracker turns a stream of focus samples into transitions.
type Tracker struct {
	class string
	known bool
	last  bool
}

func NewTracker(windowClass string) *Tracker {
	return &Tracker{class: windowClass}
}

// Observe records a sample. It reports the foreground state and whether it
// differs from the previous sample. The first sample only counts as a change
// when the window is in the foreground.
func (t *Tracker) Observe(f Focus) (foreground, changed bool) {
	foreground = t.Matches(f)
	if !t.known {
		t.known = true
		t.last = foreground
		return foreground, foreground
	}
	changed = foreground != t.last
	t.last = foreground
	return foreground, changed
}

// Matches reports whether f is the presentation window.
func (t *Tracker) Matches(f Focus) bool {
	if t.class == "" {
		return false
	}
	return strings.EqualFold(f.Class, t.class) || strings.EqualFold(f.Instance, t.class)
}
