package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"pomotimer/internal/session"
)

// Notification ids. They are stable so updates replace the shown notification.
const (
	TimerNotificationID      = 100
	SessionEndNotificationID = 101
)

// Urgency mirrors the freedesktop urgency levels.
type Urgency uint8

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyHigh
)

// Profile is a pre-registered presentation profile.
type Profile struct {
	Name    string
	Urgency Urgency
	Audible bool
}

var (
	ProfileTimer            = Profile{Name: "timer", Urgency: UrgencyHigh, Audible: false}
	ProfileSessionEnd       = Profile{Name: "session_end", Urgency: UrgencyHigh, Audible: true}
	ProfileSessionEndSilent = Profile{Name: "session_end_silent", Urgency: UrgencyHigh, Audible: false}
)

// Action is a button rendered on a notification.
type Action struct {
	Intent session.Intent
	Label  string
}

// Notification is what a Renderer shows. Payload is the intent delivered when
// the body itself is tapped.
type Notification struct {
	ID       int
	Profile  Profile
	Title    string
	Body     string
	Actions  []Action
	Payload  session.Intent
	Progress int // percent, -1 when unknown
}

// Renderer draws and removes notifications on the host.
type Renderer interface {
	Render(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id int) error
}

// ActionSource is implemented by renderers that report taps.
type ActionSource interface {
	OnAction(func(id int, intent session.Intent))
}

// CloseSource is implemented by renderers that report notifications the user
// dismissed on the host.
type CloseSource interface {
	OnClosed(func(id int))
}

// Manager tracks which notifications are shown and renders session state.
type Manager struct {
	renderer Renderer
	timeout  time.Duration
	sound    atomic.Bool

	mu      sync.Mutex
	active  map[int]bool
	pending map[int]bool // render in flight
	revoked map[int]bool // cancelled while pending
	handler func(session.Intent)
}

func NewManager(renderer Renderer, soundEnabled bool) *Manager {
	m := &Manager{
		renderer: renderer,
		timeout:  2 * time.Second,
		active:   make(map[int]bool),
		pending:  make(map[int]bool),
		revoked:  make(map[int]bool),
	}
	m.sound.Store(soundEnabled)
	if src, ok := renderer.(ActionSource); ok {
		src.OnAction(m.dispatch)
	}
	if src, ok := renderer.(CloseSource); ok {
		src.OnClosed(m.Forget)
	}
	return m
}

// SetSoundEnabled switches the session-end profile. It is safe to call from
// the config watcher.
func (m *Manager) SetSoundEnabled(enabled bool) {
	m.sound.Store(enabled)
}

func (m *Manager) SoundEnabled() bool {
	return m.sound.Load()
}

// HandleActions registers the receiver of notification taps.
func (m *Manager) HandleActions(handler func(session.Intent)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

func (m *Manager) dispatch(id int, intent session.Intent) {
	m.mu.Lock()
	handler := m.handler
	if id == SessionEndNotificationID {
		// Tapping a one-shot notification dismisses it.
		delete(m.active, id)
	}
	m.mu.Unlock()
	if handler == nil {
		log.Printf("Notify: action %s on #%d with no handler", intent, id)
		return
	}
	handler(intent)
}

// ProgressNotification builds the in-progress notification for snap. total is
// the segment length in seconds, used for the progress percentage.
func ProgressNotification(snap session.Snapshot, total int) Notification {
	n := Notification{
		ID:       TimerNotificationID,
		Profile:  ProfileTimer,
		Payload:  session.PayloadOpenApp,
		Progress: -1,
	}
	kind := "Work"
	if !snap.IsWorkSession {
		kind = "Break"
	}
	if snap.State() == session.StatePaused {
		n.Title = fmt.Sprintf("%s session paused", kind)
		n.Actions = []Action{{Intent: session.IntentResume, Label: "Resume"}, {Intent: session.IntentStop, Label: "Stop"}}
	} else {
		n.Title = fmt.Sprintf("%s session in progress", kind)
		n.Actions = []Action{{Intent: session.IntentPause, Label: "Pause"}, {Intent: session.IntentStop, Label: "Stop"}}
	}
	if snap.IsCountingUp {
		n.Body = fmt.Sprintf("Elapsed %s", snap.Clock())
	} else {
		n.Body = fmt.Sprintf("%s remaining", snap.Clock())
		if total > 0 && snap.Seconds <= total {
			n.Progress = (total - snap.Seconds) * 100 / total
		}
	}
	return n
}

// SessionEndNotification builds the one-shot notification shown when a
// countdown reaches zero. nextWork is the segment that comes next.
func SessionEndNotification(nextWork bool, payload session.Intent, audible bool) Notification {
	n := Notification{
		ID:       SessionEndNotificationID,
		Profile:  ProfileSessionEndSilent,
		Payload:  payload,
		Progress: -1,
	}
	if audible {
		n.Profile = ProfileSessionEnd
	}
	switch {
	case payload == session.PayloadCompletedAll:
		n.Title = "All sessions completed"
		n.Body = "Great work. Take a long rest."
	case nextWork:
		n.Title = "Break is over"
		n.Body = "Time to get back to work."
	default:
		n.Title = "Work session finished"
		n.Body = "Time for a break."
	}
	return n
}

// ShowProgress renders or updates the in-progress notification.
func (m *Manager) ShowProgress(ctx context.Context, snap session.Snapshot, total int) {
	m.render(ctx, ProgressNotification(snap, total))
}

// ShowSessionEnd renders the session-end notification with the profile picked
// by the current sound preference.
func (m *Manager) ShowSessionEnd(ctx context.Context, nextWork bool, payload session.Intent) {
	m.render(ctx, SessionEndNotification(nextWork, payload, m.sound.Load()))
}

func (m *Manager) render(ctx context.Context, n Notification) {
	m.mu.Lock()
	m.pending[n.ID] = true
	delete(m.revoked, n.ID)
	m.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.renderer.Render(rctx, n)
	cancel()

	m.mu.Lock()
	delete(m.pending, n.ID)
	revoked := m.revoked[n.ID]
	delete(m.revoked, n.ID)
	if err == nil && !revoked {
		m.active[n.ID] = true
	}
	m.mu.Unlock()

	if err != nil {
		log.Printf("Notify: failed to render #%d (%s): %v", n.ID, n.Profile.Name, err)
		return
	}
	if revoked {
		// A cancel arrived while the host was drawing it.
		m.withdraw(ctx, n.ID)
	}
}

// Cancel removes notification id. Ids that are neither shown nor being
// rendered are ignored. It reports whether a cancel was issued.
func (m *Manager) Cancel(ctx context.Context, id int) bool {
	m.mu.Lock()
	shown := m.active[id]
	inFlight := m.pending[id]
	delete(m.active, id)
	if inFlight {
		m.revoked[id] = true
	}
	m.mu.Unlock()

	if shown {
		m.withdraw(ctx, id)
	}
	return shown || inFlight
}

func (m *Manager) withdraw(ctx context.Context, id int) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.renderer.Cancel(ctx, id); err != nil {
		log.Printf("Notify: failed to cancel #%d: %v", id, err)
	}
}

// CancelAll removes the timer and session-end notifications.
func (m *Manager) CancelAll(ctx context.Context) {
	m.Cancel(ctx, TimerNotificationID)
	m.Cancel(ctx, SessionEndNotificationID)
}

// Active reports whether id is currently shown.
func (m *Manager) Active(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// Forget drops id from the active set without calling the renderer, for
// notifications the host closed on its own.
func (m *Manager) Forget(id int) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}
