package session

import "fmt"

// Default session lengths, in seconds.
const (
	DefaultWorkSeconds  = 25 * 60
	DefaultBreakSeconds = 5 * 60
)

// Store keys. The persisted record and the wire format share these names.
const (
	KeySeconds       = "remainingOrElapsedSeconds"
	KeyIsRunning     = "isRunning"
	KeyIsPaused      = "isPaused"
	KeyIsCountingUp  = "isCountingUp"
	KeyIsWorkSession = "isWorkSession"
)

// RunState is derived from the snapshot flags.
type RunState string

const (
	StateStopped RunState = "stopped"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
)

// Snapshot is the complete state of the active (or default) session.
type Snapshot struct {
	Seconds       int  `json:"remainingOrElapsedSeconds" yaml:"remainingOrElapsedSeconds"`
	IsRunning     bool `json:"isRunning" yaml:"isRunning"`
	IsPaused      bool `json:"isPaused" yaml:"isPaused"`
	IsCountingUp  bool `json:"isCountingUp" yaml:"isCountingUp"`
	IsWorkSession bool `json:"isWorkSession" yaml:"isWorkSession"`
}

// Default returns the canonical stopped snapshot: a 25 minute work countdown.
func Default() Snapshot {
	return Snapshot{
		Seconds:       DefaultWorkSeconds,
		IsWorkSession: true,
	}
}

// State reports which of stopped, running or paused holds. Paused wins over
// running so a payload carrying both flags is treated as a halted session.
func (s Snapshot) State() RunState {
	switch {
	case s.IsPaused:
		return StatePaused
	case s.IsRunning:
		return StateRunning
	default:
		return StateStopped
	}
}

// Active reports whether a session is running or paused.
func (s Snapshot) Active() bool {
	return s.State() != StateStopped
}

// Normalize clamps the snapshot into a valid record. Negative seconds, and zero
// seconds in countdown mode, fall back to the default work length.
func (s Snapshot) Normalize() Snapshot {
	if s.Seconds < 0 || (s.Seconds == 0 && !s.IsCountingUp) {
		s.Seconds = DefaultWorkSeconds
	}
	return s
}

// Clock renders the seconds as MM:SS (or H:MM:SS past an hour).
func (s Snapshot) Clock() string {
	return FormatSeconds(s.Seconds)
}

// Kind names the session segment.
func (s Snapshot) Kind() string {
	if s.IsWorkSession {
		return "work"
	}
	return "break"
}

func FormatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
