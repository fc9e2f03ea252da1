package storage

import (
	"context"
	"errors"
	"strconv"

	"pomotimer/internal/session"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("storage closed")

// StateStore holds the last known snapshot for instant cold-start reads. It is
// a display hint: the scheduler's live snapshot always supersedes it.
type StateStore interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, s session.Snapshot) error
	LoadSnapshot(ctx context.Context) (session.Snapshot, error)
	Close() error
}

// Encode flattens a snapshot into the documented key-value layout.
func Encode(s session.Snapshot) map[string]string {
	return map[string]string{
		session.KeySeconds:       strconv.Itoa(s.Seconds),
		session.KeyIsRunning:     strconv.FormatBool(s.IsRunning),
		session.KeyIsPaused:      strconv.FormatBool(s.IsPaused),
		session.KeyIsCountingUp:  strconv.FormatBool(s.IsCountingUp),
		session.KeyIsWorkSession: strconv.FormatBool(s.IsWorkSession),
	}
}

// Decode rebuilds a snapshot from stored values. Missing or unparsable keys
// take the default snapshot's value.
func Decode(values map[string]string) session.Snapshot {
	s := session.Default()
	if v, ok := values[session.KeySeconds]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			s.Seconds = n
		}
	}
	s.IsRunning = decodeBool(values, session.KeyIsRunning, s.IsRunning)
	s.IsPaused = decodeBool(values, session.KeyIsPaused, s.IsPaused)
	s.IsCountingUp = decodeBool(values, session.KeyIsCountingUp, s.IsCountingUp)
	s.IsWorkSession = decodeBool(values, session.KeyIsWorkSession, s.IsWorkSession)
	return s
}

func decodeBool(values map[string]string, key string, fallback bool) bool {
	v, ok := values[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
