package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pomotimer/internal/session"
)

func TestDecodeEmptyGivesDefault(t *testing.T) {
	assert.Equal(t, session.Default(), Decode(nil))
	assert.Equal(t, session.Default(), Decode(map[string]string{}))
}

func TestDecodeToleratesBadValues(t *testing.T) {
	got := Decode(map[string]string{
		session.KeySeconds:       "-4",
		session.KeyIsRunning:     "maybe",
		session.KeyIsCountingUp:  "true",
		session.KeyIsWorkSession: "false",
	})
	assert.Equal(t, session.Snapshot{
		Seconds:       session.DefaultWorkSeconds,
		IsCountingUp:  true,
		IsWorkSession: false,
	}, got)
}

func TestEncodeDecode(t *testing.T) {
	s := session.Snapshot{Seconds: 42, IsRunning: true, IsPaused: true, IsWorkSession: false}
	values := Encode(s)
	assert.Len(t, values, 5)
	assert.Equal(t, "42", values[session.KeySeconds])
	assert.Equal(t, s, Decode(values))
}
