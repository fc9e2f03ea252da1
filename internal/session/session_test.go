package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	d := Default()
	assert.Equal(t, 1500, d.Seconds)
	assert.True(t, d.IsWorkSession)
	assert.False(t, d.IsCountingUp)
	assert.Equal(t, StateStopped, d.State())
	assert.False(t, d.Active())
}

func TestState(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want RunState
	}{
		{"stopped", Snapshot{}, StateStopped},
		{"running", Snapshot{IsRunning: true}, StateRunning},
		{"paused", Snapshot{IsPaused: true}, StatePaused},
		{"both flags", Snapshot{IsRunning: true, IsPaused: true}, StatePaused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.State())
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, DefaultWorkSeconds, Snapshot{Seconds: -1}.Normalize().Seconds)
	assert.Equal(t, DefaultWorkSeconds, Snapshot{Seconds: 0}.Normalize().Seconds)
	assert.Equal(t, 0, Snapshot{Seconds: 0, IsCountingUp: true}.Normalize().Seconds)
	assert.Equal(t, 42, Snapshot{Seconds: 42}.Normalize().Seconds)
}

func TestEndPayload(t *testing.T) {
	assert.Equal(t, PayloadStartBreak, EndPayload(true, false))
	assert.Equal(t, PayloadCompletedAll, EndPayload(true, true))
	assert.Equal(t, PayloadStartWork, EndPayload(false, false))
	assert.Equal(t, PayloadStartWork, EndPayload(false, true))
}

func TestIntentClasses(t *testing.T) {
	for _, i := range []Intent{IntentPause, IntentResume, IntentStop} {
		assert.True(t, i.IsAction(), i)
		assert.False(t, i.IsPayload(), i)
	}
	for _, i := range []Intent{PayloadStartBreak, PayloadStartWork, PayloadCompletedAll, PayloadOpenApp} {
		assert.True(t, i.IsPayload(), i)
		assert.False(t, i.IsAction(), i)
	}
	assert.False(t, Intent("bogus").IsAction())
	assert.False(t, Intent("bogus").IsPayload())
}

func ExampleFormatSeconds() {
	fmt.Println(FormatSeconds(1500), FormatSeconds(59), FormatSeconds(3725))
	// Output: 25:00 00:59 1:02:05
}
