package ipc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomotimer/internal/session"
)

func TestDecodeArgsFromWire(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"name":"start","args":{"seconds":90,"isRunning":true}}`), &cmd))

	var args StartArgs
	require.NoError(t, DecodeArgs(cmd.Args, &args))
	require.NotNil(t, args.Seconds)
	assert.Equal(t, 90, *args.Seconds)
	require.NotNil(t, args.IsRunning)
	assert.True(t, *args.IsRunning)
	assert.Nil(t, args.IsWorkSession)
}

func TestDecodeArgsNil(t *testing.T) {
	var args CancelNotificationArgs
	require.NoError(t, DecodeArgs(nil, &args))
	assert.Nil(t, args.ID)
}

func TestDecodeArgsWrongType(t *testing.T) {
	var args AckSessionEndArgs
	err := DecodeArgs(map[string]interface{}{"isWorkSession": "nope"}, &args)
	assert.Error(t, err)
}

func TestFrameCarriesState(t *testing.T) {
	f := NewFrame(session.Snapshot{Seconds: 3, IsRunning: true, IsPaused: true})
	assert.Equal(t, session.StatePaused, f.State)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"snapshot":{"remainingOrElapsedSeconds":3,"isRunning":true,"isPaused":true,"isCountingUp":false,"isWorkSession":false},"state":"paused"}`, string(data))
}
