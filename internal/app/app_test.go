package app

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomotimer/internal/config"
	"pomotimer/internal/ipc"
	"pomotimer/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	// Unix socket paths are length limited; keep it short.
	dir, err := os.MkdirTemp("", "pomo")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	return &config.Config{
		DatabasePath: filepath.Join(dir, "state.db"),
		SocketPath:   filepath.Join(dir, "s.sock"),
		TickInterval: time.Second,
		Pomodoro: config.PomodoroConfig{
			WorkMinutes:      25,
			BreakMinutes:     5,
			SessionsPerCycle: 4,
		},
		Notifications: config.NotificationsConfig{Backend: "none", SoundEnabled: true},
		Wake:          config.WakeConfig{Subject: "pomotimer.session_end", Timeout: time.Second},
	}
}

func startApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewApp(cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case <-a.Ready():
	case err := <-errCh:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not become ready")
	}

	t.Cleanup(func() {
		a.Shutdown()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	return a
}

func send(t *testing.T, cfg *config.Config, name string, args interface{}) ipc.Response {
	t.Helper()
	resp, err := ipc.Send(cfg.SocketPath, ipc.Command{Name: name, Args: args}, 5*time.Second)
	require.NoError(t, err)
	return resp
}

func liveState(t *testing.T, a *App) session.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := a.State(ctx)
	require.NoError(t, err)
	return snap
}

func TestPing(t *testing.T) {
	cfg := testConfig(t)
	startApp(t, cfg)

	resp := send(t, cfg, ipc.CmdPing, nil)
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Message)
}

func TestStartPauseStopOverSocket(t *testing.T) {
	cfg := testConfig(t)
	a := startApp(t, cfg)

	resp := send(t, cfg, ipc.CmdStart, map[string]interface{}{"seconds": 600, "isRunning": true, "isWorkSession": true})
	require.True(t, resp.Success, resp.Message)
	snap := liveState(t, a)
	assert.Equal(t, session.StateRunning, snap.State())
	assert.InDelta(t, 600, snap.Seconds, 2)

	require.True(t, send(t, cfg, ipc.CmdPause, nil).Success)
	assert.Equal(t, session.StatePaused, liveState(t, a).State())

	require.True(t, send(t, cfg, ipc.CmdResume, nil).Success)
	assert.Equal(t, session.StateRunning, liveState(t, a).State())

	require.True(t, send(t, cfg, ipc.CmdStop, nil).Success)
	assert.Equal(t, session.Default(), liveState(t, a))
}

func TestMalformedStartArgsUseDefaults(t *testing.T) {
	cfg := testConfig(t)
	a := startApp(t, cfg)

	resp := send(t, cfg, ipc.CmdStart, map[string]interface{}{"seconds": "soon", "isRunning": 1})
	require.True(t, resp.Success)
	assert.Equal(t, session.Default(), liveState(t, a))
}

func TestGetStateReadsColdStore(t *testing.T) {
	cfg := testConfig(t)
	startApp(t, cfg)

	require.True(t, send(t, cfg, ipc.CmdStart, map[string]interface{}{"seconds": 90, "isPaused": true, "isWorkSession": false}).Success)

	assert.Eventually(t, func() bool {
		resp := send(t, cfg, ipc.CmdGetState, nil)
		if !resp.Success {
			return false
		}
		var f ipc.Frame
		if err := ipc.DecodeArgs(resp.Data, &f); err != nil {
			return false
		}
		return f.State == session.StatePaused && f.Snapshot.Seconds == 90 && !f.Snapshot.IsWorkSession
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUnknownIdentifiersAreUnimplemented(t *testing.T) {
	cfg := testConfig(t)
	startApp(t, cfg)

	resp := send(t, cfg, "rewind", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeUnimplemented, resp.Code)

	resp = send(t, cfg, ipc.CmdNotificationAction, map[string]interface{}{"action": "snooze_action"})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeUnimplemented, resp.Code)

	resp = send(t, cfg, ipc.CmdReentry, map[string]interface{}{"payload": "LONG_BREAK"})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeUnimplemented, resp.Code)
}

func TestNotificationActionAndReentry(t *testing.T) {
	cfg := testConfig(t)
	a := startApp(t, cfg)

	require.True(t, send(t, cfg, ipc.CmdStart, map[string]interface{}{"seconds": 60, "isRunning": true}).Success)
	resp := send(t, cfg, ipc.CmdNotificationAction, map[string]interface{}{"action": "stop_action"})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, session.Default(), liveState(t, a))

	// A replayed tap is a no-op, not an error.
	resp = send(t, cfg, ipc.CmdNotificationAction, map[string]interface{}{"action": "stop_action"})
	assert.True(t, resp.Success)

	resp = send(t, cfg, ipc.CmdReentry, map[string]interface{}{"payload": "START_BREAK"})
	require.True(t, resp.Success, resp.Message)
	var data ipc.ReentryData
	require.NoError(t, ipc.DecodeArgs(resp.Data, &data))
	assert.Equal(t, "start_break", data.Directive)

	assert.True(t, send(t, cfg, ipc.CmdCancelNotification, nil).Success)
	assert.True(t, send(t, cfg, ipc.CmdCancelNotification, map[string]interface{}{"id": 4242}).Success)
	assert.True(t, send(t, cfg, ipc.CmdAckSessionEnd, map[string]interface{}{"isWorkSession": false}).Success)
}

func TestCommandsAfterShutdownAreRefused(t *testing.T) {
	a, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer a.cleanup()

	a.Shutdown()
	resp := a.processCommand(ipc.Command{Name: ipc.CmdStart})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeShuttingDown, resp.Code)
}

func TestAttachStreamsFutureTransitions(t *testing.T) {
	cfg := testConfig(t)
	startApp(t, cfg)

	conn, err := net.DialTimeout("unix", cfg.SocketPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, json.NewEncoder(conn).Encode(ipc.Command{Name: ipc.CmdAttach}))
	dec := json.NewDecoder(conn)
	var resp ipc.Response
	require.NoError(t, dec.Decode(&resp))
	require.True(t, resp.Success)

	require.True(t, send(t, cfg, ipc.CmdStart, map[string]interface{}{"seconds": 42, "isPaused": true}).Success)
	require.True(t, send(t, cfg, ipc.CmdStop, nil).Success)

	var first, second ipc.Frame
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, session.StatePaused, first.State)
	assert.Equal(t, 42, first.Snapshot.Seconds)
	assert.Equal(t, session.Default(), second.Snapshot)
}

func TestNewerAttachReplacesStream(t *testing.T) {
	cfg := testConfig(t)
	startApp(t, cfg)

	attach := func() (net.Conn, *json.Decoder) {
		conn, err := net.DialTimeout("unix", cfg.SocketPath, time.Second)
		require.NoError(t, err)
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		require.NoError(t, json.NewEncoder(conn).Encode(ipc.Command{Name: ipc.CmdAttach}))
		dec := json.NewDecoder(conn)
		var resp ipc.Response
		require.NoError(t, dec.Decode(&resp))
		return conn, dec
	}

	c1, d1 := attach()
	defer c1.Close()
	c2, d2 := attach()
	defer c2.Close()

	// The first stream is closed by the daemon.
	var f ipc.Frame
	assert.Error(t, d1.Decode(&f))

	require.True(t, send(t, cfg, ipc.CmdStart, map[string]interface{}{"seconds": 7, "isPaused": true}).Success)
	require.NoError(t, d2.Decode(&f))
	assert.Equal(t, 7, f.Snapshot.Seconds)
}

func TestSecondInstanceIsRefused(t *testing.T) {
	cfg := testConfig(t)
	startApp(t, cfg)

	other := *cfg
	other.DatabasePath = cfg.DatabasePath + ".other"
	b, err := NewApp(&other)
	require.NoError(t, err)
	err = b.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already active")

	// The running instance keeps its socket.
	assert.True(t, send(t, cfg, ipc.CmdPing, nil).Success)
}

func TestStaleSocketIsReplaced(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.SocketPath, nil, 0600))

	startApp(t, cfg)
	assert.True(t, send(t, cfg, ipc.CmdPing, nil).Success)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewApp(cfg)
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()
	<-a.Ready()
	require.True(t, send(t, cfg, ipc.CmdStart, map[string]interface{}{"seconds": 300, "isRunning": true, "isWorkSession": false}).Success)
	liveState(t, a)
	a.Shutdown()
	require.NoError(t, <-errCh)

	b := startApp(t, cfg)
	snap := liveState(t, b)
	assert.Equal(t, session.StatePaused, snap.State())
	assert.False(t, snap.IsWorkSession)
	assert.InDelta(t, 300, snap.Seconds, 2)
}
