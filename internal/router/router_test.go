package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomotimer/internal/notify"
	"pomotimer/internal/notify/notifytest"
	"pomotimer/internal/session"
)

type fakeScheduler struct {
	mu        sync.Mutex
	submitted []session.Command
	cold      session.Snapshot
	detached  int
	withdrawn [][]int
}

func (f *fakeScheduler) Submit(cmd session.Command) {
	f.mu.Lock()
	f.submitted = append(f.submitted, cmd)
	f.mu.Unlock()
}

func (f *fakeScheduler) ColdState(ctx context.Context) session.Snapshot { return f.cold }

func (f *fakeScheduler) Attach() (<-chan session.Snapshot, func()) {
	ch := make(chan session.Snapshot)
	return ch, func() {}
}

func (f *fakeScheduler) Detach() { f.detached++ }

func (f *fakeScheduler) Withdraw(ids ...int) {
	f.mu.Lock()
	f.withdrawn = append(f.withdrawn, ids)
	f.mu.Unlock()
}

func (f *fakeScheduler) withdrawals() [][]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int(nil), f.withdrawn...)
}

var sessionNotifications = []int{notify.TimerNotificationID, notify.SessionEndNotificationID}

func (f *fakeScheduler) commands() []session.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Command(nil), f.submitted...)
}

func newTestRouter(t *testing.T) (*Router, *fakeScheduler, *notify.Manager, *notifytest.Recorder) {
	t.Helper()
	rec := &notifytest.Recorder{}
	mgr := notify.NewManager(rec, true)
	sched := &fakeScheduler{cold: session.Default()}
	return New(sched, mgr), sched, mgr, rec
}

func TestHandleUIStart(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)

	err := r.HandleUI("START", map[string]any{
		"seconds":       float64(300),
		"isRunning":     true,
		"isPaused":      false,
		"isCountingUp":  false,
		"isWorkSession": false,
	})
	require.NoError(t, err)
	assert.Equal(t, []session.Command{
		session.Start{Snapshot: session.Snapshot{Seconds: 300, IsRunning: true}},
	}, sched.commands())
}

func TestHandleUIDefaultsMalformedArgs(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)

	require.NoError(t, r.HandleUI("start", map[string]any{
		"seconds":   "ten",
		"isRunning": "yes",
	}))
	require.NoError(t, r.HandleUI(ActionStart, nil))

	want := session.Start{Snapshot: session.Default()}
	assert.Equal(t, []session.Command{want, want}, sched.commands())
}

func TestStartSnapshotAliases(t *testing.T) {
	assert.Equal(t, 90, StartSnapshot(map[string]any{"timerSeconds": 90}).Seconds)
	assert.Equal(t, 91, StartSnapshot(map[string]any{"remainingOrElapsedSeconds": json.Number("91")}).Seconds)
	assert.Equal(t, 92, StartSnapshot(map[string]any{"seconds": int64(92), "timerSeconds": 1}).Seconds)
	assert.Equal(t, session.DefaultWorkSeconds, StartSnapshot(map[string]any{"seconds": 1e30}).Seconds)
}

func TestHandleUIControlActions(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)
	for _, a := range []string{"PAUSE", "RESUME", "STOP"} {
		require.NoError(t, r.HandleUI(a, nil))
	}
	assert.Equal(t, []session.Command{session.Pause{}, session.Resume{}, session.Stop{}}, sched.commands())
}

func TestHandleUIUnknownIsUnimplemented(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)
	err := r.HandleUI("REWIND", nil)
	assert.ErrorIs(t, err, ErrUnimplemented)
	assert.Empty(t, sched.commands())
}

func TestNotificationActionsMapOneToOne(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)
	require.NoError(t, r.HandleNotificationAction(session.IntentPause))
	require.NoError(t, r.HandleNotificationAction(session.IntentResume))
	require.NoError(t, r.HandleNotificationAction(session.IntentStop))
	assert.Equal(t, []session.Command{session.Pause{}, session.Resume{}, session.Stop{}}, sched.commands())
	assert.Empty(t, sched.withdrawals())

	err := r.HandleNotificationAction(session.Intent("snooze_action"))
	assert.ErrorIs(t, err, ErrUnimplemented)
	assert.Len(t, sched.commands(), 3)
}

func TestNotificationTapRoundTrip(t *testing.T) {
	_, sched, mgr, rec := newTestRouter(t)
	ctx := context.Background()

	running := session.Snapshot{Seconds: 60, IsRunning: true, IsWorkSession: true}
	mgr.ShowProgress(ctx, running, 120)
	progress := rec.RenderedID(notify.TimerNotificationID)
	require.Len(t, progress, 1)

	for _, a := range progress[0].Actions {
		rec.Tap(notify.TimerNotificationID, a.Intent)
	}
	assert.Equal(t, []session.Command{session.Pause{}, session.Stop{}}, sched.commands())
}

func TestSessionEndTapIsReentry(t *testing.T) {
	_, sched, mgr, rec := newTestRouter(t)
	ctx := context.Background()

	mgr.ShowProgress(ctx, session.Snapshot{Seconds: 1, IsRunning: true, IsWorkSession: true}, 60)
	mgr.ShowSessionEnd(ctx, false, session.PayloadStartBreak)
	rec.Tap(notify.SessionEndNotificationID, session.PayloadStartBreak)

	assert.Equal(t, []session.Command{session.SessionEndAck{IsWorkSession: false}}, sched.commands())
	assert.Equal(t, [][]int{sessionNotifications}, sched.withdrawals())
	assert.False(t, mgr.Active(notify.SessionEndNotificationID))
}

func TestHandleReentryDirectives(t *testing.T) {
	tests := []struct {
		payload session.Intent
		want    Directive
		acked   bool
	}{
		{session.PayloadStartBreak, DirectiveStartBreak, true},
		{session.PayloadStartWork, DirectiveStartWork, true},
		{session.PayloadCompletedAll, DirectiveCompletedAll, true},
		{session.PayloadOpenApp, DirectiveRestore, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.payload), func(t *testing.T) {
			r, sched, _, _ := newTestRouter(t)

			got, err := r.HandleReentry(tt.payload, NextIsWork(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, [][]int{sessionNotifications}, sched.withdrawals())
			if tt.acked {
				assert.Equal(t, []session.Command{session.SessionEndAck{IsWorkSession: NextIsWork(tt.payload)}}, sched.commands())
			} else {
				assert.Empty(t, sched.commands())
			}
		})
	}
}

func TestHandleReentryUnknownPayload(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)
	_, err := r.HandleReentry("LONG_BREAK", true)
	assert.ErrorIs(t, err, ErrUnimplemented)
	assert.Empty(t, sched.commands())
	assert.Empty(t, sched.withdrawals())
}

func TestCancelNotification(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)

	id := notify.SessionEndNotificationID
	r.CancelNotification(&id)
	unknown := 4242
	r.CancelNotification(&unknown)
	r.CancelNotification(nil)

	assert.Equal(t, [][]int{{notify.SessionEndNotificationID}, {4242}, sessionNotifications}, sched.withdrawals())
	assert.Empty(t, sched.commands())
}

func TestQueryColdStateAndDetach(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)
	sched.cold = session.Snapshot{Seconds: 77, IsPaused: true}
	assert.Equal(t, sched.cold, r.QueryColdState(context.Background()))
	r.Detach()
	assert.Equal(t, 1, sched.detached)
}
