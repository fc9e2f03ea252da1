package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"pomotimer/internal/bridge"
	"pomotimer/internal/metrics"
	"pomotimer/internal/notify"
	"pomotimer/internal/session"
	"pomotimer/internal/storage"
	"pomotimer/internal/wake"
)

// ErrStopped is returned by queries issued after the scheduler shut down.
var ErrStopped = errors.New("scheduler stopped")

// Notifier renders session state. *notify.Manager implements it.
type Notifier interface {
	ShowProgress(ctx context.Context, snap session.Snapshot, total int)
	ShowSessionEnd(ctx context.Context, nextWork bool, payload session.Intent)
	Cancel(ctx context.Context, id int) bool
	CancelAll(ctx context.Context)
}

// Ticker is the part of time.Ticker the run loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Config struct {
	TickInterval     time.Duration
	WorkSeconds      int
	BreakSeconds     int
	SessionsPerCycle int
	WakeTimeout      time.Duration
	PersistTimeout   time.Duration
	ListenerBuffer   int

	// Now and NewTicker default to the real clock.
	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
}

// Deps are the collaborators the scheduler drives. Nil fields are replaced
// by no-op implementations.
type Deps struct {
	Store    storage.StateStore
	Notifier Notifier
	Waker    wake.Signaler
	Metrics  metrics.Recorder
}

// Scheduler owns the live snapshot. All mutation happens on the run
// goroutine, fed by a FIFO queue, so commands from any number of sources are
// applied one at a time.
type Scheduler struct {
	cfg      Config
	store    storage.StateStore
	notifier Notifier
	waker    wake.Signaler
	metrics  metrics.Recorder
	bridge   *bridge.Bridge
	queue    *queue
	writer   *writer

	// Run-loop state. Never touched from other goroutines.
	snap          session.Snapshot
	anchor        time.Time
	anchorSeconds int
	total         int
	sessionID     string
	completed     int
	foreground    bool
	ticker        Ticker

	ctx          context.Context
	cancel       context.CancelFunc
	writerCancel context.CancelFunc
	bg           conc.WaitGroup
	started      bool
	done         chan struct{}
}

func New(cfg Config, deps Deps) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.WorkSeconds <= 0 {
		cfg.WorkSeconds = session.DefaultWorkSeconds
	}
	if cfg.BreakSeconds <= 0 {
		cfg.BreakSeconds = session.DefaultBreakSeconds
	}
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 2 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = newRealTicker
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewManager(notify.NopRenderer{}, false)
	}
	if deps.Waker == nil {
		deps.Waker = wake.LogSignaler{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:      cfg,
		store:    deps.Store,
		notifier: deps.Notifier,
		waker:    deps.Waker,
		metrics:  deps.Metrics,
		bridge:   bridge.New(),
		queue:    newQueue(),
		snap:     session.Default(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.bridge.OnDrop = s.metrics.BridgeDropped
	if deps.Store != nil {
		s.writer = newWriter(deps.Store, cfg.PersistTimeout, s.metrics.PersistFailure)
	}
	return s
}

// Start restores the last persisted snapshot and launches the run loop. A
// session that was running when the previous process died is restored as
// paused, since nothing tracked the clock in between.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true

	if s.store != nil {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PersistTimeout)
		restored, err := s.store.LoadSnapshot(ctx)
		cancel()
		if err != nil {
			log.Printf("Scheduler: failed to load persisted state, starting from default: %v", err)
			restored = session.Default()
		}
		if restored.State() == session.StateRunning {
			log.Printf("Scheduler: restoring interrupted %s session as paused at %s", restored.Kind(), restored.Clock())
			restored.IsRunning = false
			restored.IsPaused = true
		}
		s.snap = restored.Normalize()
		if s.snap.Active() {
			s.sessionID = uuid.NewString()
			if !s.snap.IsCountingUp {
				s.total = s.snap.Seconds
			}
			// First on the queue: the loop renders the resume affordance
			// before any command is applied.
			s.queue.push(message{restored: true})
		}
	}

	if s.writer != nil {
		// The writer outlives the loop so the last commit is flushed.
		wctx, wcancel := context.WithCancel(context.Background())
		s.writerCancel = wcancel
		s.bg.Go(func() { s.writer.run(wctx) })
		s.writer.submit(s.snap)
	}
	go s.runLoop()
}

// Stop shuts the run loop down and flushes the last snapshot to the store.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.started {
		<-s.done
	}
	if s.writerCancel != nil {
		s.writerCancel()
	}
	s.bg.Wait()
}

// Submit enqueues cmd. It never blocks.
func (s *Scheduler) Submit(cmd session.Command) {
	s.queue.push(message{cmd: cmd})
}

// Withdraw cancels the given notifications on the run loop, ordered with
// every render it performs.
func (s *Scheduler) Withdraw(ids ...int) {
	if len(ids) == 0 {
		return
	}
	s.queue.push(message{withdraw: append([]int(nil), ids...)})
}

// SetForeground tells the scheduler whether the presentation layer is in the
// foreground. While it is, the progress notification is withdrawn.
func (s *Scheduler) SetForeground(foreground bool) {
	s.queue.push(message{foreground: &foreground})
}

// Current returns the live snapshot. The query is ordered after every command
// submitted before it.
func (s *Scheduler) Current(ctx context.Context) (session.Snapshot, error) {
	reply := make(chan session.Snapshot, 1)
	s.queue.push(message{query: reply})
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.done:
		return session.Snapshot{}, ErrStopped
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	}
}

// ColdState reads the persisted snapshot, falling back to the default.
func (s *Scheduler) ColdState(ctx context.Context) session.Snapshot {
	if s.store == nil {
		return session.Default()
	}
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		log.Printf("Scheduler: cold state read failed: %v", err)
		return session.Default()
	}
	return snap
}

// Attach installs the presentation listener, replacing any previous one. Only
// transitions after this call are delivered.
func (s *Scheduler) Attach() (<-chan session.Snapshot, func()) {
	ch, detach := s.bridge.Attach(s.cfg.ListenerBuffer)
	s.metrics.ListenerAttached(true)
	s.queue.push(message{attached: true})
	return ch, func() {
		detach()
		s.metrics.ListenerAttached(s.bridge.Attached())
	}
}

// Detach clears the listener slot. The session keeps running.
func (s *Scheduler) Detach() {
	s.bridge.Detach()
	s.metrics.ListenerAttached(false)
}

func (s *Scheduler) runLoop() {
	defer close(s.done)
	defer log.Println("Scheduler loop stopped.")

	for {
		var tickC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.C()
		}

		select {
		case <-s.ctx.Done():
			// Nothing answers the buttons once the loop is gone.
			s.notifier.CancelAll(context.Background())
			s.stopTicking()
			return
		case <-s.queue.signal:
			for _, msg := range s.queue.drain() {
				s.handle(msg)
			}
		case <-tickC:
			s.tick()
		}
	}
}

func (s *Scheduler) handle(msg message) {
	switch {
	case msg.cmd != nil:
		s.apply(msg.cmd)
	case msg.query != nil:
		msg.query <- s.snap
	case msg.foreground != nil:
		s.setForeground(*msg.foreground)
	case msg.attached:
		// The listener now shows the segment itself.
		s.notifier.Cancel(s.ctx, notify.SessionEndNotificationID)
	case len(msg.withdraw) > 0:
		for _, id := range msg.withdraw {
			s.notifier.Cancel(s.ctx, id)
		}
	case msg.restored:
		if s.snap.Active() {
			s.renderProgress()
		}
	}
}

func (s *Scheduler) apply(cmd session.Command) {
	s.metrics.Command(cmd.Name())
	switch c := cmd.(type) {
	case session.Start:
		s.start(c.Snapshot)
	case session.Pause:
		s.pause()
	case session.Resume:
		s.resume()
	case session.Stop:
		s.stop()
	case session.SessionEndAck:
		log.Printf("Scheduler: session end acknowledged, presentation shows %s", kindName(c.IsWorkSession))
		s.notifier.Cancel(s.ctx, notify.SessionEndNotificationID)
	}
}

// start discards whatever was in progress. A START during an active session
// is a hard reset by policy.
func (s *Scheduler) start(payload session.Snapshot) {
	snap := payload.Normalize()
	if s.snap.Active() {
		log.Printf("Scheduler: START while %s, discarding %s at %s", s.snap.State(), s.snap.Kind(), s.snap.Clock())
	}
	s.stopTicking()
	s.snap = snap
	s.sessionID = uuid.NewString()
	s.total = 0
	if !snap.IsCountingUp {
		s.total = snap.Seconds
	}

	s.notifier.Cancel(s.ctx, notify.SessionEndNotificationID)
	if snap.State() == session.StateRunning {
		s.reanchor()
		s.startTicking()
	}
	if snap.Active() {
		s.renderProgress()
	} else {
		s.notifier.Cancel(s.ctx, notify.TimerNotificationID)
	}
	log.Printf("Scheduler: session %s started: %s %s at %s", s.sessionID, snap.State(), snap.Kind(), snap.Clock())
	s.commit()
}

func (s *Scheduler) pause() {
	if s.snap.State() != session.StateRunning {
		return
	}
	if s.catchUp() {
		return
	}
	s.stopTicking()
	s.snap.IsRunning = false
	s.snap.IsPaused = true
	s.renderProgress()
	log.Printf("Scheduler: paused at %s", s.snap.Clock())
	s.commit()
}

func (s *Scheduler) resume() {
	if s.snap.State() != session.StatePaused {
		return
	}
	s.snap.IsPaused = false
	s.snap.IsRunning = true
	s.reanchor()
	s.startTicking()
	s.renderProgress()
	log.Printf("Scheduler: resumed at %s", s.snap.Clock())
	s.commit()
}

func (s *Scheduler) stop() {
	if s.snap == session.Default() && s.ticker == nil {
		return
	}
	s.stopTicking()
	s.snap = session.Default()
	s.sessionID = ""
	s.total = 0
	s.completed = 0
	s.notifier.Cancel(s.ctx, notify.TimerNotificationID)
	log.Println("Scheduler: stopped, state reset")
	s.commit()
}

func (s *Scheduler) tick() {
	if s.snap.State() != session.StateRunning {
		return
	}
	before := s.snap.Seconds
	if s.catchUp() {
		return
	}
	if s.snap.Seconds == before {
		return
	}
	s.metrics.Tick()
	s.renderProgress()
	s.commit()
}

// catchUp recomputes the seconds from the wall-clock time since the last
// anchor, so a suspended process does not drift. It reports whether the
// countdown ran out and the session ended.
func (s *Scheduler) catchUp() bool {
	elapsed := int(s.now().Sub(s.anchor) / time.Second)
	if s.snap.IsCountingUp {
		up := s.anchorSeconds + elapsed
		if up < s.snap.Seconds {
			s.clockStepped()
			return false
		}
		s.snap.Seconds = up
		return false
	}
	remaining := s.anchorSeconds - elapsed
	if remaining > s.snap.Seconds {
		s.clockStepped()
		return false
	}
	if remaining > 0 {
		s.snap.Seconds = remaining
		return false
	}
	s.snap.Seconds = 0
	s.endSession()
	return true
}

// clockStepped re-anchors at the current reading after the wall clock moved
// backwards, so the segment resumes from where it was instead of rewinding.
func (s *Scheduler) clockStepped() {
	log.Printf("Scheduler: wall clock moved backwards, re-anchoring at %s", s.snap.Clock())
	s.reanchor()
}

func (s *Scheduler) endSession() {
	s.stopTicking()
	endedWork := s.snap.IsWorkSession
	if endedWork {
		s.completed++
	}
	completedAll := endedWork && s.cfg.SessionsPerCycle > 0 && s.completed >= s.cfg.SessionsPerCycle
	if completedAll {
		s.completed = 0
	}
	payload := session.EndPayload(endedWork, completedAll)
	nextWork := !endedWork
	endedID := s.sessionID

	s.snap = session.Snapshot{
		Seconds:       s.segmentSeconds(nextWork),
		IsCountingUp:  s.snap.IsCountingUp,
		IsWorkSession: nextWork,
	}
	s.sessionID = ""
	s.total = 0

	s.metrics.SessionEnd(kindName(endedWork))
	s.notifier.Cancel(s.ctx, notify.TimerNotificationID)
	s.notifier.ShowSessionEnd(s.ctx, nextWork, payload)
	log.Printf("Scheduler: %s session %s ended, next %s (%s)", kindName(endedWork), endedID, kindName(nextWork), payload)
	s.commit()

	s.signalWake(wake.Request{
		SessionID:     endedID,
		IsWorkSession: nextWork,
		Payload:       payload,
		At:            s.now(),
	})
}

func (s *Scheduler) setForeground(foreground bool) {
	if foreground == s.foreground {
		return
	}
	s.foreground = foreground
	if foreground {
		s.notifier.CancelAll(s.ctx)
		return
	}
	if s.snap.Active() {
		s.renderProgress()
	}
}

// commit publishes the snapshot to the listener and writes it through.
func (s *Scheduler) commit() {
	s.bridge.Publish(s.snap)
	if s.writer != nil {
		s.writer.submit(s.snap)
	}
}

func (s *Scheduler) renderProgress() {
	if s.foreground {
		return
	}
	s.notifier.ShowProgress(s.ctx, s.snap, s.total)
}

func (s *Scheduler) signalWake(req wake.Request) {
	s.bg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WakeTimeout)
		defer cancel()
		if err := s.waker.Wake(ctx, req); err != nil {
			log.Printf("Scheduler: wake signal failed: %v", err)
		}
	})
}

func (s *Scheduler) reanchor() {
	s.anchor = s.now()
	s.anchorSeconds = s.snap.Seconds
}

func (s *Scheduler) startTicking() {
	if s.ticker == nil {
		s.ticker = s.cfg.NewTicker(s.cfg.TickInterval)
	}
}

func (s *Scheduler) stopTicking() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

// now strips the monotonic reading: the monotonic clock stops while the host
// is suspended, the wall clock does not.
func (s *Scheduler) now() time.Time {
	return s.cfg.Now().Round(0)
}

func (s *Scheduler) segmentSeconds(work bool) int {
	if work {
		return s.cfg.WorkSeconds
	}
	return s.cfg.BreakSeconds
}

func kindName(work bool) string {
	if work {
		return "work"
	}
	return "break"
}

type realTicker struct{ t *time.Ticker }

func newRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
