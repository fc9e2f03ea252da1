package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"pomotimer/internal/config"
	"pomotimer/internal/foreground"
	"pomotimer/internal/foreground/x11"
	"pomotimer/internal/ipc"
	"pomotimer/internal/metrics"
	"pomotimer/internal/notify"
	"pomotimer/internal/notify/dbus"
	"pomotimer/internal/router"
	"pomotimer/internal/scheduler"
	"pomotimer/internal/session"
	"pomotimer/internal/storage"
	"pomotimer/internal/storage/memory"
	"pomotimer/internal/wake"

	sqlitestore "pomotimer/internal/storage/sqlite"
)

type App struct {
	cfg      *config.Config
	store    storage.StateStore
	notifier *notify.Manager
	sched    *scheduler.Scheduler
	router   *router.Router
	fgWatch  foreground.Watcher

	// closers for optional backends, released in cleanup
	closers []io.Closer

	metrics    metrics.Recorder
	metricsSrv *http.Server

	// --- Socket Handling ---
	socketPath string
	listener   *net.UnixListener
	ready      chan struct{}

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		socketPath: cfg.SocketPath,
		ready:      make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	if a.socketPath == "" {
		a.socketPath = ipc.SocketPath
	}

	a.store = a.openStore(ctx)
	a.metrics = a.newMetrics()
	a.notifier = notify.NewManager(a.newRenderer(), cfg.Notifications.SoundEnabled)

	a.sched = scheduler.New(scheduler.Config{
		TickInterval:     cfg.TickInterval,
		WorkSeconds:      cfg.Pomodoro.WorkSeconds(),
		BreakSeconds:     cfg.Pomodoro.BreakSeconds(),
		SessionsPerCycle: cfg.Pomodoro.SessionsPerCycle,
		WakeTimeout:      cfg.Wake.Timeout,
	}, scheduler.Deps{
		Store:    a.store,
		Notifier: a.notifier,
		Waker:    a.newWaker(),
		Metrics:  a.metrics,
	})
	a.router = router.New(a.sched, a.notifier)

	if cfg.Foreground.Enabled {
		w, err := x11.NewWatcher(cfg.Foreground.WindowClass, cfg.Foreground.PollInterval)
		if err != nil {
			log.Printf("Warning: Failed to initialize X11 watcher: %v. Foreground tracking disabled.", err)
		} else {
			a.fgWatch = w
		}
	}

	return a, nil
}

// openStore falls back to an in-memory store so a broken database never
// stops the timer.
func (a *App) openStore(ctx context.Context) storage.StateStore {
	store := sqlitestore.NewSQLiteStore(a.cfg.DatabasePath)
	if err := store.Init(ctx); err != nil {
		log.Printf("Warning: Failed to initialize state store: %v. Cold state will not survive restarts.", err)
		return memory.NewStore()
	}
	return store
}

func (a *App) newRenderer() notify.Renderer {
	switch a.cfg.Notifications.Backend {
	case "none":
		return notify.NopRenderer{}
	case "log":
		return notify.LogRenderer{}
	}
	r, err := dbus.New("pomotimer")
	if err != nil {
		log.Printf("Warning: Failed to connect to notification service: %v. Logging notifications instead.", err)
		return notify.LogRenderer{}
	}
	a.closers = append(a.closers, r)
	return r
}

func (a *App) newWaker() wake.Signaler {
	if a.cfg.Wake.NATSURL == "" {
		return wake.LogSignaler{}
	}
	s, err := wake.NewNATSSignaler(a.cfg.Wake.NATSURL, a.cfg.Wake.Subject)
	if err != nil {
		log.Printf("Warning: Failed to connect wake signaler: %v. Logging wake requests instead.", err)
		return wake.LogSignaler{}
	}
	a.closers = append(a.closers, s)
	return wake.Multi{wake.LogSignaler{}, s}
}

func (a *App) newMetrics() metrics.Recorder {
	if a.cfg.Metrics.Listen == "" {
		return metrics.NopRecorder{}
	}
	rec := metrics.NewPrometheusRecorder(prom.NewRegistry())
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return rec
}

// Ready is closed once the command socket accepts connections.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Shutdown asks Run to return.
func (a *App) Shutdown() {
	a.cancel()
}

// setupSocket checks for existing socket and creates the listener
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, 1*time.Second)
		if err == nil {
			// Another instance answered.
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		log.Printf("Stale socket file found at %s, removing.", a.socketPath)
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}
	// The socket controls the user's session; keep it private.
	if err := os.Chmod(a.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set permissions on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	log.Printf("Listening for commands on %s", a.socketPath)
	return nil
}

// listenForCommands accepts connections and handles them
func (a *App) listenForCommands() {
	defer log.Println("Socket command listener stopped.")

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Failed to accept connection: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		a.wg.Go(func() { a.handleConnection(conn) })
	}
}

// handleConnection reads command, processes it, and sends response
func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			log.Printf("Failed to decode command: %v", err)
		}
		_ = encoder.Encode(ipc.Response{Success: false, Code: ipc.CodeBadRequest, Message: "Failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	log.Printf("Received command: %s", cmd.Name)

	if cmd.Name == ipc.CmdAttach {
		a.streamSnapshots(conn, encoder)
		return
	}

	response := a.processCommand(cmd)
	if err := encoder.Encode(response); err != nil {
		log.Printf("Failed to send response: %v", err)
	}
}

// streamSnapshots turns the connection into the presentation listener. It
// ends when the client hangs up, another listener attaches or the daemon
// shuts down.
func (a *App) streamSnapshots(conn *net.UnixConn, encoder *json.Encoder) {
	snaps, detach := a.router.Attach()
	defer detach()

	if err := encoder.Encode(ipc.Response{Success: true, Message: "attached"}); err != nil {
		log.Printf("Failed to send response: %v", err)
		return
	}

	hangup := make(chan struct{})
	go func() {
		defer close(hangup)
		// Nothing is expected from the client; any read result means it left.
		_, _ = io.Copy(io.Discard, conn)
	}()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-hangup:
			log.Println("Listener disconnected.")
			return
		case snap, ok := <-snaps:
			if !ok {
				log.Println("Listener replaced by a newer attach.")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := encoder.Encode(ipc.NewFrame(snap)); err != nil {
				log.Printf("Failed to send frame: %v", err)
				return
			}
		}
	}
}

// processCommand routes the command to the correct handler
func (a *App) processCommand(cmd ipc.Command) ipc.Response {
	if a.ctx.Err() != nil {
		// Connections accepted just before shutdown must not reach a stopping
		// scheduler.
		return ipc.Response{Success: false, Code: ipc.CodeShuttingDown, Message: "Daemon is shutting down"}
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong"}

	case ipc.CmdStart:
		// Wrong-typed fields fall back to defaults inside the router.
		args, _ := cmd.Args.(map[string]interface{})
		if err := a.router.HandleUI(router.ActionStart, args); err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Success: true, Message: "Session started"}

	case ipc.CmdPause, ipc.CmdResume, ipc.CmdStop:
		if err := a.router.HandleUI(cmd.Name, nil); err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Success: true, Message: fmt.Sprintf("%s requested", cmd.Name)}

	case ipc.CmdGetState:
		return ipc.Response{Success: true, Data: ipc.NewFrame(a.router.QueryColdState(ctx))}

	case ipc.CmdAckSessionEnd:
		args := ipc.AckSessionEndArgs{IsWorkSession: true}
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			log.Printf("Malformed %s args, using defaults: %v", cmd.Name, err)
			args = ipc.AckSessionEndArgs{IsWorkSession: true}
		}
		a.router.AcknowledgeSessionEnd(args.IsWorkSession)
		return ipc.Response{Success: true, Message: "Session end acknowledged"}

	case ipc.CmdCancelNotification:
		var args ipc.CancelNotificationArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			log.Printf("Malformed %s args, ignoring: %v", cmd.Name, err)
			return ipc.Response{Success: true, Message: "Nothing cancelled"}
		}
		a.router.CancelNotification(args.ID)
		return ipc.Response{Success: true, Message: "Notifications cancelled"}

	case ipc.CmdNotificationAction:
		var args ipc.NotificationActionArgs
		_ = ipc.DecodeArgs(cmd.Args, &args)
		if err := a.router.HandleNotificationAction(args.Action); err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Success: true, Message: fmt.Sprintf("Action %s applied", args.Action)}

	case ipc.CmdReentry:
		var args ipc.ReentryArgs
		_ = ipc.DecodeArgs(cmd.Args, &args)
		isWork := router.NextIsWork(args.Payload)
		if args.IsWorkSession != nil {
			isWork = *args.IsWorkSession
		}
		directive, err := a.router.HandleReentry(args.Payload, isWork)
		if err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Success: true, Data: ipc.ReentryData{Directive: string(directive)}}

	default:
		return ipc.Response{Success: false, Code: ipc.CodeUnimplemented, Message: fmt.Sprintf("Unknown command: %s", cmd.Name)}
	}
}

func errorResponse(err error) ipc.Response {
	if errors.Is(err, router.ErrUnimplemented) {
		return ipc.Response{Success: false, Code: ipc.CodeUnimplemented, Message: err.Error()}
	}
	return ipc.Response{Success: false, Message: err.Error()}
}

func (a *App) Run() error {
	defer a.cleanup()

	log.Println("Starting Pomotimer daemon...")
	log.Printf("Config: %+v", *a.cfg)
	if a.fgWatch == nil {
		log.Println("X11 foreground tracking: DISABLED")
	} else {
		log.Println("X11 foreground tracking: ENABLED")
	}

	if err := a.setupSocket(); err != nil {
		return fmt.Errorf("failed to set up socket: %w", err)
	}

	a.handleSignals()

	a.sched.Start()

	if a.fgWatch != nil {
		a.wg.Go(func() {
			err := a.fgWatch.Run(a.ctx, a.sched.SetForeground)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("X11 watcher error: %v", err)
			}
		})
	}

	if a.metricsSrv != nil {
		a.wg.Go(func() {
			log.Printf("Serving metrics on %s/metrics", a.metricsSrv.Addr)
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		})
	}

	if a.cfg.Watch(a.applyConfig) {
		log.Println("Watching config file for changes.")
	}

	a.wg.Go(a.listenForCommands)
	close(a.ready)

	log.Println("Pomotimer daemon running. Send commands via pomotimer-cli or socket.")
	<-a.ctx.Done()

	log.Println("Shutdown signal received, waiting for components...")

	// Close the listener before waiting so Accept returns.
	if err := a.listener.Close(); err != nil {
		log.Printf("Error closing socket listener: %v", err)
	}
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error stopping metrics server: %v", err)
		}
		cancel()
	}

	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		log.Println("All daemon goroutines finished.")
	case <-time.After(5 * time.Second):
		log.Println("Warning: Timeout waiting for daemon goroutines to stop.")
	}

	log.Println("Pomotimer daemon finished.")
	return nil
}

// applyConfig applies the settings that can change without a restart.
func (a *App) applyConfig(next *config.Config) {
	if next.Notifications.SoundEnabled != a.notifier.SoundEnabled() {
		log.Printf("Session-end sound %s", onOff(next.Notifications.SoundEnabled))
		a.notifier.SetSoundEnabled(next.Notifications.SoundEnabled)
	}
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received signal: %v. Initiating shutdown...", sig)
			a.cancel()
		case <-a.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

func (a *App) cleanup() {
	log.Println("Running cleanup...")
	a.cancel()

	// Stopping the scheduler flushes the last snapshot to the store.
	a.sched.Stop()

	var err error
	if a.fgWatch != nil {
		err = multierr.Append(err, a.fgWatch.Close())
	}
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	for _, e := range multierr.Errors(err) {
		log.Printf("Cleanup error: %v", e)
	}

	if a.listener != nil {
		if _, statErr := os.Stat(a.socketPath); statErr == nil {
			log.Printf("Removing socket file: %s", a.socketPath)
			if rmErr := os.Remove(a.socketPath); rmErr != nil {
				log.Printf("Warning: Failed to remove socket file %s: %v", a.socketPath, rmErr)
			}
		}
	}

	log.Println("Cleanup finished.")
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// State returns the live snapshot.
func (a *App) State(ctx context.Context) (session.Snapshot, error) {
	return a.sched.Current(ctx)
}
