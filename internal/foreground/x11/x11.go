package x11

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"pomotimer/internal/foreground"
)

// Watcher polls _NET_ACTIVE_WINDOW and matches its WM_CLASS against the
// presentation window class.
type Watcher struct {
	X        *xgbutil.XUtil
	tracker  *foreground.Tracker
	interval time.Duration
}

var _ foreground.Watcher = (*Watcher)(nil)

func NewWatcher(windowClass string, interval time.Duration) (*Watcher, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	// _NET_ACTIVE_WINDOW needs EWMH.
	if _, err := ewmh.CurrentDesktopGet(X); err != nil {
		log.Printf("Warning: EWMH potentially not supported by Window Manager: %v", err)
	}

	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		X:        X,
		tracker:  foreground.NewTracker(windowClass),
		interval: interval,
	}, nil
}

func (w *Watcher) activeWindow() (foreground.Focus, error) {
	activeWinID, err := ewmh.ActiveWindowGet(w.X)
	if err != nil {
		return foreground.Focus{}, fmt.Errorf("could not get active window ID: %w", err)
	}
	if activeWinID == 0 {
		return foreground.Focus{}, nil
	}

	var f foreground.Focus
	if title, err := ewmh.WmNameGet(w.X, activeWinID); err == nil && title != "" {
		f.Title = title
	} else if title, err := icccm.WmNameGet(w.X, activeWinID); err == nil {
		f.Title = title
	}
	if hints, err := icccm.WmClassGet(w.X, activeWinID); err == nil && hints != nil {
		f.Class = hints.Class
		f.Instance = hints.Instance
	}
	return f, nil
}

func (w *Watcher) Run(ctx context.Context, report func(foreground bool)) error {
	log.Printf("Starting X11 foreground watcher (interval: %s)", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("X11 foreground watcher stopping.")
			return ctx.Err()
		case <-ticker.C:
			focus, err := w.activeWindow()
			if err != nil {
				// The WM may briefly report nothing while switching desktops.
				continue
			}
			if fg, changed := w.tracker.Observe(focus); changed {
				log.Printf("Foreground changed: presentation=%t (class='%s')", fg, focus.Class)
				report(fg)
			}
		}
	}
}

func (w *Watcher) Close() error {
	w.X.Conn().Close()
	return nil
}
