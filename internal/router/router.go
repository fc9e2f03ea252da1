// Package router turns requests from the presentation layer, notification taps
// and session-end re-entry into scheduler commands.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"pomotimer/internal/notify"
	"pomotimer/internal/session"
)

// ErrUnimplemented is returned for identifiers the router does not know.
var ErrUnimplemented = errors.New("unimplemented")

// Directive tells the presentation which segment to show after re-entry.
type Directive string

const (
	DirectiveStartBreak   Directive = "start_break"
	DirectiveStartWork    Directive = "start_work"
	DirectiveCompletedAll Directive = "completed_all_sessions"
	DirectiveRestore      Directive = "restore"
)

// UI action names.
const (
	ActionStart  = "START"
	ActionPause  = "PAUSE"
	ActionResume = "RESUME"
	ActionStop   = "STOP"
)

// Scheduler is the part of *scheduler.Scheduler the router drives.
type Scheduler interface {
	Submit(cmd session.Command)
	ColdState(ctx context.Context) session.Snapshot
	Attach() (<-chan session.Snapshot, func())
	Detach()
	Withdraw(ids ...int)
}

// Notifications is the source of notification taps.
type Notifications interface {
	HandleActions(handler func(session.Intent))
}

type Router struct {
	sched Scheduler
}

// New builds a router and registers it as the receiver of notification taps.
func New(sched Scheduler, notifications Notifications) *Router {
	r := &Router{sched: sched}
	notifications.HandleActions(func(intent session.Intent) {
		if err := r.HandleNotificationAction(intent); err != nil {
			log.Printf("Router: notification action %q: %v", intent, err)
		}
	})
	return r
}

// HandleUI maps a presentation request onto a command. args is the raw
// parameter map decoded from the request; fields that are missing or of the
// wrong type take their defaults.
func (r *Router) HandleUI(action string, args map[string]any) error {
	var cmd session.Command
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case ActionStart:
		cmd = session.Start{Snapshot: StartSnapshot(args)}
	case ActionPause:
		cmd = session.Pause{}
	case ActionResume:
		cmd = session.Resume{}
	case ActionStop:
		cmd = session.Stop{}
	default:
		return fmt.Errorf("%w: ui action %q", ErrUnimplemented, action)
	}
	r.sched.Submit(cmd)
	return nil
}

// HandleNotificationAction handles a tap on a notification. Control buttons
// map one to one onto commands; a tap on a body carrying a payload tag is a
// re-entry.
func (r *Router) HandleNotificationAction(intent session.Intent) error {
	switch intent {
	case session.IntentPause:
		r.sched.Submit(session.Pause{})
	case session.IntentResume:
		r.sched.Submit(session.Resume{})
	case session.IntentStop:
		r.sched.Submit(session.Stop{})
	default:
		if !intent.IsPayload() {
			return fmt.Errorf("%w: notification action %q", ErrUnimplemented, intent)
		}
		_, err := r.HandleReentry(intent, NextIsWork(intent))
		return err
	}
	return nil
}

// HandleReentry handles the presentation coming back because a session
// ended while it was away. It withdraws the notifications, acknowledges the
// session end and reports which segment to show. The withdrawal runs on the
// scheduler, ordered with its renders.
func (r *Router) HandleReentry(payload session.Intent, isWorkSession bool) (Directive, error) {
	directive, ok := directiveFor(payload)
	if !ok {
		return "", fmt.Errorf("%w: re-entry payload %q", ErrUnimplemented, payload)
	}
	r.sched.Withdraw(notify.TimerNotificationID, notify.SessionEndNotificationID)
	if directive != DirectiveRestore {
		r.sched.Submit(session.SessionEndAck{IsWorkSession: isWorkSession})
	}
	log.Printf("Router: re-entry with %s, directing %s", payload, directive)
	return directive, nil
}

func (r *Router) AcknowledgeSessionEnd(isWorkSession bool) {
	r.sched.Submit(session.SessionEndAck{IsWorkSession: isWorkSession})
}

// QueryColdState reads the persisted snapshot for instant display.
func (r *Router) QueryColdState(ctx context.Context) session.Snapshot {
	return r.sched.ColdState(ctx)
}

func (r *Router) Attach() (<-chan session.Snapshot, func()) {
	return r.sched.Attach()
}

func (r *Router) Detach() {
	r.sched.Detach()
}

// CancelNotification cancels notification id, or every session notification
// when id is nil. Unknown ids are ignored.
func (r *Router) CancelNotification(id *int) {
	if id == nil {
		r.sched.Withdraw(notify.TimerNotificationID, notify.SessionEndNotificationID)
		return
	}
	r.sched.Withdraw(*id)
}

func directiveFor(payload session.Intent) (Directive, bool) {
	switch payload {
	case session.PayloadStartBreak:
		return DirectiveStartBreak, true
	case session.PayloadStartWork:
		return DirectiveStartWork, true
	case session.PayloadCompletedAll:
		return DirectiveCompletedAll, true
	case session.PayloadOpenApp:
		return DirectiveRestore, true
	}
	return "", false
}

// NextIsWork reports the segment a payload tag leads into.
func NextIsWork(payload session.Intent) bool {
	return payload != session.PayloadStartBreak
}
