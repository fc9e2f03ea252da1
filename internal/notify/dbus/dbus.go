// Package dbus renders notifications through the freedesktop notification
// service (org.freedesktop.Notifications) on the session bus.
package dbus

import (
	"context"
	"fmt"
	"log"
	"sync"

	godbus "github.com/godbus/dbus/v5"

	"pomotimer/internal/notify"
	"pomotimer/internal/session"
)

const (
	serviceName   = "org.freedesktop.Notifications"
	objectPath    = "/org/freedesktop/Notifications"
	iface         = "org.freedesktop.Notifications"
	actionInvoked = iface + ".ActionInvoked"
	closedSignal  = iface + ".NotificationClosed"

	// defaultActionKey is the key the server sends when the body is clicked.
	defaultActionKey = "default"
)

// Renderer implements notify.Renderer, notify.ActionSource and
// notify.CloseSource.
type Renderer struct {
	conn    *godbus.Conn
	obj     godbus.BusObject
	appName string
	signals chan *godbus.Signal
	done    chan struct{}

	mu       sync.Mutex
	serverID map[int]uint32 // logical id -> server id
	payloads map[int]session.Intent
	onAction func(int, session.Intent)
	onClosed func(int)
}

// New connects to the session bus and starts listening for action signals.
func New(appName string) (*Renderer, error) {
	conn, err := godbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	r := &Renderer{
		conn:     conn,
		obj:      conn.Object(serviceName, objectPath),
		appName:  appName,
		signals:  make(chan *godbus.Signal, 16),
		done:     make(chan struct{}),
		serverID: make(map[int]uint32),
		payloads: make(map[int]session.Intent),
	}
	if err := conn.AddMatchSignal(
		godbus.WithMatchInterface(iface),
		godbus.WithMatchObjectPath(objectPath),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe notification signals: %w", err)
	}
	conn.Signal(r.signals)
	go r.listen()
	return r, nil
}

func (r *Renderer) OnAction(fn func(int, session.Intent)) {
	r.mu.Lock()
	r.onAction = fn
	r.mu.Unlock()
}

func (r *Renderer) OnClosed(fn func(int)) {
	r.mu.Lock()
	r.onClosed = fn
	r.mu.Unlock()
}

func (r *Renderer) Render(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	replaces := r.serverID[n.ID]
	r.mu.Unlock()

	call := r.obj.CallWithContext(ctx, iface+".Notify", 0,
		r.appName,
		replaces,
		"",
		n.Title,
		n.Body,
		actionList(n),
		hints(n),
		expireTimeout(n),
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify #%d: %w", n.ID, err)
	}

	r.mu.Lock()
	r.serverID[n.ID] = id
	r.payloads[n.ID] = n.Payload
	r.mu.Unlock()
	return nil
}

func (r *Renderer) Cancel(ctx context.Context, id int) error {
	r.mu.Lock()
	sid, ok := r.serverID[id]
	delete(r.serverID, id)
	delete(r.payloads, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := r.obj.CallWithContext(ctx, iface+".CloseNotification", 0, sid).Err; err != nil {
		return fmt.Errorf("close notification #%d: %w", id, err)
	}
	return nil
}

// Close stops the signal listener and releases the bus connection.
func (r *Renderer) Close() error {
	r.conn.RemoveSignal(r.signals)
	close(r.done)
	return r.conn.Close()
}

func (r *Renderer) listen() {
	for {
		select {
		case <-r.done:
			return
		case sig, ok := <-r.signals:
			if !ok {
				return
			}
			r.handleSignal(sig)
		}
	}
}

func (r *Renderer) handleSignal(sig *godbus.Signal) {
	switch sig.Name {
	case actionInvoked:
		sid, key, ok := decodeAction(sig.Body)
		if !ok {
			return
		}
		r.mu.Lock()
		id, known := r.logicalID(sid)
		intent := session.Intent(key)
		if key == defaultActionKey {
			intent = r.payloads[id]
		}
		fn := r.onAction
		r.mu.Unlock()
		if !known || fn == nil || intent == "" {
			return
		}
		fn(id, intent)

	case closedSignal:
		if len(sig.Body) < 1 {
			return
		}
		sid, ok := sig.Body[0].(uint32)
		if !ok {
			return
		}
		r.mu.Lock()
		id, known := r.logicalID(sid)
		if known {
			delete(r.serverID, id)
			delete(r.payloads, id)
		}
		fn := r.onClosed
		r.mu.Unlock()
		if known && fn != nil {
			fn(id)
		}

	default:
		log.Printf("Notify: ignoring signal %s", sig.Name)
	}
}

// logicalID must be called with r.mu held.
func (r *Renderer) logicalID(sid uint32) (int, bool) {
	for id, s := range r.serverID {
		if s == sid {
			return id, true
		}
	}
	return 0, false
}

func decodeAction(body []interface{}) (uint32, string, bool) {
	if len(body) < 2 {
		return 0, "", false
	}
	sid, ok := body[0].(uint32)
	if !ok {
		return 0, "", false
	}
	key, ok := body[1].(string)
	if !ok {
		return 0, "", false
	}
	return sid, key, true
}

// actionList flattens actions into the key,label pairs the service expects.
func actionList(n notify.Notification) []string {
	out := make([]string, 0, 2*len(n.Actions)+2)
	if n.Payload != "" {
		out = append(out, defaultActionKey, "Open")
	}
	for _, a := range n.Actions {
		out = append(out, string(a.Intent), a.Label)
	}
	return out
}

func hints(n notify.Notification) map[string]godbus.Variant {
	h := map[string]godbus.Variant{
		"urgency":        godbus.MakeVariant(byte(n.Profile.Urgency)),
		"category":       godbus.MakeVariant("x-pomotimer." + n.Profile.Name),
		"suppress-sound": godbus.MakeVariant(!n.Profile.Audible),
	}
	if n.Profile.Audible {
		h["sound-name"] = godbus.MakeVariant("complete")
	}
	if n.ID == notify.TimerNotificationID {
		h["resident"] = godbus.MakeVariant(true)
	}
	if n.Progress >= 0 {
		h["value"] = godbus.MakeVariant(int32(n.Progress))
	}
	return h
}

// expireTimeout keeps the progress notification up until replaced or closed.
func expireTimeout(n notify.Notification) int32 {
	if n.ID == notify.TimerNotificationID {
		return 0
	}
	return -1
}
