// Package wake delivers the session-end signal that re-activates a detached
// presentation layer. The transport is pluggable; the daemon uses NATS when a
// server is configured and falls back to logging.
package wake

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pomotimer/internal/session"
)

// Request is the typed wake payload. IsWorkSession is the segment the
// presentation should show next.
type Request struct {
	SessionID     string         `json:"sessionId"`
	IsWorkSession bool           `json:"isWorkSession"`
	Payload       session.Intent `json:"payload"`
	At            time.Time      `json:"at"`
}

// Signaler emits wake requests to whatever hosts the presentation layer.
type Signaler interface {
	Wake(ctx context.Context, req Request) error
}

// Encode serializes a request for the wire.
func Encode(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode wake request: %w", err)
	}
	return data, nil
}

// Decode parses a wake request. Unknown payload tags are replaced by
// open_app so the receiver always has something to act on.
func Decode(data []byte) (Request, error) {
	req := Request{IsWorkSession: true}
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode wake request: %w", err)
	}
	if !req.Payload.IsPayload() {
		req.Payload = session.PayloadOpenApp
	}
	return req, nil
}

type LogSignaler struct{}

func (LogSignaler) Wake(ctx context.Context, req Request) error {
	log.Printf("Wake: session %s ended, next=%s payload=%s", req.SessionID, kind(req.IsWorkSession), req.Payload)
	return nil
}

// Multi fans a request out to several signalers and returns the first error.
type Multi []Signaler

func (m Multi) Wake(ctx context.Context, req Request) error {
	var first error
	for _, s := range m {
		if err := s.Wake(ctx, req); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func kind(work bool) string {
	if work {
		return "work"
	}
	return "break"
}
