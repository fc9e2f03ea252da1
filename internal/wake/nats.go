package wake

import (
	"context"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

const DefaultSubject = "pomotimer.session_end"

// NATSSignaler publishes wake requests on a NATS subject.
type NATSSignaler struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSignaler(url, subject string) (*NATSSignaler, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("pomotimer"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Printf("Wake: publishing session-end signals to %s on %s", subject, url)
	return &NATSSignaler{conn: conn, subject: subject}, nil
}

func (s *NATSSignaler) Wake(ctx context.Context, req Request) error {
	data, err := Encode(req)
	if err != nil {
		return err
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish wake request: %w", err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush wake request: %w", err)
	}
	return nil
}

func (s *NATSSignaler) Close() error {
	s.conn.Close()
	return nil
}

// Listen subscribes to wake requests until ctx is done. Malformed messages
// are logged and skipped.
func Listen(ctx context.Context, url, subject string, handle func(Request)) error {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url, nats.Name("pomotimer-cli"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	msgs := make(chan *nats.Msg, 16)
	sub, err := conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			req, err := Decode(msg.Data)
			if err != nil {
				log.Printf("Wake: %v", err)
				continue
			}
			handle(req)
		}
	}
}
