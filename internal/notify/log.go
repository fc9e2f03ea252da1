package notify

import (
	"context"
	"log"
	"strings"
)

// LogRenderer writes notifications to the log. Used when no desktop
// notification service is available.
type LogRenderer struct{}

func (LogRenderer) Render(ctx context.Context, n Notification) error {
	actions := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, string(a.Intent))
	}
	log.Printf("Notification #%d [%s]: %s - %s (actions: %s)", n.ID, n.Profile.Name, n.Title, n.Body, strings.Join(actions, ","))
	return nil
}

func (LogRenderer) Cancel(ctx context.Context, id int) error {
	log.Printf("Notification #%d cancelled", id)
	return nil
}

// NopRenderer discards everything.
type NopRenderer struct{}

func (NopRenderer) Render(context.Context, Notification) error { return nil }
func (NopRenderer) Cancel(context.Context, int) error          { return nil }
