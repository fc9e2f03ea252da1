package session

// Intent is an identifier embedded in a rendered notification. Tapping the
// notification (or one of its buttons) hands the intent back to the router.
type Intent string

// Action buttons.
const (
	IntentPause  Intent = "pause_action"
	IntentResume Intent = "resume_action"
	IntentStop   Intent = "stop_action"
)

// Session-transition payload tags.
const (
	PayloadStartBreak   Intent = "START_BREAK"
	PayloadStartWork    Intent = "START_WORK"
	PayloadCompletedAll Intent = "COMPLETED_ALL_SESSIONS"
	PayloadOpenApp      Intent = "open_app"
)

// IsAction reports whether the intent is a timer control button.
func (i Intent) IsAction() bool {
	switch i {
	case IntentPause, IntentResume, IntentStop:
		return true
	}
	return false
}

// IsPayload reports whether the intent is a session-transition tag.
func (i Intent) IsPayload() bool {
	switch i {
	case PayloadStartBreak, PayloadStartWork, PayloadCompletedAll, PayloadOpenApp:
		return true
	}
	return false
}

// EndPayload picks the tag carried by a session-end notification.
func EndPayload(endedWork, completedAll bool) Intent {
	switch {
	case endedWork && completedAll:
		return PayloadCompletedAll
	case endedWork:
		return PayloadStartBreak
	default:
		return PayloadStartWork
	}
}
