package ipc

import (
	"encoding/json"
	"fmt"

	"pomotimer/internal/session"
)

const SocketPath = "/tmp/pomotimer.sock"

// Command represents a command sent over the socket
type Command struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"` // machine-readable failure class
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Failure codes.
const (
	CodeUnimplemented = "unimplemented"
	CodeBadRequest    = "bad_request"
	CodeShuttingDown  = "shutting_down"
)

// --- Command Argument Structs ---

// StartArgs carries the full START payload. Pointer fields distinguish
// "absent" from false so defaults can be applied.
type StartArgs struct {
	Seconds       *int  `json:"seconds,omitempty"`
	IsRunning     *bool `json:"isRunning,omitempty"`
	IsPaused      *bool `json:"isPaused,omitempty"`
	IsCountingUp  *bool `json:"isCountingUp,omitempty"`
	IsWorkSession *bool `json:"isWorkSession,omitempty"`
}

type AckSessionEndArgs struct {
	IsWorkSession bool `json:"isWorkSession"`
}

// CancelNotificationArgs cancels every session notification when ID is nil.
type CancelNotificationArgs struct {
	ID *int `json:"id,omitempty"`
}

type NotificationActionArgs struct {
	Action session.Intent `json:"action"`
}

type ReentryArgs struct {
	Payload       session.Intent `json:"payload"`
	IsWorkSession *bool          `json:"isWorkSession,omitempty"`
}

// --- Command Names (Constants) ---

const (
	CmdPing               = "ping"
	CmdStart              = "start"
	CmdPause              = "pause"
	CmdResume             = "resume"
	CmdStop               = "stop"
	CmdGetState           = "get_state" // cold snapshot from the store
	CmdAttach             = "attach"    // streams Frame values until hangup
	CmdAckSessionEnd      = "ack_session_end"
	CmdCancelNotification = "cancel_notification"
	CmdNotificationAction = "notification_action"
	CmdReentry            = "reentry"
)

// --- Response Data ---

type ReentryData struct {
	Directive string `json:"directive"`
}

// Frame is one line of an attach stream.
type Frame struct {
	Snapshot session.Snapshot `json:"snapshot"`
	State    session.RunState `json:"state"`
}

func NewFrame(snap session.Snapshot) Frame {
	return Frame{Snapshot: snap, State: snap.State()}
}

// DecodeArgs converts the loosely typed Args of a decoded command into out.
func DecodeArgs(input interface{}, out interface{}) error {
	if input == nil {
		return nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal args map: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal args into struct: %w", err)
	}
	return nil
}
