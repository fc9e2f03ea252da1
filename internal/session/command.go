package session

// Command is a request applied by the scheduler. The set is closed: only the
// types in this file implement it.
type Command interface {
	command()
	Name() string
}

// Start reinitializes the session from Snapshot, discarding any prior state.
type Start struct {
	Snapshot Snapshot
}

// Pause halts ticking on a running session.
type Pause struct{}

// Resume restarts ticking on a paused session.
type Resume struct{}

// Stop halts ticking and resets to the default snapshot.
type Stop struct{}

// SessionEndAck reports that the presentation consumed a session-end signal.
// IsWorkSession is the segment the presentation is about to show.
type SessionEndAck struct {
	IsWorkSession bool
}

func (Start) command()         {}
func (Pause) command()         {}
func (Resume) command()        {}
func (Stop) command()          {}
func (SessionEndAck) command() {}

func (Start) Name() string         { return "START" }
func (Pause) Name() string         { return "PAUSE" }
func (Resume) Name() string        { return "RESUME" }
func (Stop) Name() string          { return "STOP" }
func (SessionEndAck) Name() string { return "SESSION_END_ACK" }
