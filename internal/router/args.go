package router

import (
	"encoding/json"
	"math"

	"pomotimer/internal/session"
)

// StartSnapshot builds a START payload from a loosely typed argument map.
// "timerSeconds" is accepted as an alias for "seconds".
func StartSnapshot(args map[string]any) session.Snapshot {
	d := session.Default()
	seconds, ok := intArg(args, "seconds")
	if !ok {
		seconds, ok = intArg(args, "timerSeconds")
	}
	if !ok {
		seconds, ok = intArg(args, session.KeySeconds)
	}
	if !ok {
		seconds = d.Seconds
	}
	return session.Snapshot{
		Seconds:       seconds,
		IsRunning:     boolArg(args, session.KeyIsRunning, d.IsRunning),
		IsPaused:      boolArg(args, session.KeyIsPaused, d.IsPaused),
		IsCountingUp:  boolArg(args, session.KeyIsCountingUp, d.IsCountingUp),
		IsWorkSession: boolArg(args, session.KeyIsWorkSession, d.IsWorkSession),
	}
}

func intArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func boolArg(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}
