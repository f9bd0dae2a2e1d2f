package datastore

// State is a step of the connection state machine:
// Idle -> TryingPrimary -> {Connected | TryingFallback} -> {Connected | Failed}.
type State int

const (
	StateIdle State = iota
	StateTryingPrimary
	StateTryingFallback
	StateConnected
	StateFailed
)

// States lists every state in declaration order.
var States = []State{StateIdle, StateTryingPrimary, StateTryingFallback, StateConnected, StateFailed}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTryingPrimary:
		return "trying_primary"
	case StateTryingFallback:
		return "trying_fallback"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateConnected || s == StateFailed
}

func validTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateTryingPrimary
	case StateTryingPrimary:
		return to == StateConnected || to == StateTryingFallback || to == StateFailed
	case StateTryingFallback:
		return to == StateConnected || to == StateFailed
	default:
		return false
	}
}
