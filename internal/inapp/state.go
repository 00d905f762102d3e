package inapp

import "sync/atomic"

// State is the controller's lifecycle state.
type State int32

const (
	// StateResumed is normal operation.
	StateResumed State = iota
	// StateSuspended stops display attempts; queued in-apps wait.
	StateSuspended
	// StateDiscarded drops dequeued in-apps without showing them.
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateResumed:
		return "resumed"
	case StateSuspended:
		return "suspended"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// ParseState maps a state name to its State.
func ParseState(name string) (State, bool) {
	switch name {
	case "resumed", "resume":
		return StateResumed, true
	case "suspended", "suspend":
		return StateSuspended, true
	case "discarded", "discard":
		return StateDiscarded, true
	}
	return StateResumed, false
}

type stateHolder struct {
	v atomic.Int32
}

func (h *stateHolder) load() State { return State(h.v.Load()) }

// swap stores s and returns the previous state.
func (h *stateHolder) swap(s State) State { return State(h.v.Swap(int32(s))) }
