package alert

// State represents a phase of the alert lifecycle.
type State string

const (
	// StateIdle means no alert episode is in progress.
	StateIdle State = "idle"
	// StateArming means the pre-send countdown is running and the user
	// may still abort for free.
	StateArming State = "arming"
	// StateSending means the notification fan-out is in flight.
	StateSending State = "sending"
	// StateActive means contacts were notified and the location
	// broadcast loop is running.
	StateActive State = "active"
	// StateCancelling means a guarded cancellation is being verified.
	StateCancelling State = "cancelling"
	// StateCancelled is the terminal state of a user-cancelled alert.
	StateCancelled State = "cancelled"
	// StateResolved is the terminal state of an alert closed by a
	// contact or administrator confirming safety.
	StateResolved State = "resolved"
	// StateFailed is the terminal state reached when the fan-out could
	// not deliver to any contact.
	StateFailed State = "failed"
)

// validTransitions lists the allowed next states for every state.
//
//nolint:gochecknoglobals // Transition table is immutable reference data.
var validTransitions = map[State][]State{
	StateIdle:       {StateArming},
	StateArming:     {StateIdle, StateSending},
	StateSending:    {StateActive, StateFailed},
	StateActive:     {StateCancelling, StateCancelled, StateResolved},
	StateCancelling: {StateActive, StateCancelled},
	StateCancelled:  {},
	StateResolved:   {},
	StateFailed:     {},
}

// Terminal reports whether the state ends the alert lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateResolved, StateFailed:
		return true
	case StateIdle, StateArming, StateSending, StateActive, StateCancelling:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}
