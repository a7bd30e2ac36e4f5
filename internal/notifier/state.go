package notifier

import (
	"errors"

	"github.com/vietddude/finality/internal/core/domain"
)

// State is an alias for domain.SessionState for internal use.
type State = domain.SessionState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Terminal states have no entry.
var ValidTransitions = map[State][]State{
	domain.SessionStatePendingDisplay: {
		domain.SessionStateWaitingForDelay,
		domain.SessionStateCanceled,
	},
	domain.SessionStateWaitingForDelay: {
		domain.SessionStatePolling,
		domain.SessionStateCanceled,
	},
	domain.SessionStatePolling: {
		domain.SessionStateConfirmed,
		domain.SessionStateFailed,
		domain.SessionStateCanceled,
	},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.SessionStatePendingDisplay:
		return "Showing the broadcast prompt"
	case domain.SessionStateWaitingForDelay:
		return "Waiting before the first status query"
	case domain.SessionStatePolling:
		return "Polling the node for finality"
	case domain.SessionStateConfirmed:
		return "Transaction is irreversible"
	case domain.SessionStateFailed:
		return "Finality check failed"
	case domain.SessionStateCanceled:
		return "Prompt dismissed before an outcome"
	default:
		return "Unknown state"
	}
}
