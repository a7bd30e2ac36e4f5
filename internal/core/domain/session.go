package domain

import "time"

// SessionRecord is the persisted view of one finality wait session
type SessionRecord struct {
	ID              string         `json:"id"                db:"id"`
	TxID            TransactionRef `json:"tx_id"             db:"tx_id"`
	State           SessionState   `json:"state"             db:"state"`
	Queries         int            `json:"queries"           db:"queries"`
	NotFoundRetries int            `json:"not_found_retries" db:"not_found_retries"`
	Error           string         `json:"error,omitempty"   db:"error"`
	Deadline        time.Time      `json:"deadline"          db:"deadline"`
	StartedAt       time.Time      `json:"started_at"        db:"started_at"`
	UpdatedAt       time.Time      `json:"updated_at"        db:"updated_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
}

type SessionState string

const (
	SessionStatePendingDisplay  SessionState = "pending_display"
	SessionStateWaitingForDelay SessionState = "waiting_for_delay"
	SessionStatePolling         SessionState = "polling"
	SessionStateConfirmed       SessionState = "confirmed"
	SessionStateFailed          SessionState = "failed"
	SessionStateCanceled        SessionState = "canceled"
)

// IsTerminal reports whether no further transition is possible.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionStateConfirmed, SessionStateFailed, SessionStateCanceled:
		return true
	default:
		return false
	}
}
