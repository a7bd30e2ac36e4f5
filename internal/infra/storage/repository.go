package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/finality/internal/core/domain"
)

var (
	// ErrSessionNotFound is returned when a session record doesn't exist
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository handles finality session storage operations
type SessionRepository interface {
	// Save inserts or replaces a session record
	Save(ctx context.Context, rec *domain.SessionRecord) error

	// Get retrieves a session record by ID
	Get(ctx context.Context, id string) (*domain.SessionRecord, error)

	// List returns up to limit records, most recently started first
	List(ctx context.Context, limit int) ([]*domain.SessionRecord, error)

	// ListByTx returns every session started for a transaction
	ListByTx(ctx context.Context, txID domain.TransactionRef) ([]*domain.SessionRecord, error)

	// Close releases the backend
	Close() error
}

// SessionPruner is implemented by backends without native expiry
type SessionPruner interface {
	// DeleteResolvedBefore removes sessions resolved before cutoff
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
