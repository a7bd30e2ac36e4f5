package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/infra/storage"
)

const sessionColumns = `id, tx_id, state, queries, not_found_retries, error,
	deadline, started_at, updated_at, resolved_at`

// SessionRepo implements storage.SessionRepository using PostgreSQL.
type SessionRepo struct {
	db *DB
}

var (
	_ storage.SessionRepository = (*SessionRepo)(nil)
	_ storage.SessionPruner     = (*SessionRepo)(nil)
)

// NewSessionRepo creates a new PostgreSQL session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Save inserts or replaces a session record.
func (r *SessionRepo) Save(ctx context.Context, rec *domain.SessionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO finality_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			queries = EXCLUDED.queries,
			not_found_retries = EXCLUDED.not_found_retries,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			resolved_at = EXCLUDED.resolved_at`,
		rec.ID,
		string(rec.TxID),
		string(rec.State),
		rec.Queries,
		rec.NotFoundRetries,
		rec.Error,
		rec.Deadline,
		rec.StartedAt,
		rec.UpdatedAt,
		rec.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session record by ID.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := r.db.GetContext(ctx, &rec,
		`SELECT `+sessionColumns+` FROM finality_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &rec, nil
}

// List returns up to limit records, most recently started first.
func (r *SessionRepo) List(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM finality_sessions ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	recs := []*domain.SessionRecord{}
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return recs, nil
}

// ListByTx returns every session started for a transaction.
func (r *SessionRepo) ListByTx(ctx context.Context, txID domain.TransactionRef) ([]*domain.SessionRecord, error) {
	recs := []*domain.SessionRecord{}
	err := r.db.SelectContext(ctx, &recs,
		`SELECT `+sessionColumns+` FROM finality_sessions WHERE tx_id = $1 ORDER BY started_at DESC, id`,
		string(txID))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for tx: %w", err)
	}
	return recs, nil
}

// DeleteResolvedBefore removes sessions resolved before cutoff.
func (r *SessionRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM finality_sessions WHERE resolved_at IS NOT NULL AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned sessions: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection.
func (r *SessionRepo) Close() error {
	return r.db.Close()
}
