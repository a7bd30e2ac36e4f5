package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/infra/storage"
)

// SessionRepo keeps session records in process memory.
type SessionRepo struct {
	sessions map[string]domain.SessionRecord
	mu       sync.RWMutex
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions: make(map[string]domain.SessionRecord),
	}
}

func (r *SessionRepo) Save(ctx context.Context, rec *domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[rec.ID] = *rec
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	return &rec, nil
}

func (r *SessionRepo) List(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.SessionRecord, 0, len(r.sessions))
	for _, rec := range r.sessions {
		rec := rec
		out = append(out, &rec)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SessionRepo) ListByTx(ctx context.Context, txID domain.TransactionRef) ([]*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.SessionRecord
	for _, rec := range r.sessions {
		if rec.TxID == txID {
			rec := rec
			out = append(out, &rec)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *SessionRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, rec := range r.sessions {
		if rec.ResolvedAt != nil && rec.ResolvedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *SessionRepo) Close() error {
	return nil
}

func sortNewestFirst(recs []*domain.SessionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].StartedAt.Equal(recs[j].StartedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
}
