package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/infra/storage"
)

// DefaultSessionTTL is how long session records are kept.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionRepo implements storage.SessionRepository using Redis.
// Records are JSON values; sorted sets index them by start time.
type SessionRepo struct {
	client *Client
	rdb    *redis.Client
	ttl    time.Duration
}

var _ storage.SessionRepository = (*SessionRepo)(nil)

// NewSessionRepo creates a new Redis-backed session repository.
func NewSessionRepo(client *Client, ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRepo{
		client: client,
		rdb:    client.rdb,
		ttl:    ttl,
	}
}

// Save stores the record and indexes it.
func (r *SessionRepo) Save(ctx context.Context, rec *domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	score := float64(rec.StartedAt.UnixMilli())
	txKey := txIndexKey(rec.TxID.String())

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(rec.ID), data, r.ttl)
		pipe.ZAdd(ctx, sessionIndexKey(), redis.Z{Score: score, Member: rec.ID})
		pipe.ZAdd(ctx, txKey, redis.Z{Score: score, Member: rec.ID})
		pipe.Expire(ctx, txKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session record by ID.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &rec, nil
}

// List returns up to limit records, most recently started first.
func (r *SessionRepo) List(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.rdb.ZRevRange(ctx, sessionIndexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	return r.load(ctx, sessionIndexKey(), ids)
}

// ListByTx returns every session started for a transaction.
func (r *SessionRepo) ListByTx(ctx context.Context, txID domain.TransactionRef) ([]*domain.SessionRecord, error) {
	key := txIndexKey(txID.String())
	ids, err := r.rdb.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	return r.load(ctx, key, ids)
}

// load fetches records in index order and drops index entries whose data expired.
func (r *SessionRepo) load(ctx context.Context, index string, ids []string) ([]*domain.SessionRecord, error) {
	if len(ids) == 0 {
		return []*domain.SessionRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	out := make([]*domain.SessionRecord, 0, len(ids))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec domain.SessionRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}

	if len(stale) > 0 {
		r.rdb.ZRem(ctx, index, stale...)
	}
	return out, nil
}

// Close closes the underlying client.
func (r *SessionRepo) Close() error {
	return r.client.Close()
}
