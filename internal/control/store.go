package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/finality/internal/api"
	redisclient "github.com/vietddude/finality/internal/infra/redis"
	"github.com/vietddude/finality/internal/infra/storage"
	"github.com/vietddude/finality/internal/infra/storage/memory"
	"github.com/vietddude/finality/internal/infra/storage/postgres"
)

// StorageConfig selects the session backend: database URL, then Redis URL,
// then process memory.
type StorageConfig struct {
	Redis     redisclient.Config
	Database  postgres.Config
	Retention time.Duration
}

// Store is the opened session backend.
type Store struct {
	Backend string
	Repo    storage.SessionRepository
	DB      *postgres.DB
	Redis   *redisclient.Client
}

// OpenStore connects the configured backend and runs migrations.
func OpenStore(ctx context.Context, cfg StorageConfig) (*Store, error) {
	switch {
	case cfg.Database.URL != "":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL storage")
		return &Store{Backend: "postgres", Repo: postgres.NewSessionRepo(db), DB: db}, nil

	case cfg.Redis.URL != "":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis storage")
		return &Store{
			Backend: "redis",
			Repo:    redisclient.NewSessionRepo(client, cfg.Retention),
			Redis:   client,
		}, nil

	default:
		slog.Info("Using Memory storage")
		return &Store{Backend: "memory", Repo: memory.NewSessionRepo()}, nil
	}
}

// Check reports the backend's health.
func (s *Store) Check(ctx context.Context) api.ComponentHealth {
	c := api.ComponentHealth{Name: "storage", Status: api.StatusHealthy, Detail: s.Backend}

	var err error
	switch {
	case s.DB != nil:
		err = s.DB.Health(ctx)
	case s.Redis != nil:
		err = s.Redis.Ping(ctx)
	}
	if err != nil {
		c.Status = api.StatusCritical
		c.Detail = fmt.Sprintf("%s: %v", s.Backend, err)
	}
	return c
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.Repo == nil {
		return nil
	}
	return s.Repo.Close()
}
