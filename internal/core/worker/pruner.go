package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/infra/storage"
)

// Pruner deletes resolved sessions based on retention policy.
type Pruner struct {
	retention time.Duration
	repo      storage.SessionPruner
	clock     clockwork.Clock
	log       *slog.Logger
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pruner) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pruner) { p.log = l }
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.SessionPruner, opts ...Option) *Pruner {
	p := &Pruner{
		retention: retention,
		repo:      repo,
		clock:     clockwork.NewRealClock(),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns how often the pruner runs: 10% of retention, between 1m and 1h.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := p.clock.NewTicker(p.Interval())
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.Prune(ctx)
		}
	}
}

// Prune deletes sessions resolved before now minus retention.
func (p *Pruner) Prune(ctx context.Context) int {
	cutoff := p.clock.Now().Add(-p.retention)
	n, err := p.repo.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune sessions", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned resolved sessions", "count", n, "cutoff", cutoff)
	}
	return n
}
