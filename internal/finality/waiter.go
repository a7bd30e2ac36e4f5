// Package finality waits for a broadcast transaction to become irreversible.
//
// A Waiter polls a StatusQuery at a fixed interval until the node reports
// IRREVERSIBLE. Not-found failures are retried against a per-session budget;
// every other failure ends the session with a *FatalError.
package finality

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/metrics"
)

// StatusQuery fetches the finality status of a transaction.
type StatusQuery interface {
	GetStatus(ctx context.Context, ref domain.TransactionRef) (domain.FinalityStatus, error)
}

// StatusQueryFunc adapts a function to StatusQuery.
type StatusQueryFunc func(ctx context.Context, ref domain.TransactionRef) (domain.FinalityStatus, error)

func (f StatusQueryFunc) GetStatus(ctx context.Context, ref domain.TransactionRef) (domain.FinalityStatus, error) {
	return f(ctx, ref)
}

// Config defines polling behavior.
type Config struct {
	PollInterval       time.Duration
	MaxNotFoundRetries int
}

// DefaultConfig polls every 5 seconds and tolerates 3 not-found answers.
var DefaultConfig = Config{
	PollInterval:       5 * time.Second,
	MaxNotFoundRetries: 3,
}

// Result reports what a wait session consumed.
type Result struct {
	Queries         int
	NotFoundRetries int
}

// Waiter runs finality wait sessions. It holds no per-session state and is
// safe for concurrent use.
type Waiter struct {
	cfg   Config
	clock clockwork.Clock
	log   *slog.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(w *Waiter) { w.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Waiter) { w.log = l }
}

// New creates a Waiter.
func New(cfg Config, opts ...Option) *Waiter {
	if cfg.MaxNotFoundRetries < 0 {
		cfg.MaxNotFoundRetries = 0
	}
	w := &Waiter{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns the polling configuration.
func (w *Waiter) Config() Config {
	return w.cfg
}

// Wait polls query until ref is irreversible. It returns a *FatalError when
// the session fails, or ctx.Err() when ctx ends first.
func (w *Waiter) Wait(ctx context.Context, ref domain.TransactionRef, query StatusQuery) (Result, error) {
	var res Result

	for {
		start := w.clock.Now()
		status, err := query.GetStatus(ctx, ref)
		res.Queries++
		latency := w.clock.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}

			action := ClassifyError(err)
			if action == ActionFatal {
				observeQuery("error", latency)
				w.log.Warn("Status query failed", "tx", ref, "query", res.Queries, "error", err)
				return res, &FatalError{Ref: ref, Queries: res.Queries, Err: err}
			}

			observeQuery("not_found", latency)
			if res.NotFoundRetries >= w.cfg.MaxNotFoundRetries {
				w.log.Warn("Transaction not found, retry budget exhausted",
					"tx", ref, "queries", res.Queries, "max_retries", w.cfg.MaxNotFoundRetries)
				return res, &FatalError{Ref: ref, Queries: res.Queries, Exhausted: true, Err: err}
			}
			res.NotFoundRetries++
			metrics.NotFoundRetries.Inc()
			w.log.Debug("Transaction not found yet, retrying",
				"tx", ref, "retry", res.NotFoundRetries, "max_retries", w.cfg.MaxNotFoundRetries)
		} else {
			if status == domain.FinalityIrreversible {
				observeQuery("irreversible", latency)
				w.log.Debug("Transaction is irreversible", "tx", ref, "queries", res.Queries)
				return res, nil
			}
			observeQuery("pending", latency)
			w.log.Debug("Transaction not yet irreversible", "tx", ref, "query", res.Queries)
		}

		if err := Sleep(ctx, w.clock, w.cfg.PollInterval); err != nil {
			return res, err
		}
	}
}

// Sleep blocks for d on clock or until ctx ends.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

func observeQuery(result string, latency time.Duration) {
	metrics.StatusQueries.WithLabelValues(result).Inc()
	metrics.StatusQueryLatency.WithLabelValues(result).Observe(latency.Seconds())
}
