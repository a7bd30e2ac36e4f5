// Package notifier drives the user-facing prompt around a finality wait.
//
// When the host fires the after-broadcast hook, the Notifier shows a pending
// prompt with a countdown, starts a finality.Waiter session once the start
// delay has elapsed, and replaces the prompt with a confirmed or failed one.
// Dismissing the prompt cancels the session; nothing touches the UI after that.
//
// The hook always returns nil once the session is scheduled. Fatal finality
// errors are logged, persisted and exposed through Session.Err, but never
// propagated into the host's broadcast pipeline.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/finality"
	"github.com/vietddude/finality/internal/infra/storage"
	"github.com/vietddude/finality/internal/metrics"
)

// DefaultStartDelay is how long after broadcast the first status query runs.
const DefaultStartDelay = 150 * time.Second

var (
	// ErrPromptUnavailable is returned when the hook fires without a prompt surface.
	ErrPromptUnavailable = errors.New("prompt surface not available")

	// ErrQueryUnavailable is returned when the hook fires without a status query.
	ErrQueryUnavailable = errors.New("status query not available")
)

// Notifier schedules finality waits and keeps their prompts in sync.
type Notifier struct {
	waiter     *finality.Waiter
	startDelay time.Duration
	clock      clockwork.Clock
	repo       storage.SessionRepository
	log        *slog.Logger

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock replaces the real clock. Pass the same clock to the Waiter.
func WithClock(c clockwork.Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

// WithRepository persists session records on every transition.
func WithRepository(r storage.SessionRepository) Option {
	return func(n *Notifier) { n.repo = r }
}

// New creates a Notifier.
func New(waiter *finality.Waiter, startDelay time.Duration, opts ...Option) *Notifier {
	if startDelay < 0 {
		startDelay = 0
	}
	root, stop := context.WithCancel(context.Background())
	n := &Notifier{
		waiter:     waiter,
		startDelay: startDelay,
		clock:      clockwork.NewRealClock(),
		log:        slog.Default(),
		root:       root,
		stop:       stop,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Register adds the after-broadcast hook. Each call adds one more hook.
func (n *Notifier) Register(reg HookRegistrar) {
	reg.AddHook(HookAfterBroadcast, n.Hook)
}

// Hook is the HookFunc registered with the host.
func (n *Notifier) Hook(ctx context.Context, req BroadcastRequest, hctx HookContext) error {
	_, err := n.OnAfterBroadcast(ctx, req, hctx)
	return err
}

// OnAfterBroadcast shows the pending prompt and schedules the finality wait.
// It returns without waiting; use Session.Done to observe the outcome.
// Missing collaborators are reported synchronously.
func (n *Notifier) OnAfterBroadcast(ctx context.Context, req BroadcastRequest, hctx HookContext) (*Session, error) {
	if hctx.Surface == nil {
		return nil, ErrPromptUnavailable
	}
	if hctx.Query == nil {
		return nil, ErrQueryUnavailable
	}

	now := n.clock.Now()
	deadline := now.Add(n.startDelay)

	sctx, cancel := context.WithCancel(n.root)
	s := &Session{
		n:       n,
		ref:     req.Ref,
		query:   hctx.Query,
		surface: hctx.Surface,
		ctx:     sctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		rec: domain.SessionRecord{
			ID:        uuid.NewString(),
			TxID:      req.Ref,
			State:     domain.SessionStatePendingDisplay,
			Deadline:  deadline,
			StartedAt: now,
			UpdatedAt: now,
		},
	}

	handle, err := hctx.Surface.Prompt(ctx, pendingPrompt(deadline))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("show pending prompt: %w", err)
	}
	metrics.PromptsShown.WithLabelValues(promptPending).Inc()
	s.pending = handle

	n.track(s)
	metrics.SessionsStarted.Inc()
	s.advance(domain.SessionStateWaitingForDelay)
	n.log.Info("Transaction broadcast, waiting for finality",
		"tx", req.Ref, "session", s.ID(), "deadline", deadline.Format(time.RFC3339))

	n.wg.Add(2)
	go s.watchDismissal(handle.Dismissed())
	go n.run(s)

	return s, nil
}

func (n *Notifier) run(s *Session) {
	defer n.wg.Done()

	if err := finality.Sleep(s.ctx, n.clock, n.startDelay); err != nil {
		return
	}
	if !s.advance(domain.SessionStatePolling) {
		return
	}

	n.log.Info("Checking transaction finality", "tx", s.ref, "session", s.ID())
	res, err := n.waiter.Wait(s.ctx, s.ref, s.query)
	if err != nil && s.ctx.Err() != nil {
		// canceled while polling; the outcome is discarded
		return
	}
	if err != nil {
		n.log.Error("Error while checking transaction finality",
			"tx", s.ref, "session", s.ID(), "queries", res.Queries, "error", err)
		s.resolve(domain.SessionStateFailed, res, err, failedPrompt(err), promptFailed)
		return
	}

	if s.resolve(domain.SessionStateConfirmed, res, nil, confirmedPrompt(), promptConfirmed) {
		rec := s.Record()
		metrics.TimeToFinality.Observe(n.clock.Since(rec.StartedAt).Seconds())
		n.log.Info("Transaction finality reached",
			"tx", s.ref, "session", s.ID(), "queries", res.Queries, "not_found_retries", res.NotFoundRetries)
	}
}

// Get returns an active session's record, falling back to the repository.
func (n *Notifier) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	n.mu.RLock()
	s, ok := n.sessions[id]
	n.mu.RUnlock()
	if ok {
		rec := s.Record()
		return &rec, nil
	}
	if n.repo == nil {
		return nil, storage.ErrSessionNotFound
	}
	return n.repo.Get(ctx, id)
}

// Session returns an active session by ID.
func (n *Notifier) Session(id string) (*Session, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.sessions[id]
	return s, ok
}

// Active returns every session that has not reached a terminal state.
func (n *Notifier) Active() []*Session {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		out = append(out, s)
	}
	return out
}

// SessionsForTx returns the active sessions waiting on ref.
func (n *Notifier) SessionsForTx(ref domain.TransactionRef) []*Session {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Session
	for _, s := range n.sessions {
		if s.ref == ref {
			out = append(out, s)
		}
	}
	return out
}

// Shutdown cancels every active session and waits for their goroutines.
func (n *Notifier) Shutdown(ctx context.Context) error {
	for _, s := range n.Active() {
		s.Cancel()
	}
	n.stop()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notifier shutdown: %w", ctx.Err())
	}
}

func (n *Notifier) track(s *Session) {
	n.mu.Lock()
	n.sessions[s.ID()] = s
	n.mu.Unlock()
	metrics.SessionsActive.Inc()
}

// finish records a terminal session and stops tracking it.
func (n *Notifier) finish(s *Session) {
	n.persist(s)

	n.mu.Lock()
	_, ok := n.sessions[s.ID()]
	delete(n.sessions, s.ID())
	n.mu.Unlock()

	if ok {
		metrics.SessionsActive.Dec()
		metrics.SessionsResolved.WithLabelValues(string(s.State())).Inc()
	}
}

func (n *Notifier) persist(s *Session) {
	if n.repo == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	rec := s.Record()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.repo.Save(ctx, &rec); err != nil {
		n.log.Warn("Failed to persist session", "session", rec.ID, "state", rec.State, "error", err)
	}
}
