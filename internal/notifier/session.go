package notifier

import (
	"context"
	"sync"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/finality"
	"github.com/vietddude/finality/internal/metrics"
)

// Session is one finality wait started by the after-broadcast hook.
// Once canceled it is a no-op sink: late results never touch the UI.
type Session struct {
	n       *Notifier
	ref     domain.TransactionRef
	query   finality.StatusQuery
	surface PromptSurface

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	persistMu sync.Mutex // serializes snapshot+save so the store never goes backwards

	mu      sync.Mutex
	rec     domain.SessionRecord
	pending PromptHandle
	final   PromptHandle
	err     error
}

// ID returns the session ID.
func (s *Session) ID() string { return s.rec.ID }

// Ref returns the transaction the session waits on.
func (s *Session) Ref() domain.TransactionRef { return s.ref }

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.State
}

// Err returns the fatal error of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Record returns a snapshot of the session record.
func (s *Session) Record() domain.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rec
	return rec
}

// Cancel dismisses the session. It stops further polling and suppresses
// every later prompt update. It reports whether the session was still open.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if !s.setStateLocked(domain.SessionStateCanceled) {
		s.mu.Unlock()
		return false
	}
	pending := s.pending
	s.mu.Unlock()

	s.cancel()
	if pending != nil {
		pending.Cancel()
	}
	s.n.log.Info("Finality prompt dismissed", "tx", s.ref, "session", s.rec.ID)
	s.n.finish(s)
	return true
}

// advance moves a non-terminal session forward.
func (s *Session) advance(to State) bool {
	s.mu.Lock()
	ok := s.setStateLocked(to)
	s.mu.Unlock()
	if ok {
		s.n.persist(s)
	}
	return ok
}

// resolve moves the session to a terminal state and replaces the pending
// prompt with next. It is a no-op when the session was already canceled.
func (s *Session) resolve(to State, res finality.Result, err error, next domain.PromptSpec, kind string) bool {
	s.mu.Lock()
	if !s.setStateLocked(to) {
		s.mu.Unlock()
		return false
	}
	s.rec.Queries = res.Queries
	s.rec.NotFoundRetries = res.NotFoundRetries
	if err != nil {
		s.err = err
		s.rec.Error = err.Error()
	}

	if s.pending != nil {
		s.pending.Cancel()
	}
	h, perr := s.surface.Prompt(s.ctx, next)
	if perr != nil {
		s.n.log.Warn("Failed to show prompt", "tx", s.ref, "kind", kind, "error", perr)
	} else {
		s.final = h
		metrics.PromptsShown.WithLabelValues(kind).Inc()
	}
	s.mu.Unlock()

	s.cancel()
	s.n.finish(s)
	return true
}

// setStateLocked must be called with s.mu held.
func (s *Session) setStateLocked(to State) bool {
	if !CanTransition(s.rec.State, to) {
		return false
	}
	now := s.n.clock.Now()
	s.rec.State = to
	s.rec.UpdatedAt = now
	if to.IsTerminal() {
		s.rec.ResolvedAt = &now
		close(s.done)
	}
	return true
}

func (s *Session) watchDismissal(dismissed <-chan struct{}) {
	defer s.n.wg.Done()
	select {
	case <-dismissed:
		s.Cancel()
	case <-s.done:
	}
}
