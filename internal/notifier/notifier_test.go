package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/finality"
	"github.com/vietddude/finality/internal/infra/storage/memory"
)

// =============================================================================
// Mocks
// =============================================================================

type fakeHandle struct {
	mu        sync.Mutex
	canceled  bool
	dismissed chan struct{}
	once      sync.Once
}

func (h *fakeHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = true
}

func (h *fakeHandle) Dismissed() <-chan struct{} { return h.dismissed }

func (h *fakeHandle) dismiss() { h.once.Do(func() { close(h.dismissed) }) }

func (h *fakeHandle) isCanceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled
}

type fakeSurface struct {
	mu      sync.Mutex
	prompts []domain.PromptSpec
	handles []*fakeHandle
	err     error
}

func (f *fakeSurface) Prompt(ctx context.Context, spec domain.PromptSpec) (PromptHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{dismissed: make(chan struct{})}
	f.prompts = append(f.prompts, spec)
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeSurface) snapshot() ([]domain.PromptSpec, []*fakeHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PromptSpec(nil), f.prompts...), append([]*fakeHandle(nil), f.handles...)
}

type queryStep struct {
	status domain.FinalityStatus
	err    error
}

var (
	irreversible = queryStep{status: domain.FinalityIrreversible}
	notFound     = queryStep{err: &finality.QueryError{Code: 404}}
	serverError  = queryStep{err: &finality.QueryError{Code: 500, Body: "boom"}}
)

type stubQuery struct {
	mu    sync.Mutex
	clock clockwork.Clock
	steps []queryStep
	calls []time.Time
}

func (q *stubQuery) GetStatus(ctx context.Context, ref domain.TransactionRef) (domain.FinalityStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, q.clock.Now())
	i := len(q.calls) - 1
	if i >= len(q.steps) {
		i = len(q.steps) - 1
	}
	return q.steps[i].status, q.steps[i].err
}

func (q *stubQuery) callTimes() []time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]time.Time(nil), q.calls...)
}

// blockingQuery holds the first query in flight until released.
type blockingQuery struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (q *blockingQuery) GetStatus(ctx context.Context, ref domain.TransactionRef) (domain.FinalityStatus, error) {
	q.once.Do(func() { close(q.started) })
	<-q.release
	return domain.FinalityIrreversible, nil
}

// =============================================================================
// Helpers
// =============================================================================

func newTestNotifier(t *testing.T) (*Notifier, *clockwork.FakeClock, *memory.SessionRepo) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	w := finality.New(finality.DefaultConfig, finality.WithClock(fc))
	repo := memory.NewSessionRepo()
	n := New(w, DefaultStartDelay, WithClock(fc), WithRepository(repo))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return n, fc, repo
}

func blockUntil(t *testing.T, fc *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("timed out waiting for %d timers: %v", n, err)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish, state %s", s.State())
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestOnAfterBroadcast_ShowsPendingPromptImmediately(t *testing.T) {
	n, fc, _ := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{irreversible}}
	start := fc.Now()

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "transaction_id"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompts, _ := surface.snapshot()
	if len(prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(prompts))
	}
	want := domain.CountdownElement(start.Add(150 * time.Second))
	if len(prompts[0].Elements) != 2 || prompts[0].Elements[0] != want {
		t.Errorf("expected countdown %v, got %+v", want, prompts[0].Elements)
	}
	if prompts[0].Elements[1].Type != domain.ElementClose {
		t.Errorf("expected close element, got %+v", prompts[0].Elements[1])
	}
	if s.State() != domain.SessionStateWaitingForDelay {
		t.Errorf("expected waiting_for_delay, got %s", s.State())
	}
	if len(q.callTimes()) != 0 {
		t.Error("status must not be queried before the start delay")
	}
}

func TestOnAfterBroadcast_ConfirmedAtFirstPoll(t *testing.T) {
	n, fc, repo := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{irreversible}}
	start := fc.Now()

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "transaction_id"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blockUntil(t, fc, 1)
	fc.Advance(150*time.Second - time.Millisecond)
	if len(q.callTimes()) != 0 {
		t.Fatal("queried before t=150,000ms")
	}
	fc.Advance(time.Millisecond)
	waitDone(t, s)

	calls := q.callTimes()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 query, got %d", len(calls))
	}
	if got := calls[0].Sub(start); got != 150*time.Second {
		t.Errorf("expected first poll at 150s, got %s", got)
	}
	if s.State() != domain.SessionStateConfirmed {
		t.Errorf("expected confirmed, got %s", s.State())
	}

	prompts, handles := surface.snapshot()
	if len(prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(prompts))
	}
	if !handles[0].isCanceled() {
		t.Error("pending prompt should be canceled")
	}
	if prompts[1].Title != "Transaction Irreversible" {
		t.Errorf("unexpected confirmed prompt %q", prompts[1].Title)
	}
	if _, ok := prompts[1].Countdown(); ok {
		t.Error("confirmed prompt must not carry a countdown")
	}

	rec, err := repo.Get(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.State != domain.SessionStateConfirmed || rec.Queries != 1 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestOnAfterBroadcast_NotFoundThenConfirmed(t *testing.T) {
	n, fc, _ := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{notFound, irreversible}}
	start := fc.Now()

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "transaction_id"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blockUntil(t, fc, 1)
	fc.Advance(150 * time.Second)
	blockUntil(t, fc, 1)
	if s.State() != domain.SessionStatePolling {
		t.Errorf("expected polling, got %s", s.State())
	}
	fc.Advance(5 * time.Second)
	waitDone(t, s)

	calls := q.callTimes()
	if len(calls) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(calls))
	}
	if got := calls[1].Sub(start); got != 155*time.Second {
		t.Errorf("expected second poll at 155s, got %s", got)
	}

	rec := s.Record()
	if rec.NotFoundRetries != 1 || rec.Queries != 2 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.ResolvedAt == nil || rec.ResolvedAt.Sub(start) != 155*time.Second {
		t.Errorf("expected resolution at 155s, got %v", rec.ResolvedAt)
	}
}

func TestOnAfterBroadcast_DismissBeforeDelay(t *testing.T) {
	n, fc, repo := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{irreversible}}

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "transaction_id"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blockUntil(t, fc, 1)
	fc.Advance(60 * time.Second)

	_, handles := surface.snapshot()
	handles[0].dismiss()
	waitDone(t, s)

	fc.Advance(10 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := len(q.callTimes()); got != 0 {
		t.Errorf("expected no queries after dismissal, got %d", got)
	}
	prompts, _ := surface.snapshot()
	if len(prompts) != 1 {
		t.Errorf("expected no prompt after dismissal, got %d prompts", len(prompts))
	}
	if s.State() != domain.SessionStateCanceled {
		t.Errorf("expected canceled, got %s", s.State())
	}
	rec, err := repo.Get(context.Background(), s.ID())
	if err != nil || rec.State != domain.SessionStateCanceled {
		t.Errorf("expected canceled record, got %+v (%v)", rec, err)
	}
}

func TestOnAfterBroadcast_DismissWhileQueryInFlight(t *testing.T) {
	n, fc, _ := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &blockingQuery{started: make(chan struct{}), release: make(chan struct{})}

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "transaction_id"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blockUntil(t, fc, 1)
	fc.Advance(150 * time.Second)
	select {
	case <-q.started:
	case <-time.After(5 * time.Second):
		t.Fatal("query never started")
	}

	_, handles := surface.snapshot()
	handles[0].dismiss()
	waitDone(t, s)
	close(q.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	prompts, _ := surface.snapshot()
	if len(prompts) != 1 {
		t.Errorf("late result must not update the UI, got %d prompts", len(prompts))
	}
	if s.State() != domain.SessionStateCanceled {
		t.Errorf("expected canceled, got %s", s.State())
	}
}

func TestOnAfterBroadcast_FatalErrorShowsErrorPrompt(t *testing.T) {
	n, fc, repo := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{serverError}}

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "transaction_id"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("hook must not fail on a later fatal error: %v", err)
	}

	blockUntil(t, fc, 1)
	fc.Advance(150 * time.Second)
	waitDone(t, s)

	if s.State() != domain.SessionStateFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
	var fatal *finality.FatalError
	if !errors.As(s.Err(), &fatal) {
		t.Fatalf("expected FatalError, got %v", s.Err())
	}

	prompts, handles := surface.snapshot()
	if len(prompts) != 2 {
		t.Fatalf("expected error prompt, got %d prompts", len(prompts))
	}
	if !handles[0].isCanceled() {
		t.Error("countdown prompt must not stay open after a fatal error")
	}
	if prompts[1].Title != "Finality Check Failed" {
		t.Errorf("unexpected prompt %q", prompts[1].Title)
	}
	if prompts[1].Elements[len(prompts[1].Elements)-1].Type != domain.ElementClose {
		t.Error("error prompt must be dismissible")
	}

	rec, err := repo.Get(context.Background(), s.ID())
	if err != nil || rec.Error == "" {
		t.Errorf("expected persisted error, got %+v (%v)", rec, err)
	}
}

func TestOnAfterBroadcast_NotFoundBudgetExhausted(t *testing.T) {
	n, fc, _ := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{notFound}}

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "transaction_id"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blockUntil(t, fc, 1)
	fc.Advance(150 * time.Second)
	for i := 0; i < 3; i++ {
		blockUntil(t, fc, 1)
		fc.Advance(5 * time.Second)
	}
	waitDone(t, s)

	if s.State() != domain.SessionStateFailed {
		t.Errorf("expected failed, got %s", s.State())
	}
	if got := len(q.callTimes()); got != 4 {
		t.Errorf("expected 4 queries, got %d", got)
	}
}

func TestOnAfterBroadcast_Preconditions(t *testing.T) {
	n, fc, _ := newTestNotifier(t)
	q := &stubQuery{clock: fc, steps: []queryStep{irreversible}}

	if _, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "tx"}, HookContext{Query: q}); !errors.Is(err, ErrPromptUnavailable) {
		t.Errorf("expected ErrPromptUnavailable, got %v", err)
	}
	if _, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "tx"}, HookContext{Surface: &fakeSurface{}}); !errors.Is(err, ErrQueryUnavailable) {
		t.Errorf("expected ErrQueryUnavailable, got %v", err)
	}

	failing := &fakeSurface{err: errors.New("ui closed")}
	if _, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "tx"}, HookContext{Query: q, Surface: failing}); err == nil {
		t.Error("expected prompt error")
	}

	if got := len(n.Active()); got != 0 {
		t.Errorf("expected no sessions, got %d", got)
	}
}

func TestRegister_OneSessionPerHook(t *testing.T) {
	n, fc, _ := newTestNotifier(t)
	hooks := NewHooks()
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{irreversible}}
	hctx := HookContext{Query: q, Surface: surface}

	n.Register(hooks)
	if got := hooks.Count(HookAfterBroadcast); got != 1 {
		t.Fatalf("expected 1 hook, got %d", got)
	}
	if err := hooks.Fire(context.Background(), HookAfterBroadcast, BroadcastRequest{Ref: "tx-a"}, hctx); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if got := len(n.SessionsForTx("tx-a")); got != 1 {
		t.Errorf("expected 1 session, got %d", got)
	}

	n.Register(hooks)
	if err := hooks.Fire(context.Background(), HookAfterBroadcast, BroadcastRequest{Ref: "tx-b"}, hctx); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if got := len(n.SessionsForTx("tx-b")); got != 2 {
		t.Errorf("double registration should yield 2 sessions, got %d", got)
	}
	blockUntil(t, fc, 3)
}

func TestHooks_FireReportsPreconditionFailure(t *testing.T) {
	n, _, _ := newTestNotifier(t)
	hooks := NewHooks()
	n.Register(hooks)

	err := hooks.Fire(context.Background(), HookAfterBroadcast, BroadcastRequest{Ref: "tx"}, HookContext{})
	if !errors.Is(err, ErrPromptUnavailable) {
		t.Errorf("expected ErrPromptUnavailable, got %v", err)
	}
}

func TestSession_CancelIsIdempotent(t *testing.T) {
	n, fc, _ := newTestNotifier(t)
	surface := &fakeSurface{}
	q := &stubQuery{clock: fc, steps: []queryStep{irreversible}}

	s, err := n.OnAfterBroadcast(context.Background(), BroadcastRequest{Ref: "tx"}, HookContext{Query: q, Surface: surface})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !s.Cancel() {
		t.Error("first cancel should succeed")
	}
	if s.Cancel() {
		t.Error("second cancel should be a no-op")
	}
	_, handles := surface.snapshot()
	if !handles[0].isCanceled() {
		t.Error("cancel should withdraw the pending prompt")
	}
	if _, ok := n.Session(s.ID()); ok {
		t.Error("canceled session should no longer be active")
	}
	rec, err := n.Get(context.Background(), s.ID())
	if err != nil || rec.State != domain.SessionStateCanceled {
		t.Errorf("expected canceled record from repository, got %+v (%v)", rec, err)
	}
}
