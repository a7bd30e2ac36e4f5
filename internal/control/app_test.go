package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/core/config"
	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/infra/rpc"
	"github.com/vietddude/finality/internal/ui"
)

func newNode(t *testing.T, responses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != rpc.StatusPath {
			http.NotFound(w, r)
			return
		}
		i := int(hits.Add(1)) - 1
		if i < len(responses) && responses[i] != http.StatusOK {
			http.Error(w, "unknown transaction", responses[i])
			return
		}
		_, _ = w.Write([]byte(`{"state":"IRREVERSIBLE","irreversible_number":42}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(nodeURL string) Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Node.URL = nodeURL
	return FromAppConfig(cfg)
}

func TestApp_BroadcastReachesFinality(t *testing.T) {
	node, hits := newNode(t, http.StatusNotFound)
	fc := clockwork.NewFakeClock()

	app, err := NewApp(context.Background(), testConfig(node.URL), WithClock(fc))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})

	sessions, err := app.Broadcast(context.Background(), "abc123", app.Inbox())
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	fc.Advance(config.DefaultStartDelay)
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	fc.Advance(config.DefaultPollInterval)

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not resolve, state %s", s.State())
	}

	if s.State() != domain.SessionStateConfirmed {
		t.Fatalf("expected confirmed, got %s (%v)", s.State(), s.Err())
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 node requests, got %d", hits.Load())
	}

	rec, err := app.Repository().Get(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.NotFoundRetries != 1 {
		t.Errorf("expected 1 not-found retry, got %d", rec.NotFoundRetries)
	}

	prompts := app.Inbox().List()
	if len(prompts) != 1 || prompts[0].Spec.Title != "Transaction Irreversible" {
		t.Errorf("unexpected prompts %+v", prompts)
	}
}

func TestApp_ConsoleSurface(t *testing.T) {
	node, _ := newNode(t)
	fc := clockwork.NewFakeClock()

	app, err := NewApp(context.Background(), testConfig(node.URL), WithClock(fc))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	console := ui.NewConsole(ui.WithConsoleClock(fc))
	sessions, err := app.Broadcast(context.Background(), "abc123", console)
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if n := console.Dismiss(); n != 1 {
		t.Errorf("expected 1 open console prompt, got %d", n)
	}
	select {
	case <-sessions[0].Done():
	case <-time.After(5 * time.Second):
		t.Fatal("dismissal did not cancel the session")
	}
	if sessions[0].State() != domain.SessionStateCanceled {
		t.Errorf("expected canceled, got %s", sessions[0].State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestApp_Lifecycle(t *testing.T) {
	node, _ := newNode(t)

	app, err := NewApp(context.Background(), testConfig(node.URL))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected healthy service, got %d: %s", rec.Code, rec.Body.String())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestNewApp_RequiresNodeURL(t *testing.T) {
	if _, err := NewApp(context.Background(), testConfig("")); err == nil {
		t.Error("expected error without node url")
	}
}
