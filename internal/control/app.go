// Package control wires configuration, storage, the node client, the
// notifier and the API server into a runnable App.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/finality/internal/api"
	"github.com/vietddude/finality/internal/core/config"
	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/core/worker"
	"github.com/vietddude/finality/internal/finality"
	"github.com/vietddude/finality/internal/infra/rpc"
	"github.com/vietddude/finality/internal/infra/storage"
	"github.com/vietddude/finality/internal/notifier"
	"github.com/vietddude/finality/internal/ui"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	Node     config.NodeConfig
	Finality config.FinalityConfig
	Storage  StorageConfig
}

// FromAppConfig converts the loaded file configuration.
func FromAppConfig(cfg *config.AppConfig) Config {
	return Config{
		Port:     cfg.Server.Port,
		Node:     cfg.Node,
		Finality: cfg.Finality,
		Storage: StorageConfig{
			Redis:     cfg.Redis,
			Database:  cfg.Database,
			Retention: cfg.Finality.SessionRetention,
		},
	}
}

// App is the main application struct that manages the notifier lifecycle.
type App struct {
	cfg      Config
	client   *rpc.Client
	waiter   *finality.Waiter
	notifier *notifier.Notifier
	hooks    *notifier.Hooks
	inbox    *ui.Inbox
	store    *Store
	server   *api.Server
	clock    clockwork.Clock
	log      *slog.Logger
	cancel   context.CancelFunc
}

// Option configures an App.
type Option func(*App)

// WithClock replaces the real clock in the waiter, notifier and inbox.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.Node.URL == "" {
		return nil, fmt.Errorf("node url is required")
	}

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.store = store

	a.client = rpc.NewClient("node", cfg.Node.URL, cfg.Node.Timeout,
		rpc.WithTransportRetries(cfg.Node.TransportRetries),
		rpc.WithLogger(a.log),
	)

	a.waiter = finality.New(finality.Config{
		PollInterval:       cfg.Finality.PollInterval,
		MaxNotFoundRetries: cfg.Finality.MaxNotFoundRetries,
	}, finality.WithClock(a.clock), finality.WithLogger(a.log))

	a.notifier = notifier.New(a.waiter, cfg.Finality.StartDelay,
		notifier.WithClock(a.clock),
		notifier.WithLogger(a.log),
		notifier.WithRepository(store.Repo),
	)

	a.hooks = notifier.NewHooks()
	a.notifier.Register(a.hooks)

	a.inbox = ui.NewInbox(ui.WithInboxClock(a.clock), ui.WithInboxLogger(a.log))

	a.server = api.NewServer(api.Deps{
		Hooks:    a.hooks,
		Notifier: a.notifier,
		Repo:     store.Repo,
		Inbox:    a.inbox,
		Query:    a.client,
		Checks:   []api.HealthCheck{a.nodeCheck, store.Check},
		Logger:   a.log,
	}, cfg.Port)

	a.log.Info("Finality notifier initialized",
		"node", cfg.Node.URL,
		"storage", store.Backend,
		"start_delay", cfg.Finality.StartDelay,
		"poll_interval", cfg.Finality.PollInterval,
		"max_not_found_retries", cfg.Finality.MaxNotFoundRetries,
	)
	return a, nil
}

// Start starts the API server and background collectors.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go func() {
		if err := a.server.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Error("API server failed", "error", err)
		}
	}()

	if a.store.DB != nil {
		a.store.DB.StartMetricsCollector(ctx)
	}

	if repo, ok := a.store.Repo.(storage.SessionPruner); ok && a.cfg.Storage.Retention > 0 {
		pruner := worker.NewPruner(a.cfg.Storage.Retention, repo,
			worker.WithClock(a.clock), worker.WithLogger(a.log))
		a.log.Info("Starting session pruner", "retention", a.cfg.Storage.Retention, "interval", pruner.Interval())
		go pruner.Start(ctx)
	}

	a.log.Info("API server listening", "port", a.cfg.Port)
	return nil
}

// Stop stops the App. Active sessions are canceled.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping finality notifier...")

	if a.cancel != nil {
		a.cancel()
		if err := a.server.Stop(ctx); err != nil {
			a.log.Warn("Failed to stop API server", "error", err)
		}
	}

	if err := a.notifier.Shutdown(ctx); err != nil {
		a.log.Warn("Sessions did not stop in time", "error", err)
	}

	_ = a.client.Close()

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}

	a.log.Info("Finality notifier stopped")
	return nil
}

// Broadcast fires the after-broadcast hooks for ref on the given surface and
// returns the sessions it started.
func (a *App) Broadcast(ctx context.Context, ref domain.TransactionRef, surface notifier.PromptSurface) ([]*notifier.Session, error) {
	before := make(map[string]struct{})
	for _, s := range a.notifier.SessionsForTx(ref) {
		before[s.ID()] = struct{}{}
	}

	hctx := notifier.HookContext{Query: a.client, Surface: surface}
	if err := a.hooks.Fire(ctx, notifier.HookAfterBroadcast, notifier.BroadcastRequest{Ref: ref}, hctx); err != nil {
		return nil, err
	}

	var started []*notifier.Session
	for _, s := range a.notifier.SessionsForTx(ref) {
		if _, ok := before[s.ID()]; !ok {
			started = append(started, s)
		}
	}
	return started, nil
}

// Handler returns the API handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Notifier returns the notifier.
func (a *App) Notifier() *notifier.Notifier { return a.notifier }

// Client returns the node client.
func (a *App) Client() *rpc.Client { return a.client }

// Inbox returns the prompt inbox served by the API.
func (a *App) Inbox() *ui.Inbox { return a.inbox }

// Repository returns the session repository.
func (a *App) Repository() storage.SessionRepository { return a.store.Repo }

func (a *App) nodeCheck(ctx context.Context) api.ComponentHealth {
	h := a.client.Health()
	c := api.ComponentHealth{
		Name:   "node",
		Status: api.StatusHealthy,
		Detail: fmt.Sprintf("%s, error rate %.2f, latency %s", h.Status, h.ErrorRate, h.Latency),
	}
	switch h.Status {
	case rpc.StatusBlocked.String():
		c.Status = api.StatusCritical
	case rpc.StatusThrottled.String(), rpc.StatusDegraded.String():
		c.Status = api.StatusDegraded
	}
	return c
}
