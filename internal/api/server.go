// Package api exposes the notifier over HTTP: broadcast hook trigger,
// session lookups, the prompt inbox, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/finality"
	"github.com/vietddude/finality/internal/infra/storage"
	"github.com/vietddude/finality/internal/metrics"
	"github.com/vietddude/finality/internal/notifier"
	"github.com/vietddude/finality/internal/ui"
)

const defaultListLimit = 50

// Deps are the collaborators the server routes to.
type Deps struct {
	Hooks    *notifier.Hooks
	Notifier *notifier.Notifier
	Repo     storage.SessionRepository
	Inbox    *ui.Inbox
	Query    finality.StatusQuery
	Checks   []HealthCheck
	Logger   *slog.Logger
}

// Server provides the HTTP API.
type Server struct {
	deps   Deps
	log    *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a new API server listening on port.
func NewServer(deps Deps, port int) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		deps: deps,
		log:  log,
		mux:  mux,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	s.handle("POST /v1/broadcasts", "broadcasts", s.handleBroadcast)
	s.handle("GET /v1/sessions", "sessions", s.handleListSessions)
	s.handle("GET /v1/sessions/{id}", "session", s.handleGetSession)
	s.handle("GET /v1/prompts", "prompts", s.handleListPrompts)
	s.handle("POST /v1/prompts/{id}/dismiss", "dismiss", s.handleDismiss)
	s.handle("GET /health", "health", s.handleHealth)
	s.handle("GET /health/detailed", "health_detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

type broadcastRequest struct {
	ID string `json:"id"`
}

type broadcastResponse struct {
	TxID     domain.TransactionRef `json:"tx_id"`
	Sessions []string              `json:"sessions"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}

	ref := domain.TransactionRef(req.ID)
	before := make(map[string]struct{})
	for _, sess := range s.deps.Notifier.SessionsForTx(ref) {
		before[sess.ID()] = struct{}{}
	}

	hctx := notifier.HookContext{Query: s.deps.Query, Surface: s.deps.Inbox}
	err := s.deps.Hooks.Fire(r.Context(), notifier.HookAfterBroadcast, notifier.BroadcastRequest{Ref: ref}, hctx)
	if err != nil {
		s.log.Error("After-broadcast hook failed", "tx", ref, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := broadcastResponse{TxID: ref, Sessions: []string{}}
	for _, sess := range s.deps.Notifier.SessionsForTx(ref) {
		if _, ok := before[sess.ID()]; !ok {
			resp.Sessions = append(resp.Sessions, sess.ID())
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Notifier.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Repo == nil {
		writeJSON(w, http.StatusOK, []*domain.SessionRecord{})
		return
	}

	var (
		recs []*domain.SessionRecord
		err  error
	)
	if tx := r.URL.Query().Get("tx"); tx != "" {
		recs, err = s.deps.Repo.ListByTx(r.Context(), domain.TransactionRef(tx))
	} else {
		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
				return
			}
			limit = n
		}
		recs, err = s.deps.Repo.List(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Inbox.List())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Inbox.Dismiss(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) report(ctx context.Context) HealthReport {
	components := make([]ComponentHealth, 0, len(s.deps.Checks))
	for _, check := range s.deps.Checks {
		components = append(components, check(ctx))
	}
	return HealthReport{
		SystemStatus:   aggregate(components),
		ActiveSessions: len(s.deps.Notifier.Active()),
		OpenPrompts:    s.deps.Inbox.Len(),
		Components:     components,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.report(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.report(r.Context()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
