// Package server exposes the ingestion pipeline over HTTP: the guarded
// sync trigger, the status and test actions, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yycdirectory/sync-cli/internal/guard"
	"github.com/yycdirectory/sync-cli/internal/metrics"
	"github.com/yycdirectory/sync-cli/internal/model"
	"github.com/yycdirectory/sync-cli/internal/store"
)

// Runner is the sync engine surface the server needs.
type Runner interface {
	Run(ctx context.Context, req model.SyncRequest) *model.SyncReport
}

// Server wires the guard, the sync runner and the store into HTTP handlers.
type Server struct {
	guard   *guard.Guard
	runner  Runner
	store   store.Store
	metrics *metrics.Registry
	origins []string
}

// New creates a Server. store may be nil when no admin connection is
// configured; the guard rejects such requests before any handler needs it.
func New(g *guard.Guard, r Runner, st store.Store, m *metrics.Registry, allowedOrigins []string) *Server {
	return &Server{guard: g, runner: r, store: st, metrics: m, origins: allowedOrigins}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Post("/api/sync", s.handleSync)
	r.Get("/api/sync", s.handleSyncAction)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSync runs a full sync for a POST trigger.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if rej := s.guard.Authorize(r); rej != nil {
		writeJSON(w, rej.Status, map[string]string{"error": rej.Message})
		return
	}

	var req model.SyncRequest
	if r.Body != nil {
		// An empty or absent body means run with defaults.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	s.runSync(w, r, req)
}

// handleSyncAction serves GET ?action=test (bounded dry run) and
// ?action=status (store counts). Both pass through the same guard chain as
// the POST trigger.
func (s *Server) handleSyncAction(w http.ResponseWriter, r *http.Request) {
	if rej := s.guard.Authorize(r); rej != nil {
		writeJSON(w, rej.Status, map[string]string{"error": rej.Message})
		return
	}

	switch r.URL.Query().Get("action") {
	case "test":
		s.runSync(w, r, model.SyncRequest{Mode: model.ModeTest, DryRun: true})
	case "status":
		counts, err := s.store.Counts(r.Context())
		if err != nil {
			zap.L().Error("status counts failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "counts query failed"})
			return
		}
		writeJSON(w, http.StatusOK, counts)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
	}
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request, req model.SyncRequest) {
	runID := uuid.New().String()
	zap.L().Info("sync triggered",
		zap.String("run_id", runID),
		zap.String("mode", string(req.Mode)),
		zap.Bool("dry_run", req.DryRun),
	)

	report := s.runner.Run(r.Context(), req)
	report.RunID = runID
	writeJSON(w, reportStatus(report), report)
}

// reportStatus maps a finished report to an HTTP status: 500 for a total
// fetch failure, 207 for partial success under the error threshold, 200
// otherwise.
func reportStatus(report *model.SyncReport) int {
	if !report.Success {
		return http.StatusInternalServerError
	}
	if report.Errors > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
