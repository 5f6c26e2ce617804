// Package web exposes the capture workflow and a few inventory passthroughs
// as a JSON HTTP API. Handlers map workflow outcome codes onto HTTP statuses
// and return the event result verbatim; all rendering decisions live with
// the caller.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"snapshelf/internal/capture"
	"snapshelf/internal/domain"
)

// ItemStore is the slice of the remote inventory the item routes use.
type ItemStore interface {
	ListItems(ctx context.Context, page, pageSize int) []domain.Item
	SearchItems(ctx context.Context, q string, limit int) []domain.Item
	MoveItem(ctx context.Context, id, locationID string) bool
	DeleteItem(ctx context.Context, id string) bool
	LastError() string
}

type Server struct {
	workflow *capture.Workflow
	items    ItemStore
	mux      *http.ServeMux
	logger   *slog.Logger
}

func NewServer(workflow *capture.Workflow, items ItemStore, logger *slog.Logger) *Server {
	s := &Server{
		workflow: workflow,
		items:    items,
		mux:      http.NewServeMux(),
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /sessions/{id}/photo", s.handlePhoto)
	s.mux.HandleFunc("POST /sessions/{id}/edit/{field}", s.handleEdit)
	s.mux.HandleFunc("POST /sessions/{id}/location", s.handleLocation)
	s.mux.HandleFunc("POST /sessions/{id}/reanalyze", s.handleReanalyze)
	s.mux.HandleFunc("POST /sessions/{id}/back", s.handleBack)
	s.mux.HandleFunc("POST /sessions/{id}/confirm", s.handleConfirm)
	s.mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleSnapshot)

	s.mux.HandleFunc("GET /items", s.handleListItems)
	s.mux.HandleFunc("POST /items/{id}/move", s.handleMoveItem)
	s.mux.HandleFunc("DELETE /items/{id}", s.handleDeleteItem)
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}
