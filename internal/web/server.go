// Package web provides the HTTP server and JSON API for the CSV validation
// service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/csvboard/csvboard/internal/apilog"
	"github.com/csvboard/csvboard/internal/assistant"
	"github.com/csvboard/csvboard/internal/config"
	"github.com/csvboard/csvboard/internal/store"
	"github.com/csvboard/csvboard/internal/upload"
	mw "github.com/csvboard/csvboard/internal/web/middleware"
)

// Uploader processes batches of uploaded CSV files.
type Uploader interface {
	Process(ctx context.Context, files []upload.File) ([]upload.Outcome, error)
	LimiterStatus() upload.LimiterStatus
}

// DataStore is the persistence surface the handlers read from.
type DataStore interface {
	Upload(ctx context.Context, id string) (*store.Upload, error)
	Uploads(ctx context.Context, page, limit int) (*store.UploadPage, error)
	UploadRows(ctx context.Context, id string, page, limit int) (*store.RowPage, error)
	ColumnStats(ctx context.Context, id string) ([]store.ColumnStat, error)
	StreamUploadRows(ctx context.Context, id string, fn func(store.Row) error) error
	DeleteUpload(ctx context.Context, id string) error
	RequestLogs(ctx context.Context, opts store.RequestLogOptions) (*store.RequestLogPage, error)
	Ping(ctx context.Context) error
}

// Recorder receives request log entries from the middleware and reports
// recorder counters.
type Recorder interface {
	Record(entry store.RequestLog)
	Stats() apilog.Stats
}

// Asker answers natural-language questions about uploaded datasets.
type Asker interface {
	Enabled() bool
	Model() string
	Ask(ctx context.Context, question string, datasets []assistant.DatasetContext) (string, error)
}

// Server is the HTTP server for the CSV validation API.
type Server struct {
	cfg       *config.Config
	uploads   Uploader
	data      DataStore
	recorder  Recorder
	assistant Asker
	logger    *slog.Logger
	router    *chi.Mux
	server    *http.Server
}

// NewServer wires the API routes and middleware around the given services.
func NewServer(cfg *config.Config, uploads Uploader, data DataStore, recorder Recorder, ai Asker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		uploads:   uploads,
		data:      data,
		recorder:  recorder,
		assistant: ai,
		logger:    logger,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware installs the shared chain. Order matters: the real IP
// must be resolved before anything keyed on it, and the request log sits
// inside the logger so both see the final status.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	if s.recorder != nil {
		s.router.Use(mw.RequestLog(s.recorder))
	}
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(newIPLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).limit)
	}
}

// setupRoutes declares the JSON API surface.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/uploads", func(r chi.Router) {
			r.With(s.uploadRateLimit()).Post("/", s.handleUpload)
			r.Get("/", s.handleListUploads)

			r.Route("/{uploadID}", func(r chi.Router) {
				r.Get("/", s.handleGetUpload)
				r.Delete("/", s.handleDeleteUpload)
				r.Get("/rows", s.handleUploadRows)
				r.Get("/stats", s.handleColumnStats)
				r.Get("/export", s.handleExportUpload)
			})
		})

		r.Get("/logs", s.handleListLogs)
		r.Get("/logs/stats", s.handleLogStats)

		r.Post("/assistant/ask", s.handleAssistantAsk)

		r.Get("/status", s.handleStatus)
	})
}

// uploadRateLimit returns the tighter per-IP limiter applied to the upload
// route, or a pass-through when rate limiting is disabled.
func (s *Server) uploadRateLimit() func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return newIPLimiter(s.cfg.Rate.UploadLimit, time.Minute).limit
}

// Start builds the http.Server from config and blocks in ListenAndServe
// until shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps streamed CSV exports alive
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("server listening", "addr", s.cfg.Server.Addr())
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx. Calling it before Start is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the chi mux so tests can drive requests without a listener.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.data.Ping(r.Context()); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStatus reports the upload limiter state so clients can back off
// before submitting large batches.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.uploads.LimiterStatus())
}

// securityHeaders adds security headers to all responses. The CSP is locked
// down because this server only ever returns JSON and CSV.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

