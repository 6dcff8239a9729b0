package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/ingest"
	"github.com/MAKaminski/alpha-kite/internal/model"
)

// Tables is the store surface the table routes read from. *store.Facade
// satisfies it.
type Tables interface {
	Latest(ctx context.Context, table string, limit int) ([]model.Record, error)
	DateRange(ctx context.Context, table string, start, end time.Time) ([]model.Record, error)
	Search(ctx context.Context, table, query string, limit int) ([]model.Record, error)
	Count(ctx context.Context, table string, spec filter.Spec) (int, error)
}

// Analytics is satisfied by *aggregate.Engine.
type Analytics interface {
	Stats(ctx context.Context, table string, sampleSize int) (model.Stats, error)
	PriceHistory(ctx context.Context, symbol string, days int) ([]model.Record, error)
	Series(ctx context.Context, symbol string, days int) (model.Series, error)
	OptionsChain(ctx context.Context, symbol string, expiry *time.Time) ([]model.OptionsChainEntry, error)
}

// Ingester is satisfied by *ingest.Pipeline. It is optional; without one
// the quote and refresh routes answer 503.
type Ingester interface {
	Run(ctx context.Context, symbols []string) (ingest.Report, error)
	CurrentQuote(ctx context.Context, symbol string) (model.Record, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds server settings.
type Config struct {
	Port           int
	Symbols        []string      // Refreshed by POST /api/v1/refresh when the body names none
	RequestTimeout time.Duration // Per-request deadline, defaults to 30s
}

// Server is the read API.
type Server struct {
	cfg       Config
	tables    Tables
	analytics Analytics
	ingester  Ingester
	checks    map[string]HealthCheck
	router    *mux.Router
	logger    *slog.Logger
	srv       *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithIngester enables the quote and refresh routes.
func WithIngester(i Ingester) Option {
	return func(s *Server) { s.ingester = i }
}

// WithHealthCheck adds a named component to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server and registers its routes.
func New(cfg Config, tables Tables, analytics Analytics, opts ...Option) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		cfg:       cfg,
		tables:    tables,
		analytics: analytics,
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tables/{table}/latest", s.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/tables/{table}/range", s.handleRange).Methods(http.MethodGet)
	api.HandleFunc("/tables/{table}/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/tables/{table}/count", s.handleCount).Methods(http.MethodGet)
	api.HandleFunc("/stats/{table}", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/history/{symbol}", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/series/{symbol}", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/options/{symbol}/chain", s.handleChain).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{symbol}", s.handleQuote).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.Use(s.timeoutMiddleware, s.logMiddleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, "route not found", http.StatusNotFound)
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on the configured port until Stop is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 5*time.Second,
	}
	go func() {
		s.logger.Info("starting http api", "port", s.cfg.Port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http api error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
