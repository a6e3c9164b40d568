// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/ambrazasp/geofields/internal/application"
	"github.com/ambrazasp/geofields/internal/config"
)

// Server wraps the HTTP server with application handlers.
type Server struct {
	server   *http.Server
	router   *mux.Router
	registry *application.ServiceRegistry
	health   *application.HealthService
	logger   *slog.Logger
	config   config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	registry *application.ServiceRegistry,
	health *application.HealthService,
	logger *slog.Logger,
) *Server {
	s := &Server{
		registry: registry,
		health:   health,
		logger:   logger,
		config:   cfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	// Service endpoints
	api.HandleFunc("/services", s.handleListServices).Methods(http.MethodGet)
	api.HandleFunc("/services/{service}", s.handleGetService).Methods(http.MethodGet)
	api.HandleFunc("/services/{service}/actions/{action}", s.handleCallAction).Methods(http.MethodPost)

	// Geometry hooks
	api.HandleFunc("/services/{service}/filter", s.handleFilter).Methods(http.MethodPost)
	api.HandleFunc("/services/{service}/validate", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/services/{service}/normalize", s.handleNormalize).Methods(http.MethodPost)

	// Record endpoints
	api.HandleFunc("/services/{service}/records", s.handleListRecords).Methods(http.MethodGet)
	api.HandleFunc("/services/{service}/records", s.handleCreateRecord).Methods(http.MethodPost)
	api.HandleFunc("/services/{service}/records/{id}", s.handleUpdateRecord).Methods(http.MethodPatch)
	api.HandleFunc("/services/{service}/records/{id}", s.handleReplaceRecord).Methods(http.MethodPut)

	// OpenAPI document
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	return r
}

// MountMetrics exposes handler at path and wraps every route with
// middleware.
func (s *Server) MountMetrics(path string, handler http.Handler, middleware mux.MiddlewareFunc) {
	if middleware != nil {
		s.router.Use(middleware)
	}
	s.router.Handle(path, handler).Methods(http.MethodGet)
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs one line per request. Probes are logged at debug,
// server errors at warn.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.statusCode >= http.StatusInternalServerError:
			level = slog.LevelWarn
		case strings.HasPrefix(r.URL.Path, "/health"):
			level = slog.LevelDebug
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.statusCode),
			slog.Int("bytes", rec.written),
			slog.Duration("duration", time.Since(start)),
		}
		vars := mux.Vars(r)
		if svc := vars["service"]; svc != "" {
			attrs = append(attrs, slog.String("service", svc))
		}
		if action := vars["action"]; action != "" {
			attrs = append(attrs, slog.String("action", action))
		}
		s.logger.LogAttrs(r.Context(), level, "request", attrs...)
	})
}

// recoveryMiddleware turns a handler panic into a JSON 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("handler panic",
					"panic", v,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				s.writeError(w, http.StatusInternalServerError, "Request failed")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}
