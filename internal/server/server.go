package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/paperscope/paperscope/internal/errors"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/server/handlers"
	servermw "github.com/paperscope/paperscope/internal/server/middleware"
)

// Config carries everything the router needs.
type Config struct {
	Host   string
	Port   int
	API    *handlers.API
	Health *handlers.HealthManager
	// WriteTimeout bounds a whole request; classification batches can be slow.
	WriteTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	router       *chi.Mux
	server       *http.Server
	host         string
	port         int
	api          *handlers.API
	health       *handlers.HealthManager
	writeTimeout time.Duration
}

// New creates a new HTTP server instance
func New(cfg Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthManager("")
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}

	s := &Server{
		router:       r,
		host:         cfg.Host,
		port:         cfg.Port,
		api:          cfg.API,
		health:       health,
		writeTimeout: writeTimeout,
	}

	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	observability.Server().Info("Starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.Server().Info("Shutting down HTTP server")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
