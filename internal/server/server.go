package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"walletgate/internal/flagstore"
	"walletgate/internal/handler"
	"walletgate/internal/session"
)

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	database   Pinger
	flagStore  flagstore.Pinger
}

// Config holds server configuration.
type Config struct {
	Port        int
	Database    Pinger
	FlagStore   flagstore.Pinger
	Sessions    *session.Manager
	Provisioner handler.Provisioner
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:    logger,
		database:  cfg.Database,
		flagStore: cfg.FlagStore,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes(cfg Config) http.Handler {
	sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Provisioner, s.logger)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.zapLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check endpoints
	r.Get("/health", s.healthCheck)
	r.Get("/ready", s.readyCheck)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", sessionHandler.Login)

		r.Route("/sessions/{userID}", func(r chi.Router) {
			r.Delete("/", sessionHandler.Logout)
			r.Get("/readiness", sessionHandler.Readiness)

			// Readiness events
			r.Post("/gate/dismiss", sessionHandler.DismissGate)
			r.Post("/subflow/enter", sessionHandler.EnterSubFlow)
			r.Post("/subflow/exit", sessionHandler.ExitSubFlow)
			r.Post("/modal/close", sessionHandler.CloseModal)
			r.Post("/modal/retrigger", sessionHandler.RetriggerModal)

			// Provisioning
			r.Get("/wallet", sessionHandler.Wallet)
			r.Post("/wallet/activate", sessionHandler.ActivateWallet)
			r.Post("/pin", sessionHandler.SetPin)

			// Proximity
			r.Post("/location", sessionHandler.PushLocation)
			r.Get("/suggestions", sessionHandler.Suggestions)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck returns basic health status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readyCheck returns readiness status (all dependencies available).
func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check PostgreSQL
	if s.database != nil {
		if err := s.database.Ping(ctx); err != nil {
			notReady(w, "database unavailable")
			return
		}
	}

	// Check the flag store
	if s.flagStore != nil {
		if err := s.flagStore.Ping(ctx); err != nil {
			notReady(w, "flag store unavailable")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func notReady(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprintf(w, `{"status":"not ready","reason":%q}`, reason)
}

// zapLogger is a middleware that logs requests using zap.
func (s *Server) zapLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
