package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/cache"
	"github.com/dataguard/dataguard/internal/config"
	"github.com/dataguard/dataguard/internal/events"
	"github.com/dataguard/dataguard/internal/logger"
	"github.com/dataguard/dataguard/internal/scanner"
	"github.com/dataguard/dataguard/internal/violations"
)

// UserDirectory resolves user ids to display names for report rendering. The
// host application owns users; this service only stores weak references.
type UserDirectory interface {
	DisplayName(userID int64) (string, bool)
}

// Server exposes the scan and violation-report API
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	engine     *scanner.Engine
	store      *violations.Store
	statsCache *cache.StatsCache // nil when the cache is disabled
	hub        *events.Hub
	users      UserDirectory // nil renders the unknown-user placeholder
	limiter    *ipRateLimiter
	router     *mux.Router
	server     *http.Server
}

// New creates a new API server wired to its collaborators. statsCache and
// users may be nil.
func New(cfg *config.Config, log *logger.Logger, engine *scanner.Engine, store *violations.Store, statsCache *cache.StatsCache, hub *events.Hub) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:     cfg,
		logger:     log.WithComponent("server"),
		engine:     engine,
		store:      store,
		statsCache: statsCache,
		hub:        hub,
		router:     router,
	}

	if cfg.Server.RateLimit.Enabled {
		s.limiter = newIPRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// SetUserDirectory attaches a user display-name resolver for CSV export
func (s *Server) SetUserDirectory(users UserDirectory) {
	s.users = users
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.Events.Enabled {
		s.router.HandleFunc(s.config.Events.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)

	// The scan path is the hot path; rate limit it
	scanRouter := api.PathPrefix("/scan").Subrouter()
	scanRouter.Use(s.rateLimitMiddleware)
	scanRouter.HandleFunc("", s.handleScan).Methods("POST")

	api.HandleFunc("/patterns/test", s.handlePatternTest).Methods("POST")

	api.HandleFunc("/violations", s.handleListViolations).Methods("GET")
	api.HandleFunc("/violations/export", s.handleExportCSV).Methods("GET")
	api.HandleFunc("/violations/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/violations/cleanup", s.handleCleanup).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting DataGuard API server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("events_enabled", s.config.Events.Enabled),
		zap.Bool("rate_limit_enabled", s.config.Server.RateLimit.Enabled),
	)

	if s.config.Events.Enabled {
		go s.hub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping DataGuard API server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"dataguard",
		"version":"0.1.0",
		"detection_enabled":%t,
		"sensitive_patterns":%d,
		"personal_patterns":%d
	}`, snap.Enabled(), len(snap.SensitivePatterns()), len(snap.PersonalPatterns()))
}

// handleWebSocket handles WebSocket connections for the event stream
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}
