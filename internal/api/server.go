// Package api serves raid lifecycle events and record queries over HTTP.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/graaaaa/raidlog-companion/internal/app"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger

	// Use case dependencies
	health  app.HealthUsecase
	raids   app.RaidUsecase
	records app.RecordsUsecase
	prices  app.PriceUsecase
	stats   app.StatsUsecase
	reload  AccountReloader

	hub *Hub

	// Auth configuration
	authEnabled  bool
	authUsername string
	authPassword string
	authFailures *AuthFailureLimiter

	// limiter throttles raid event posts per client address.
	limiter *RateLimiter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRaidUsecase enables the raid start/end endpoints.
func WithRaidUsecase(raids app.RaidUsecase) ServerOption {
	return func(s *Server) { s.raids = raids }
}

// WithRecordsUsecase enables the record query endpoints.
func WithRecordsUsecase(records app.RecordsUsecase) ServerOption {
	return func(s *Server) { s.records = records }
}

// WithPriceUsecase enables the price endpoint.
func WithPriceUsecase(prices app.PriceUsecase) ServerOption {
	return func(s *Server) { s.prices = prices }
}

// WithStatsUsecase enables the account stats endpoint.
func WithStatsUsecase(stats app.StatsUsecase) ServerOption {
	return func(s *Server) { s.stats = stats }
}

// AccountReloader drops an account's cached history. *app.MaintenanceService
// implements it.
type AccountReloader interface {
	Reload(ctx context.Context, id string) (string, error)
}

// WithReloader enables POST /api/v1/accounts/{id}/reload, used after a
// history file was repaired by hand.
func WithReloader(r AccountReloader) ServerOption {
	return func(s *Server) { s.reload = r }
}

// WithHub sets the SSE hub.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

// WithBasicAuth enables HTTP Basic Auth.
func WithBasicAuth(username, password string) ServerOption {
	return func(s *Server) {
		if username != "" && password != "" {
			s.authEnabled = true
			s.authUsername = username
			s.authPassword = password
		}
	}
}

// WithAuthFailureLimiter locks out clients after repeated bad credentials.
func WithAuthFailureLimiter(l *AuthFailureLimiter) ServerOption {
	return func(s *Server) { s.authFailures = l }
}

// WithRateLimiter throttles raid event posts.
func WithRateLimiter(l *RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mux:    mux,
		health: health,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler with security headers applied.
func (s *Server) Handler() http.Handler {
	return securityHeadersMiddleware(s.mux)
}

// wrapAuth wraps a handler with auth middleware if auth is enabled.
func (s *Server) wrapAuth(h http.Handler) http.Handler {
	if !s.authEnabled {
		return h
	}
	return basicAuthMiddleware(s.authUsername, s.authPassword, s.authFailures)(h)
}

// wrapPost adds rate limiting in front of auth for event posts.
func (s *Server) wrapPost(h http.Handler) http.Handler {
	h = s.wrapAuth(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return h
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	// Health endpoint (no auth required)
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	if s.raids != nil {
		s.mux.Handle("POST /api/v1/raids/start", s.wrapPost(http.HandlerFunc(s.handleRaidStart)))
		s.mux.Handle("POST /api/v1/raids/end", s.wrapPost(http.HandlerFunc(s.handleRaidEnd)))
	}

	if s.records != nil {
		s.mux.Handle("GET /api/v1/accounts/{id}/records", s.wrapAuth(http.HandlerFunc(s.handleRecords)))
		s.mux.Handle("GET /api/v1/accounts/{id}/records/{index}", s.wrapAuth(http.HandlerFunc(s.handleRecord)))
		s.mux.Handle("GET /api/v1/accounts/{id}/records/{index}/buyback", s.wrapAuth(http.HandlerFunc(s.handleBuyback)))
		s.mux.Handle("GET /api/v1/accounts/{id}/matches/{matchID}", s.wrapAuth(http.HandlerFunc(s.handleMatch)))
	}

	if s.reload != nil {
		s.mux.Handle("POST /api/v1/accounts/{id}/reload", s.wrapPost(http.HandlerFunc(s.handleReload)))
	}

	if s.stats != nil {
		s.mux.Handle("GET /api/v1/accounts/{id}/stats", s.wrapAuth(http.HandlerFunc(s.handleStats)))
	}

	if s.prices != nil {
		s.mux.Handle("GET /api/v1/prices/{tpl}", s.wrapAuth(http.HandlerFunc(s.handlePrice)))
	}

	if s.hub != nil {
		s.mux.Handle("GET /api/v1/stream", s.wrapAuth(http.HandlerFunc(s.handleStream)))
	}
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Handle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
