// Package web provides the HTTP server and handlers for the track statistics API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/trackstats/internal/config"
	"github.com/JonMunkholm/trackstats/internal/core"
	"github.com/JonMunkholm/trackstats/internal/metrics"
	mw "github.com/JonMunkholm/trackstats/internal/web/middleware"
)

// Options configures a Server. Zero values disable rate limiting and use
// defaults elsewhere; a nil Metrics disables instrumentation and /metrics.
type Options struct {
	Server    config.ServerConfig
	Security  config.SecurityConfig
	RateLimit config.RateLimitConfig
	WebSocket config.WebSocketConfig
	Metrics   *metrics.Metrics
}

// Server is the HTTP server for the track statistics API.
type Server struct {
	service  *core.Service
	opts     Options
	router   *chi.Mux
	server   *http.Server
	hub      *Hub
	limiter  *mw.RateLimiter
	validate *validator.Validate
	upgrader *websocket.Upgrader
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.Server.RequestTimeout <= 0 {
		opts.Server.RequestTimeout = 60 * time.Second
	}
	if len(opts.Security.AllowedOrigins) == 0 {
		opts.Security.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		service:  service,
		opts:     opts,
		router:   chi.NewRouter(),
		hub:      NewHub(service, opts.WebSocket, opts.Metrics),
		validate: newValidator(),
		upgrader: newUpgrader(opts.Security.AllowedOrigins),
	}
	if opts.RateLimit.Enabled {
		s.limiter = mw.NewRateLimiter(opts.RateLimit.RequestsPerSecond(), opts.RateLimit.Burst)
	}
	s.setupMiddleware()
	s.setupRoutes()

	// Built here so Shutdown before Start still stops a later ListenAndServe
	s.server = &http.Server{
		Addr:         opts.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout,
		IdleTimeout:  opts.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(mw.TrustedRealIP(s.opts.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(recoverer)
	if s.opts.Metrics != nil {
		s.router.Use(mw.Metrics(s.opts.Metrics))
	}
	s.router.Use(securityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))
	if s.limiter != nil {
		s.router.Use(s.limiter.Handler)
	}

	s.router.NotFound(handleNotFound)
	s.router.MethodNotAllowed(handleMethodNotAllowed)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	timeout := chimw.Timeout(s.opts.Server.RequestTimeout)

	s.router.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	// Pages
	s.router.With(timeout).Get("/", s.handleStatusPage)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived; no request timeout
		r.Get("/ws", s.handleWebSocket)

		// Bounded by the reload timeout instead of the request timeout
		r.With(mw.APIKeyAuth(&s.opts.Security)).Post("/update-data", s.handleUpdateData)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/tracks", s.handleTracks)
			r.Get("/top-artists", s.handleTopArtists)
			r.Get("/platform-comparison", s.handlePlatformComparison)
			r.Get("/debug/data-info", s.handleDebugInfo)

			r.Get("/reloads", s.handleReloads)
			r.Get("/reloads/status", s.handleReloadStatus)
		})
	})
}

// Run starts the background workers (websocket hub, rate limiter eviction)
// and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}
	s.hub.Run(ctx)
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		// The status page uses one inline stylesheet and no scripts
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
