// Package api provides the HTTP API server and handlers for the dsein social graph.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/ratelimit"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// IndexStats is the part of the search index the health check reads.
type IndexStats interface {
	DocumentCount() (uint64, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.Store
	services   *Services
	cfg        *config.Config
	index      IndexStats
	metrics    *metrics.Metrics
	sseManager *sse.Manager
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// Deps are the collaborators of NewServer. Index, Metrics, SSEManager and
// Limiter are optional.
type Deps struct {
	Store      store.Store
	Services   *Services
	Config     *config.Config
	Index      IndexStats
	Metrics    *metrics.Metrics
	SSEManager *sse.Manager
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Deps) *Server {
	s := &Server{
		store:      deps.Store,
		services:   deps.Services,
		cfg:        deps.Config,
		index:      deps.Index,
		metrics:    deps.Metrics,
		sseManager: deps.SSEManager,
		router:     chi.NewRouter(),
		logger:     deps.Logger,
	}

	s.setupMiddleware(deps.Limiter)

	humaConfig := huma.DefaultConfig("Dsein API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"gateway": {
			Type: "apiKey",
			In:   "header",
			Name: s.userIDHeader(),
		},
	}
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) userIDHeader() string {
	if s.cfg == nil || s.cfg.Auth.UserIDHeader == "" {
		return "X-User-ID"
	}
	return s.cfg.Auth.UserIDHeader
}

// setupMiddleware configures middleware stack. Order matters: identity must be
// known before the rate limiter keys on it.
func (s *Server) setupMiddleware(limiter *ratelimit.Limiter) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", s.userIDHeader()},
		MaxAge:         300,
	}))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(s.identityMiddleware(s.userIDHeader()))
	s.router.Use(s.RateLimitMiddleware(limiter))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerUserRoutes()
	s.registerFollowRoutes()
	s.registerLikeRoutes()
	s.registerInviteRoutes()
	s.registerActivityRoutes()
	s.registerAdminRoutes()

	// Plain chi routes: streaming and scraping do not fit huma operations.
	if s.sseManager != nil {
		s.router.Get("/api/v1/events", sse.NewHandler(s.sseManager, userIDFromRequest, s.logger).ServeHTTP)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}
