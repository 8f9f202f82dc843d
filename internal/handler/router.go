package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/belgiumluv/docker-cont/internal/config"
	"github.com/belgiumluv/docker-cont/internal/domain"
	"github.com/belgiumluv/docker-cont/internal/middleware"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

// Router is the distribution API routing tree
type Router struct {
	*mux.Router
	limiter *middleware.RateLimitMiddleware
}

// NewRouter wires the distribution API:
//
//	GET /health
//	GET /api/v1/reality/public-key
//	GET /api/v1/decoys
//
// Routes under /api/v1 require a bearer token when cfg.JWTSecret is set.
func NewRouter(st domain.DecoyStore, cfg config.APIConfig, version string, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewNop()
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorResponse(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	limiter := middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
		Enabled:         cfg.RateLimit.Enabled,
		RequestsPerSec:  cfg.RateLimit.RequestsPerSec,
		BurstSize:       cfg.RateLimit.BurstSize,
		CleanupInterval: cfg.RateLimit.CleanupInterval,
	}, log)

	r.Use(
		middleware.RecoveryMiddleware(log),
		middleware.LoggingMiddleware(log),
		middleware.SecurityHeadersMiddleware(),
		limiter.RateLimit(),
	)

	health := NewHealthHandler(st, version)
	r.HandleFunc("/health", health.Health).Methods(http.MethodGet)

	dist := NewDistributionHandler(st, log)
	api := r.PathPrefix("/api/v1").Subrouter()
	if jwt := middleware.NewJWTAuthMiddleware(middleware.JWTAuthConfig{
		Secret:    cfg.JWTSecret,
		ClockSkew: cfg.JWTClockSkew,
	}, log); jwt != nil {
		api.Use(jwt.JWTAuth())
	}
	api.HandleFunc("/reality/public-key", dist.PublicKeyHandler).Methods(http.MethodGet)
	api.HandleFunc("/decoys", dist.DecoysHandler).Methods(http.MethodGet)

	return &Router{Router: r, limiter: limiter}
}

// Close releases the rate limiter's background timer
func (r *Router) Close() {
	r.limiter.Stop()
}
