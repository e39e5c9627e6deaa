package routes

import (
	"net/http"

	"github.com/zatekoja/clinicalorders/internal/api/handlers"
	"github.com/zatekoja/clinicalorders/internal/api/middleware"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	sessionHandler *handlers.SessionHandler
	sseHandler     *handlers.SSEHandler
	healthHandler  *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. sseHandler may be nil when streaming is disabled.
func NewRouter(
	sessionHandler *handlers.SessionHandler,
	sseHandler *handlers.SSEHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		sessionHandler: sessionHandler,
		sseHandler:     sseHandler,
		healthHandler:  healthHandler,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Session endpoints
	r.mux.HandleFunc("POST /api/sessions/{id}/extract", r.sessionHandler.Extract)
	r.mux.HandleFunc("GET /api/sessions/{id}/orders", r.sessionHandler.GetOrders)
	r.mux.HandleFunc("GET /api/sessions/{id}/runs", r.sessionHandler.ListRuns)
	r.mux.HandleFunc("DELETE /api/sessions/{id}", r.sessionHandler.Reset)

	// Live updates
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/sessions/{id}", r.sseHandler.StreamSessionUpdates)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.RecoveryMiddleware(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
