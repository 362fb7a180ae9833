package api

import (
	"net/http"

	"imagegen/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// routeConfig collects optional route behavior.
type routeConfig struct {
	routerMiddleware   []mux.MiddlewareFunc
	generateMiddleware []mux.MiddlewareFunc
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeConfig)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
// Health and docs endpoints are not traced.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(c *routeConfig) {
		c.routerMiddleware = append(c.routerMiddleware, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/api/v1/openapi.yaml" &&
					r.URL.Path != "/api/v1/docs"
			}),
		))
	}
}

// WithGenerateLimiter guards the generate endpoint with a per-client limiter,
// such as ratelimit.Middleware. Read endpoints stay unthrottled.
func WithGenerateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(c *routeConfig) {
		c.generateMiddleware = append(c.generateMiddleware, middleware)
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	rc := &routeConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	router := mux.NewRouter()
	for _, mw := range rc.routerMiddleware {
		router.Use(mw)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	var generateHandler http.Handler = http.HandlerFunc(handlers.GenerateImage)
	for i := len(rc.generateMiddleware) - 1; i >= 0; i-- {
		generateHandler = rc.generateMiddleware[i](generateHandler)
	}
	api.Handle("/images", generateHandler).Methods("POST")
	api.HandleFunc("/images", handlers.ListImages).Methods("GET")
	api.HandleFunc("/images/{name}", handlers.DownloadImage).Methods("GET", "HEAD")

	api.HandleFunc("/generations", handlers.ListGenerations).Methods("GET")
	api.HandleFunc("/generations/{id}", handlers.GetGeneration).Methods("GET")
	api.HandleFunc("/quota", handlers.GetQuota).Methods("GET")

	api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")
	api.HandleFunc("/docs", handlers.ServeSwaggerUI).Methods("GET")

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	api.PathPrefix("").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("OPTIONS")

	if config.Server.CORS.Enabled {
		router.Use(corsMiddleware(config.Server.CORS))
	}

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}
