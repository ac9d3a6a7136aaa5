package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/cityinfo-api/pkg/httpx"
	"github.com/FACorreiaa/cityinfo-api/pkg/interceptors"
)

const (
	RequestIDHeader        = "X-Request-ID"
	SupportedVersionHeader = "api-supported-versions"
)

var supportedVersions = []string{"1.0", "2.0"}

// publicPaths bypass bearer authentication.
var publicPaths = []string{"/health", "/ready", "/metrics"}

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, deps)
	registerUtilityRoutes(mux, deps)

	tracer := otel.GetTracerProvider().Tracer("cityinfo/api")

	var rateLimiter interceptors.Middleware
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(deps.Config.Server.RateLimitPerSecond),
			deps.Config.Server.RateLimitBurst,
		)
		rateLimiter = interceptors.NewRateLimitMiddleware(limiter)
	}

	var metrics interceptors.Middleware
	if deps.Metrics != nil {
		metrics = deps.Metrics.Middleware
	}

	// Metrics sits innermost so the mux has already set r.Pattern when it
	// reads the route label.
	handler := interceptors.Chain(mux,
		interceptors.NewRequestIDMiddleware(RequestIDHeader),
		interceptors.NewTracingMiddleware(tracer),
		interceptors.NewRecoveryMiddleware(deps.Logger),
		interceptors.NewLoggingMiddleware(deps.Logger),
		supportedVersionsMiddleware,
		rateLimiter,
		interceptors.NewAuthMiddleware(deps.TokenValidator, publicPaths...),
		metrics,
	)

	origins := deps.Config.Server.CORSAllowedOrigins
	if len(origins) == 0 {
		return handler
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{"Location", "X-Pagination", RequestIDHeader, SupportedVersionHeader},
	})
	return corsHandler.Handler(handler)
}

// registerAPIRoutes mounts the versioned REST resources. Cities are served on
// every version, points of interest only on v2.
func registerAPIRoutes(mux *http.ServeMux, deps *Dependencies) {
	deps.CityHandler.RegisterRoutes(mux, "v1")
	deps.CityHandler.RegisterRoutes(mux, "v2")

	policy := interceptors.RequireClaim(deps.Config.Auth.PolicyClaim, deps.Config.Auth.PolicyValue)
	deps.POIHandler.RegisterRoutes(mux, "v2", policy)

	deps.Logger.Info("REST routes configured", "versions", supportedVersions)
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Health.Health(r.Context()); err != nil {
			deps.Logger.WarnContext(r.Context(), "health check failed", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unhealthy"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	deps.Logger.Info("registered health check", "path", "/health")

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	if deps.Config.Observability.MetricsEnabled && deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}

func supportedVersionsMiddleware(next http.Handler) http.Handler {
	value := strings.Join(supportedVersions, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(SupportedVersionHeader, value)
		next.ServeHTTP(w, r)
	})
}
