// Package server assembles the HTTP router.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"offer-api/internal/handler"
	"offer-api/internal/metrics"
	"offer-api/internal/middleware"
)

// Deps are the collaborators the router is built from. RateLimiter and
// Metrics are optional.
type Deps struct {
	Handler        *handler.Handler
	Logger         logrus.FieldLogger
	RateLimiter    *middleware.RateLimiter
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	// TrustProxy rewrites RemoteAddr from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	Tracing    bool
}

// NewRouter returns the API router with the middleware chain installed.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)
	if d.Tracing {
		r.Use(middleware.TracingMiddleware())
	}
	if d.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(d.Metrics))
	}
	if d.RateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(d.RateLimiter))
	}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.Timeout(60 * time.Second))

	d.Handler.Routes(r)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
