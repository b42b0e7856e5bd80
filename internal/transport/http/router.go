package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teller/internal/platform/metrics"
	"teller/internal/platform/middleware"
	"teller/pkg/platform/httputil"
	"teller/pkg/platform/middleware/metadata"
	"teller/pkg/platform/middleware/request"
)

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports a dependency's health; nil means healthy.
type HealthCheck func(ctx context.Context) error

type Router struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	checks   map[string]HealthCheck
	proxies  []netip.Prefix
}

type Option func(*Router)

func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(r *Router) {
		r.metrics = m
		r.gatherer = gatherer
	}
}

// WithTrustedProxies lets requests from these peers name the client in
// X-Forwarded-For or X-Real-IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(r *Router) {
		r.proxies = prefixes
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(r *Router) {
		r.checks[name] = check
	}
}

// NewRouter wires the shared middleware stack, /health, /metrics and every
// feature's routes.
func NewRouter(logger *slog.Logger, handlers []Registrar, opts ...Option) http.Handler {
	rt := &Router{
		logger: logger,
		checks: make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(rt)
	}

	r := chi.NewRouter()
	r.Use(request.Middleware)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(metadata.NewResolver(rt.proxies).ClientMetadata)
	if rt.metrics != nil {
		r.Use(middleware.Latency(rt.metrics))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not_found", ErrorDescription: "Not found"})
	})
	r.Get("/health", rt.handleHealth)
	if rt.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}
	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := make(map[string]string, len(rt.checks))
	for name, check := range rt.checks {
		if err := check(r.Context()); err != nil {
			rt.logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
}
