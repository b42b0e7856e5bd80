package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"teller/internal/ratelimit/models"
	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/httputil"
	"teller/pkg/platform/middleware/metadata"
	"teller/pkg/requestcontext"
)

type RateLimiter interface {
	Check(ctx context.Context, class models.EndpointClass, identifier string) (*models.RateLimitResult, error)
	Policy(class models.EndpointClass) (models.Policy, bool)
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every RateLimit middleware into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit counts requests per client IP against class's policy.
// Limiter failures let the request through.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	if m.disabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			result, err := m.limiter.Check(ctx, class, clientKey(r))
			switch {
			case err != nil:
				m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "class", class)
			case result != nil && !result.Allowed:
				setLimitHeaders(w.Header(), result)
				m.logger.WarnContext(ctx, "rate limit exceeded", "class", class, "retry_after", result.RetryAfter)
				m.reject(w, class, result.RetryAfter)
				return
			default:
				setLimitHeaders(w.Header(), result)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if ip := requestcontext.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return metadata.ClientIPFromRequest(r)
}

func setLimitHeaders(h http.Header, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

const defaultLimitMessage = "Too many requests. Please try again later."

func (m *Middleware) reject(w http.ResponseWriter, class models.EndpointClass, retryAfter int) {
	msg := defaultLimitMessage
	if policy, ok := m.limiter.Policy(class); ok && policy.Message != "" {
		msg = policy.Message
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteOAuthError(w, http.StatusTooManyRequests, dErrors.CodeRateLimited, msg)
}
