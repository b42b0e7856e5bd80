// Package service applies per-class fixed-window policies on top of a counter
// store, falling back to an in-process store while a shared store is failing.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"teller/internal/ratelimit/metrics"
	"teller/internal/ratelimit/models"
	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/circuit"
)

// Store is a fixed-window counter store.
type Store interface {
	Allow(ctx context.Context, key string, maxRequests int, window time.Duration) (*models.RateLimitResult, error)
}

type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	policies map[models.EndpointClass]models.Policy
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithPolicies replaces the policy of every class present in policies.
func WithPolicies(policies map[models.EndpointClass]models.Policy) Option {
	return func(l *Limiter) {
		for class, p := range policies {
			l.policies[class] = p
		}
	}
}

// WithFallback serves checks from store once the breaker has opened on the primary.
func WithFallback(store Store, breaker *circuit.Breaker) Option {
	return func(l *Limiter) {
		l.fallback = store
		l.breaker = breaker
	}
}

func New(primary Store, opts ...Option) *Limiter {
	l := &Limiter{
		primary:  primary,
		policies: models.DefaultPolicies(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the policy for class.
func (l *Limiter) Policy(class models.EndpointClass) (models.Policy, bool) {
	p, ok := l.policies[class]
	return p, ok
}

// Check counts one request from identifier against class's policy.
func (l *Limiter) Check(ctx context.Context, class models.EndpointClass, identifier string) (*models.RateLimitResult, error) {
	policy, ok := l.policies[class]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no rate limit policy for class %q", class))
	}
	key := models.NewKey(class, identifier)

	result, err := l.primary.Allow(ctx, key, policy.MaxRequests, policy.Window)
	if err != nil {
		l.metrics.IncrementStoreErrors()
		return l.degrade(ctx, class, key, policy, err)
	}
	if l.breaker != nil {
		if _, change := l.breaker.RecordSuccess(); change.Closed {
			l.metrics.SetDegraded(false)
			l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
		}
	}
	l.metrics.ObserveCheck(string(class), result.Allowed)
	return result, nil
}

func (l *Limiter) degrade(ctx context.Context, class models.EndpointClass, key string, policy models.Policy, cause error) (*models.RateLimitResult, error) {
	if l.breaker == nil || l.fallback == nil {
		return nil, dErrors.Wrap(cause, dErrors.CodeStorageUnavailable, "rate limit store unavailable")
	}
	useFallback, change := l.breaker.RecordFailure()
	if change.Opened {
		l.metrics.SetDegraded(true)
		l.logger.WarnContext(ctx, "rate limit store failing, using in-memory fallback",
			"breaker", l.breaker.Name(),
			"error", cause,
		)
	}
	if !useFallback {
		return nil, dErrors.Wrap(cause, dErrors.CodeStorageUnavailable, "rate limit store unavailable")
	}
	result, err := l.fallback.Allow(ctx, key, policy.MaxRequests, policy.Window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "rate limit fallback unavailable")
	}
	l.metrics.ObserveCheck(string(class), result.Allowed)
	return result, nil
}
