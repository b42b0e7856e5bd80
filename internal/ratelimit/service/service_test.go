package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"teller/internal/ratelimit/metrics"
	"teller/internal/ratelimit/models"
	"teller/internal/ratelimit/store/window"
	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/circuit"
)

type flakyStore struct {
	failing bool
	calls   int
	keys    []string
	inner   *window.InMemoryStore
}

func (f *flakyStore) Allow(ctx context.Context, key string, maxRequests int, w time.Duration) (*models.RateLimitResult, error) {
	f.calls++
	f.keys = append(f.keys, key)
	if f.failing {
		return nil, errors.New("connection refused")
	}
	return f.inner.Allow(ctx, key, maxRequests, w)
}

type LimiterSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	primary  *flakyStore
	fallback *window.InMemoryStore
	breaker  *circuit.Breaker
	metrics  *metrics.Metrics
	limiter  *Limiter
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := window.WithClock(func() time.Time { return s.now })
	s.primary = &flakyStore{inner: window.New(clock)}
	s.fallback = window.New(clock)
	s.breaker = circuit.New("ratelimit", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.limiter = New(s.primary,
		WithFallback(s.fallback, s.breaker),
		WithMetrics(s.metrics),
	)
}

func (s *LimiterSuite) TestLoginPolicyAllowsFiveAttempts() {
	for i := range 5 {
		result, err := s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
		s.Require().NoError(err)
		s.True(result.Allowed, "attempt %d", i+1)
	}
	result, err := s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(300, result.RetryAfter)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("login")))
	s.Equal(float64(6), testutil.ToFloat64(s.metrics.Checks.WithLabelValues("login")))
}

func (s *LimiterSuite) TestClassesUseDistinctKeys() {
	_, err := s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
	s.Require().NoError(err)
	_, err = s.limiter.Check(s.ctx, models.ClassRefresh, "10.0.0.1")
	s.Require().NoError(err)

	s.Equal([]string{"login:10.0.0.1", "refresh:10.0.0.1"}, s.primary.keys)
}

func (s *LimiterSuite) TestUnknownClass() {
	_, err := s.limiter.Check(s.ctx, models.EndpointClass("transfer"), "10.0.0.1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *LimiterSuite) TestWithPoliciesOverridesOneClass() {
	limiter := New(s.primary, WithPolicies(map[models.EndpointClass]models.Policy{
		models.ClassToken: {MaxRequests: 1, Window: time.Minute},
	}))

	first, err := limiter.Check(s.ctx, models.ClassToken, "a")
	s.Require().NoError(err)
	second, err := limiter.Check(s.ctx, models.ClassToken, "a")
	s.Require().NoError(err)
	s.True(first.Allowed)
	s.False(second.Allowed)

	login, ok := limiter.Policy(models.ClassLogin)
	s.True(ok)
	s.Equal(5, login.MaxRequests)
}

func (s *LimiterSuite) TestErrorsBeforeBreakerOpens() {
	s.primary.failing = true

	_, err := s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageUnavailable))
	s.False(s.breaker.IsOpen())
}

func (s *LimiterSuite) TestFallbackServesWhileBreakerOpen() {
	s.primary.failing = true
	_, _ = s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")

	result, err := s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(4, result.Remaining)
	s.True(s.breaker.IsOpen())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Degraded))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.StoreErrors))
}

func (s *LimiterSuite) TestRecoveryClosesBreaker() {
	s.primary.failing = true
	_, _ = s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
	_, _ = s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
	s.Require().True(s.breaker.IsOpen())

	s.primary.failing = false
	result, err := s.limiter.Check(s.ctx, models.ClassLogin, "10.0.0.1")
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.False(s.breaker.IsOpen())
	s.Equal(float64(0), testutil.ToFloat64(s.metrics.Degraded))
}

func (s *LimiterSuite) TestNoFallbackConfigured() {
	s.primary.failing = true
	limiter := New(s.primary)

	for range 10 {
		_, err := limiter.Check(s.ctx, models.ClassRefresh, "10.0.0.1")
		s.Require().Error(err)
	}
}
