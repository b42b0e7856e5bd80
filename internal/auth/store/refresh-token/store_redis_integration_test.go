//go:build integration

package refreshtoken_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"teller/internal/auth/models"
	refreshtoken "teller/internal/auth/store/refresh-token"
	"teller/pkg/platform/sentinel"
	"teller/pkg/testutil/containers"
)

type RedisIntegrationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *refreshtoken.RedisRefreshTokenStore
}

func TestRedisIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = refreshtoken.NewRedis(s.redis.Client)
}

func (s *RedisIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisIntegrationSuite) TestConcurrentRefreshHasOneWinner() {
	ctx := context.Background()
	now := time.Now()
	s.Require().NoError(s.store.Create(ctx, &models.RefreshTokenRecord{
		Token: "ref-shared", UserID: "1", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	var wins, misses atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Consume(ctx, "ref-shared", time.Now())
			switch {
			case err == nil:
				wins.Add(1)
			case s.ErrorIs(err, sentinel.ErrNotFound):
				misses.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(49), misses.Load())
}
