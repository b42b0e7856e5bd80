package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"teller/internal/ratelimit/models"
)

const keyPrefix = "teller:ratelimit:"

// allowScript applies the fixed-window rule atomically.
// KEYS[1] counter hash; ARGV max, window ms, now ms.
// Returns {allowed, count, reset_at}.
var allowScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))
if count == nil or reset == nil or now > reset then
	reset = now + window
	redis.call('HSET', KEYS[1], 'count', 1, 'reset_at', reset)
	redis.call('PEXPIRE', KEYS[1], window + 1000)
	return {1, 1, reset}
end
if count >= max then
	return {0, count, reset}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, reset}
`)

// RedisStore shares counters between server instances.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
}

type RedisOption func(*RedisStore)

func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Allow(ctx context.Context, key string, maxRequests int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.clock()
	res, err := allowScript.Run(ctx, s.client, []string{keyPrefix + key},
		maxRequests, window.Milliseconds(), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	record := models.RateLimitRecord{Count: int(res[1]), ResetAt: res[2]}
	return models.NewResult(res[0] == 1, record, maxRequests, now), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
