package refreshtoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"teller/internal/auth/models"
	"teller/pkg/platform/sentinel"
)

const refreshTokenKeyPrefix = "teller:refresh:"

// RedisRefreshTokenStore shares refresh tokens between server instances. Keys
// carry a TTL equal to the token lifetime, so expired tokens vanish on their own.
type RedisRefreshTokenStore struct {
	client *redis.Client
	clock  func() time.Time
}

type RedisOption func(*RedisRefreshTokenStore)

func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisRefreshTokenStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisRefreshTokenStore {
	s := &RedisRefreshTokenStore{client: client, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisRefreshTokenStore) Create(ctx context.Context, record *models.RefreshTokenRecord) error {
	ttl := record.ExpiresAt.Sub(s.clock())
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired: %w", sentinel.ErrExpired)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal refresh token: %w", err)
	}
	if err := s.client.Set(ctx, refreshTokenKeyPrefix+record.Token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Consume uses GETDEL so two concurrent refreshes cannot both win.
func (s *RedisRefreshTokenStore) Consume(ctx context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error) {
	payload, err := s.client.GetDel(ctx, refreshTokenKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	var record models.RefreshTokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", sentinel.ErrCorrupt)
	}
	if record.IsExpired(now) {
		return nil, fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}
	return &record, nil
}

func (s *RedisRefreshTokenStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, refreshTokenKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
