package revocation

import (
	"context"
	"sync"
	"time"
)

// InMemoryTRL is a single-process token revocation list.
type InMemoryTRL struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   func() time.Time
}

type Option func(*InMemoryTRL)

func WithClock(clock func() time.Time) Option {
	return func(t *InMemoryTRL) {
		if clock != nil {
			t.clock = clock
		}
	}
}

func New(opts ...Option) *InMemoryTRL {
	t := &InMemoryTRL{revoked: make(map[string]time.Time), clock: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RevokeToken blocks jti for ttl. Empty JTIs are ignored.
func (t *InMemoryTRL) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked[jti] = t.clock().Add(ttl)
	return nil
}

func (t *InMemoryTRL) IsRevoked(_ context.Context, jti string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	until, ok := t.revoked[jti]
	return ok && t.clock().Before(until), nil
}

// DeleteExpired drops entries whose tokens have expired at now.
func (t *InMemoryTRL) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	deleted := 0
	for jti, until := range t.revoked {
		if !now.Before(until) {
			delete(t.revoked, jti)
			deleted++
		}
	}
	return deleted, nil
}
