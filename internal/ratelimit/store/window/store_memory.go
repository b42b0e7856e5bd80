// Package window implements fixed-window counters. A record restarts at
// count 1 once its window has passed; a denied request does not increment the
// count or extend the window.
package window

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teller/internal/ratelimit/models"
)

// InMemoryStore keeps counters in process memory.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.RateLimitRecord
	clock   func() time.Time
}

type Option func(*InMemoryStore)

func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		records: make(map[string]*models.RateLimitRecord),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Allow(_ context.Context, key string, maxRequests int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.clock()
	nowMs := now.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok || nowMs > record.ResetAt {
		record = &models.RateLimitRecord{Count: 1, ResetAt: nowMs + window.Milliseconds()}
		s.records[key] = record
		return models.NewResult(true, *record, maxRequests, now), nil
	}
	if record.Count >= maxRequests {
		return models.NewResult(false, *record, maxRequests, now), nil
	}
	record.Count++
	return models.NewResult(true, *record, maxRequests, now), nil
}

// Record returns a copy of the counter for key.
func (s *InMemoryStore) Record(key string) (models.RateLimitRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	if !ok {
		return models.RateLimitRecord{}, false
	}
	return *record, true
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Sweep drops records whose window has passed and returns how many went.
func (s *InMemoryStore) Sweep(_ context.Context) (int, error) {
	nowMs := s.clock().UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, record := range s.records {
		if nowMs > record.ResetAt {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// StartCleanup sweeps expired records every interval until ctx is cancelled.
func (s *InMemoryStore) StartCleanup(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
