package refreshtoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teller/internal/auth/models"
	"teller/pkg/platform/sentinel"
)

// All stores share one error contract:
//   - ErrNotFound when the token was never issued or was already consumed
//   - ErrExpired when the token exists but its lifetime is over; the record is
//     removed either way
//   - wrapped errors for infrastructure failures

// InMemoryRefreshTokenStore keeps refresh tokens in process memory.
type InMemoryRefreshTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.RefreshTokenRecord
}

func New() *InMemoryRefreshTokenStore {
	return &InMemoryRefreshTokenStore{tokens: make(map[string]*models.RefreshTokenRecord)}
}

func (s *InMemoryRefreshTokenStore) Create(_ context.Context, record *models.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.tokens[record.Token] = &cp
	return nil
}

// Consume removes the token and returns its record. A token can be consumed once.
func (s *InMemoryRefreshTokenStore) Consume(_ context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	delete(s.tokens, token)
	if record.IsExpired(now) {
		return nil, fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}
	return record, nil
}

// Delete is idempotent.
func (s *InMemoryRefreshTokenStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// DeleteExpired removes every token expired at now and reports how many went.
func (s *InMemoryRefreshTokenStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, record := range s.tokens {
		if record.IsExpired(now) {
			delete(s.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}
