package user

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teller/internal/auth/models"
	"teller/pkg/platform/sentinel"
)

type account struct {
	user         *models.User
	passwordHash []byte
}

// InMemoryUserStore is the credential registry used when no database is
// configured. Email lookups are exact and case-sensitive.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	byEmail map[string]*account
	byID    map[string]*account
	cost    int
	clock   func() time.Time
}

type Option func(*InMemoryUserStore)

// WithBcryptCost lowers the hashing cost for tests.
func WithBcryptCost(cost int) Option {
	return func(s *InMemoryUserStore) {
		s.cost = cost
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryUserStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New builds a store holding seeds. Pass DefaultSeeds() for the demo accounts.
func New(seeds []Seed, opts ...Option) (*InMemoryUserStore, error) {
	s := &InMemoryUserStore{
		byEmail: make(map[string]*account, len(seeds)),
		byID:    make(map[string]*account, len(seeds)),
		cost:    bcrypt.DefaultCost,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, seed := range seeds {
		if err := s.add(seed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *InMemoryUserStore) add(seed Seed) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", seed.Email, err)
	}
	acc := &account{user: seed.user(), passwordHash: hash}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[seed.Email] = acc
	s.byID[seed.ID] = acc
	return nil
}

// Authenticate returns a copy of the matching user with LastLogin stamped, or
// (nil, nil) when the email is unknown or the password does not match.
func (s *InMemoryUserStore) Authenticate(_ context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, nil
	}
	s.mu.RLock()
	acc, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)) != nil {
		return nil, nil
	}

	now := s.clock()
	s.mu.Lock()
	acc.user.LastLogin = &now
	u := acc.user.Clone()
	s.mu.Unlock()
	return u, nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	return acc.user.Clone(), nil
}
