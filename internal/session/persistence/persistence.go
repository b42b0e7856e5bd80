// Package persistence owns the client's persisted session. It is the only
// place expiry is enforced on read: Load never returns a session whose
// deadline has passed.
package persistence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"teller/internal/auth/models"
	"teller/internal/session/storage"
	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/sentinel"
)

// Storage keys. Clear removes all three.
const (
	KeySession      = "auth_session"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
)

var ErrStorageUnavailable = dErrors.New(dErrors.CodeStorageUnavailable, "Failed to store authentication session")

type Store struct {
	backend storage.Backend
	clock   func() time.Time
	logger  *slog.Logger
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps backend. A nil backend models a context without durable storage:
// saves fail and loads find nothing.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save replaces the persisted session.
func (s *Store) Save(ctx context.Context, session *models.Session) error {
	if s.backend == nil {
		return ErrStorageUnavailable
	}
	if session == nil {
		return dErrors.New(dErrors.CodeInvalidRequest, "session is required")
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode session")
	}
	if err := s.backend.Set(ctx, KeySession, base64.StdEncoding.EncodeToString(raw)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "Failed to store authentication session")
	}
	return nil
}

// Load returns the persisted session if one exists and is still valid. Expired
// or undecodable sessions are cleared. Backend errors read as "no session".
func (s *Store) Load(ctx context.Context) (*models.Session, bool) {
	if s.backend == nil {
		return nil, false
	}
	encoded, err := s.backend.Get(ctx, KeySession)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "session storage read failed", "error", err)
		}
		return nil, false
	}

	session, err := decodeSession(encoded)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable session", "error", err)
		s.clearQuietly(ctx)
		return nil, false
	}
	if !session.Valid(s.clock()) {
		s.logger.DebugContext(ctx, "discarding expired session", "expires_at", session.ExpiresAt)
		s.clearQuietly(ctx)
		return nil, false
	}
	return session, true
}

// Clear removes the session and every auxiliary auth key. Missing keys are not errors.
func (s *Store) Clear(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	var errs []error
	for _, key := range []string{KeySession, KeyRefreshToken, KeyUserData} {
		if err := s.backend.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "failed to clear session")
	}
	return nil
}

// SaveRefreshToken stores a refresh token under its own key, independent of the
// session blob. An empty token removes the key.
func (s *Store) SaveRefreshToken(ctx context.Context, token string) error {
	if s.backend == nil {
		return dErrors.New(dErrors.CodeStorageUnavailable, "Failed to store refresh token")
	}
	if token == "" {
		if err := s.backend.Delete(ctx, KeyRefreshToken); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "Failed to store refresh token")
		}
		return nil
	}
	if err := s.backend.Set(ctx, KeyRefreshToken, base64.StdEncoding.EncodeToString([]byte(token))); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "Failed to store refresh token")
	}
	return nil
}

// RefreshToken prefers the separately stored token and falls back to the one
// inside a valid session.
func (s *Store) RefreshToken(ctx context.Context) (string, bool) {
	if s.backend == nil {
		return "", false
	}
	encoded, err := s.backend.Get(ctx, KeyRefreshToken)
	switch {
	case err == nil:
		raw, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr == nil && len(raw) > 0 {
			return string(raw), true
		}
		s.logger.WarnContext(ctx, "discarding unreadable refresh token", "error", decodeErr)
		if delErr := s.backend.Delete(ctx, KeyRefreshToken); delErr != nil {
			s.logger.WarnContext(ctx, "failed to remove refresh token", "error", delErr)
		}
	case !errors.Is(err, sentinel.ErrNotFound):
		s.logger.WarnContext(ctx, "refresh token read failed", "error", err)
	}

	session, ok := s.Load(ctx)
	if !ok || session.Token == nil || session.Token.RefreshToken == "" {
		return "", false
	}
	return session.Token.RefreshToken, true
}

func (s *Store) clearQuietly(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to clear session storage", "error", err)
	}
}

func decodeSession(encoded string) (*models.Session, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return &session, nil
}
