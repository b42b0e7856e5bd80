package persistence

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"teller/internal/auth/models"
	"teller/internal/session/storage"
	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/sentinel"
)

type failingBackend struct {
	storage.Backend
}

func (failingBackend) Get(context.Context, string) (string, error) {
	return "", sentinel.ErrUnavailable
}

func (failingBackend) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

type PersistenceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	backend *storage.Memory
	store   *Store
	session *models.Session
}

func TestPersistenceSuite(t *testing.T) {
	suite.Run(t, new(PersistenceSuite))
}

func (s *PersistenceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.backend = storage.NewMemory()
	s.store = New(s.backend, WithClock(func() time.Time { return s.now }))
	s.session = &models.Session{
		User: &models.User{
			ID:          "1",
			Email:       "test@interswitch.com",
			Name:        "Test User",
			Role:        models.RoleCustomer,
			Permissions: []string{models.ScopeReadAccounts, models.ScopeReadTransactions},
		},
		Token: &models.TokenPair{
			AccessToken:  "a.b.c",
			TokenType:    models.TokenTypeBearer,
			ExpiresIn:    3600,
			RefreshToken: "m7x2k1-4fz9q8",
			Scope:        models.AllScopes,
		},
		ExpiresAt: s.now.Add(time.Hour).UnixMilli(),
	}
}

func (s *PersistenceSuite) TestRoundTrip() {
	s.Require().NoError(s.store.Save(s.ctx, s.session))

	loaded, ok := s.store.Load(s.ctx)
	s.Require().True(ok)
	s.Equal(s.session, loaded)
}

func (s *PersistenceSuite) TestStoredAsBase64JSON() {
	s.Require().NoError(s.store.Save(s.ctx, s.session))

	encoded, err := s.backend.Get(s.ctx, KeySession)
	s.Require().NoError(err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	s.Require().NoError(err)
	s.Contains(string(raw), `"expiresAt":`)
	s.Contains(string(raw), `"email":"test@interswitch.com"`)
}

func (s *PersistenceSuite) TestExpiredSessionIsClearedOnLoad() {
	s.Require().NoError(s.store.Save(s.ctx, s.session))
	s.Require().NoError(s.store.SaveRefreshToken(s.ctx, "m7x2k1-4fz9q8"))

	s.now = time.UnixMilli(s.session.ExpiresAt)

	_, ok := s.store.Load(s.ctx)
	s.False(ok)
	_, ok = s.store.Load(s.ctx)
	s.False(ok)
	s.Equal(0, s.backend.Len())
}

func (s *PersistenceSuite) TestCorruptSessionIsCleared() {
	for _, encoded := range []string{"%%%not-base64", base64.StdEncoding.EncodeToString([]byte("{not json"))} {
		s.Require().NoError(s.backend.Set(s.ctx, KeySession, encoded))
		s.Require().NoError(s.backend.Set(s.ctx, KeyUserData, "cached"))

		_, ok := s.store.Load(s.ctx)
		s.False(ok)
		s.Equal(0, s.backend.Len())
	}
}

func (s *PersistenceSuite) TestLoadWithoutSession() {
	_, ok := s.store.Load(s.ctx)
	s.False(ok)
}

func (s *PersistenceSuite) TestClearIsIdempotent() {
	s.Require().NoError(s.store.Save(s.ctx, s.session))
	s.Require().NoError(s.store.SaveRefreshToken(s.ctx, "rt"))
	s.Require().NoError(s.backend.Set(s.ctx, KeyUserData, "cached"))

	s.Require().NoError(s.store.Clear(s.ctx))
	s.Require().NoError(s.store.Clear(s.ctx))
	s.Equal(0, s.backend.Len())
}

func (s *PersistenceSuite) TestRefreshTokenPrefersSeparateKey() {
	s.Require().NoError(s.store.Save(s.ctx, s.session))
	s.Require().NoError(s.store.SaveRefreshToken(s.ctx, "separate-token"))

	token, ok := s.store.RefreshToken(s.ctx)
	s.True(ok)
	s.Equal("separate-token", token)
}

func (s *PersistenceSuite) TestEmptyRefreshTokenRemovesSeparateKey() {
	s.Require().NoError(s.store.Save(s.ctx, s.session))
	s.Require().NoError(s.store.SaveRefreshToken(s.ctx, "separate-token"))

	s.Require().NoError(s.store.SaveRefreshToken(s.ctx, ""))

	_, err := s.backend.Get(s.ctx, KeyRefreshToken)
	s.ErrorIs(err, sentinel.ErrNotFound)
	token, ok := s.store.RefreshToken(s.ctx)
	s.True(ok)
	s.Equal("m7x2k1-4fz9q8", token)
}

func (s *PersistenceSuite) TestRefreshTokenFallsBackToSession() {
	s.Require().NoError(s.store.Save(s.ctx, s.session))

	token, ok := s.store.RefreshToken(s.ctx)
	s.True(ok)
	s.Equal("m7x2k1-4fz9q8", token)
}

func (s *PersistenceSuite) TestUnreadableRefreshTokenIsDropped() {
	s.Require().NoError(s.backend.Set(s.ctx, KeyRefreshToken, "%%%"))

	_, ok := s.store.RefreshToken(s.ctx)
	s.False(ok)
	_, err := s.backend.Get(s.ctx, KeyRefreshToken)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PersistenceSuite) TestNilBackend() {
	store := New(nil)

	err := store.Save(s.ctx, s.session)
	s.Require().ErrorIs(err, ErrStorageUnavailable)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageUnavailable))

	_, ok := store.Load(s.ctx)
	s.False(ok)
	s.NoError(store.Clear(s.ctx))
	_, ok = store.RefreshToken(s.ctx)
	s.False(ok)
}

func TestBackendFailures(t *testing.T) {
	store := New(failingBackend{})

	err := store.Save(context.Background(), &models.Session{})
	require.True(t, dErrors.HasCode(err, dErrors.CodeStorageUnavailable))

	_, ok := store.Load(context.Background())
	require.False(t, ok)
}
