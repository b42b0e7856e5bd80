package user

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"teller/internal/auth/models"
	"teller/pkg/platform/sentinel"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	store *InMemoryUserStore
	now   time.Time
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store, err := New(DefaultSeeds(), WithBcryptCost(bcrypt.MinCost), WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.store = store
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) TestAuthenticate() {
	ctx := context.Background()

	s.Run("valid customer credentials", func() {
		u, err := s.store.Authenticate(ctx, "test@interswitch.com", "password123")
		s.Require().NoError(err)
		s.Require().NotNil(u)
		s.Equal("1", u.ID)
		s.Equal(models.RoleCustomer, u.Role)
		s.ElementsMatch([]string{"read:accounts", "read:transactions", "write:transfers"}, u.Permissions)
		s.Require().NotNil(u.LastLogin)
		s.Equal(s.now, *u.LastLogin)
	})

	s.Run("valid admin credentials", func() {
		u, err := s.store.Authenticate(ctx, "admin@interswitch.com", "admin123")
		s.Require().NoError(err)
		s.Require().NotNil(u)
		s.Equal("2", u.ID)
		s.True(u.HasPermission(models.ScopeWriteProfile))
	})

	for name, creds := range map[string][2]string{
		"wrong password":      {"test@interswitch.com", "wrong"},
		"unknown email":       {"nobody@interswitch.com", "password123"},
		"email is case exact": {"Test@Interswitch.com", "password123"},
		"empty password":      {"test@interswitch.com", ""},
		"empty email":         {"", "password123"},
	} {
		s.Run(name+" returns no user", func() {
			u, err := s.store.Authenticate(ctx, creds[0], creds[1])
			s.Require().NoError(err)
			s.Nil(u)
		})
	}
}

func (s *InMemoryUserStoreSuite) TestReturnedUserIsACopy() {
	ctx := context.Background()
	u, err := s.store.Authenticate(ctx, "test@interswitch.com", "password123")
	s.Require().NoError(err)
	u.Permissions = append(u.Permissions, models.ScopeWriteProfile)
	u.Role = models.RoleAdmin

	again, err := s.store.FindByID(ctx, "1")
	s.Require().NoError(err)
	s.Equal(models.RoleCustomer, again.Role)
	s.False(again.HasPermission(models.ScopeWriteProfile))
}

func (s *InMemoryUserStoreSuite) TestFindByID() {
	ctx := context.Background()

	s.Run("never logged in has no LastLogin", func() {
		u, err := s.store.FindByID(ctx, "2")
		s.Require().NoError(err)
		s.Nil(u.LastLogin)
	})

	s.Run("missing user", func() {
		_, err := s.store.FindByID(ctx, "404")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryUserStoreSuite) TestConcurrentAuthentication() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := s.store.Authenticate(ctx, "admin@interswitch.com", "admin123")
			s.NoError(err)
			s.NotNil(u)
		}()
	}
	wg.Wait()
}

func (s *InMemoryUserStoreSuite) TestLoadSeeds() {
	dir := s.T().TempDir()

	s.Run("valid file", func() {
		path := filepath.Join(dir, "users.yaml")
		s.Require().NoError(os.WriteFile(path, []byte(`
users:
  - id: "7"
    email: ops@interswitch.com
    name: Ops
    role: admin
    permissions: [read:accounts, read:profile]
    password: s3cret
`), 0o600))

		seeds, err := LoadSeeds(path)
		s.Require().NoError(err)
		s.Require().Len(seeds, 1)

		store, err := New(seeds, WithBcryptCost(bcrypt.MinCost))
		s.Require().NoError(err)
		u, err := store.Authenticate(context.Background(), "ops@interswitch.com", "s3cret")
		s.Require().NoError(err)
		s.Require().NotNil(u)
		s.Equal([]string{"read:accounts", "read:profile"}, u.Permissions)
	})

	s.Run("missing password", func() {
		path := filepath.Join(dir, "bad.yaml")
		s.Require().NoError(os.WriteFile(path, []byte("users:\n  - id: \"1\"\n    email: a@b.c\n"), 0o600))
		_, err := LoadSeeds(path)
		s.Require().Error(err)
	})

	s.Run("duplicate email", func() {
		path := filepath.Join(dir, "dup.yaml")
		s.Require().NoError(os.WriteFile(path, []byte(`
users:
  - {id: "1", email: a@b.c, password: x}
  - {id: "2", email: a@b.c, password: y}
`), 0o600))
		_, err := LoadSeeds(path)
		s.Require().Error(err)
	})

	s.Run("missing file", func() {
		_, err := LoadSeeds(filepath.Join(dir, "nope.yaml"))
		s.Require().Error(err)
	})
}
