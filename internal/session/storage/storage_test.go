package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"teller/pkg/platform/sentinel"
)

// backendContractSuite is embedded by one suite per backend.
type backendContractSuite struct {
	suite.Suite
	ctx     context.Context
	backend Backend
}

func (s *backendContractSuite) TestMissingKeyIsNotFound() {
	_, err := s.backend.Get(s.ctx, "auth_session")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *backendContractSuite) TestSetThenGet() {
	s.Require().NoError(s.backend.Set(s.ctx, "auth_session", "eyJ1c2VyIjp7fX0="))

	v, err := s.backend.Get(s.ctx, "auth_session")
	s.Require().NoError(err)
	s.Equal("eyJ1c2VyIjp7fX0=", v)
}

func (s *backendContractSuite) TestSetOverwrites() {
	s.Require().NoError(s.backend.Set(s.ctx, "refresh_token", "first"))
	s.Require().NoError(s.backend.Set(s.ctx, "refresh_token", "second"))

	v, err := s.backend.Get(s.ctx, "refresh_token")
	s.Require().NoError(err)
	s.Equal("second", v)
}

func (s *backendContractSuite) TestDeleteIsIdempotent() {
	s.Require().NoError(s.backend.Set(s.ctx, "user_data", "x"))
	s.Require().NoError(s.backend.Delete(s.ctx, "user_data"))
	s.Require().NoError(s.backend.Delete(s.ctx, "user_data"))

	_, err := s.backend.Get(s.ctx, "user_data")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

type MemorySuite struct {
	backendContractSuite
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = NewMemory()
}

type FileSuite struct {
	backendContractSuite
	dir string
}

func TestFileSuite(t *testing.T) {
	suite.Run(t, new(FileSuite))
}

func (s *FileSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = filepath.Join(s.T().TempDir(), "state")
	f, err := NewFile(s.dir)
	s.Require().NoError(err)
	s.backend = f
}

func (s *FileSuite) TestFilesArePrivate() {
	s.Require().NoError(s.backend.Set(s.ctx, "auth_session", "secret"))

	info, err := os.Stat(filepath.Join(s.dir, "auth_session"))
	s.Require().NoError(err)
	s.Equal(os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	s.Len(entries, 1, "temp files are cleaned up")
}

func (s *FileSuite) TestRejectsPathKeys() {
	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		s.Error(s.backend.Set(s.ctx, key, "x"), key)
	}
}

type RedisSuite struct {
	backendContractSuite
	mr *miniredis.Miniredis
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupTest() {
	s.ctx = context.Background()
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.backend = NewRedis(client, WithNamespace("alice"))
}

func (s *RedisSuite) TestKeysAreNamespaced() {
	s.Require().NoError(s.backend.Set(s.ctx, "auth_session", "v"))
	s.True(s.mr.Exists("teller:client:alice:auth_session"))
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	backend := NewRedis(client)
	mr.Close()

	_, err := backend.Get(context.Background(), "auth_session")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
}
