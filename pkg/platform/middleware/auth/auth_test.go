package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/sentinel"
	"teller/pkg/requestcontext"
)

type stubValidator struct {
	claims map[string]*JWTClaims
}

func (v stubValidator) ValidateToken(token string) (*JWTClaims, error) {
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token")
}

type stubPrincipal struct {
	role        string
	permissions []string
}

func (p stubPrincipal) HasPermission(permission string) bool {
	for _, perm := range p.permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

func (p stubPrincipal) HasRole(role string) bool { return p.role == role }

type stubPrincipals struct {
	principals map[string]Principal
	err        error
}

func (s stubPrincipals) FindPrincipal(_ context.Context, userID string) (Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.principals[userID]; ok {
		return p, nil
	}
	return nil, sentinel.ErrNotFound
}

type AuthMiddlewareSuite struct {
	suite.Suite
	auth *Authenticator
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	validator := stubValidator{claims: map[string]*JWTClaims{
		"customer-token": {UserID: "1", JTI: "a"},
		"admin-token":    {UserID: "2", JTI: "b"},
		"ghost-token":    {UserID: "99", JTI: "c"},
	}}
	principals := stubPrincipals{principals: map[string]Principal{
		"1": stubPrincipal{role: "customer", permissions: []string{"read:accounts"}},
		"2": stubPrincipal{role: "admin", permissions: []string{"read:accounts", "write:profile"}},
	}}
	s.auth = NewAuthenticator(validator, principals, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()) != nil {
			w.Header().Set("X-User", requestcontext.UserID(r.Context()))
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (s *AuthMiddlewareSuite) serve(h http.Handler, authorization string) (*httptest.ResponseRecorder, map[string]string) {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/userinfo", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := map[string]string{}
	if rec.Code != http.StatusOK {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	h := s.auth.RequireAuth(okHandler())

	s.Run("missing header", func() {
		rec, body := s.serve(h, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("unauthorized", body["error"])
		s.Equal("Authorization header is required", body["error_description"])
	})

	s.Run("wrong scheme", func() {
		rec, body := s.serve(h, "Basic dXNlcjpwYXNz")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("Invalid authorization header format", body["error_description"])
	})

	s.Run("invalid token", func() {
		rec, body := s.serve(h, "Bearer forged")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("invalid_token", body["error"])
		s.Equal("Token is expired or invalid", body["error_description"])
	})

	s.Run("unknown subject", func() {
		rec, body := s.serve(h, "Bearer ghost-token")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("invalid_token", body["error"])
		s.Equal("User not found", body["error_description"])
	})

	s.Run("valid token", func() {
		rec, _ := s.serve(h, "Bearer customer-token")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("1", rec.Header().Get("X-User"))
	})
}

func (s *AuthMiddlewareSuite) TestRequireAuth_StoreFailure() {
	auth := NewAuthenticator(
		stubValidator{claims: map[string]*JWTClaims{"t": {UserID: "1"}}},
		stubPrincipals{err: errors.New("connection refused")},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	rec, body := s.serve(auth.RequireAuth(okHandler()), "Bearer t")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("server_error", body["error"])
	s.Equal("Internal server error", body["error_description"])
}

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (r stubRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	return r.revoked[jti], r.err
}

func (s *AuthMiddlewareSuite) TestRequireAuth_Revocation() {
	validator := stubValidator{claims: map[string]*JWTClaims{
		"revoked-token": {UserID: "1", JTI: "gone"},
		"live-token":    {UserID: "1", JTI: "live"},
	}}
	principals := stubPrincipals{principals: map[string]Principal{"1": stubPrincipal{role: "customer"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.Run("revoked jti", func() {
		auth := NewAuthenticator(validator, principals, logger,
			WithRevocationChecker(stubRevocations{revoked: map[string]bool{"gone": true}}))
		rec, body := s.serve(auth.RequireAuth(okHandler()), "Bearer revoked-token")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("Token has been revoked", body["error_description"])

		rec, _ = s.serve(auth.RequireAuth(okHandler()), "Bearer live-token")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("revocation store down", func() {
		auth := NewAuthenticator(validator, principals, logger,
			WithRevocationChecker(stubRevocations{err: errors.New("connection refused")}))
		rec, body := s.serve(auth.RequireAuth(okHandler()), "Bearer live-token")
		s.Equal(http.StatusServiceUnavailable, rec.Code)
		s.Equal("storage_unavailable", body["error"])
	})
}

func (s *AuthMiddlewareSuite) TestRequirePermission() {
	h := s.auth.RequirePermission("write:profile")(okHandler())

	s.Run("missing permission", func() {
		rec, body := s.serve(h, "Bearer customer-token")
		s.Equal(http.StatusForbidden, rec.Code)
		s.Equal("insufficient_scope", body["error"])
		s.Equal("Permission 'write:profile' is required", body["error_description"])
	})

	s.Run("granted", func() {
		rec, _ := s.serve(h, "Bearer admin-token")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("unauthenticated", func() {
		rec, _ := s.serve(h, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	h := s.auth.RequireRole("admin")(okHandler())

	rec, body := s.serve(h, "Bearer customer-token")
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("Role 'admin' is required", body["error_description"])

	rec, _ = s.serve(h, "Bearer admin-token")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *AuthMiddlewareSuite) TestOptionalAuth() {
	h := s.auth.OptionalAuth(okHandler())

	rec, _ := s.serve(h, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Empty(rec.Header().Get("X-User"))

	rec, _ = s.serve(h, "Bearer forged")
	s.Equal(http.StatusOK, rec.Code)
	s.Empty(rec.Header().Get("X-User"))

	rec, _ = s.serve(h, "Bearer admin-token")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("2", rec.Header().Get("X-User"))
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := ExtractBearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, header := range []string{"", "Bearer ", "bearer abc", "Token abc"} {
		_, ok := ExtractBearerToken(header)
		assert.False(t, ok, header)
	}
}
