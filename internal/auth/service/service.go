//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Package service implements the dashboard's OAuth-style password and refresh
// token flows on top of the credential registry and the refresh-token registry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"teller/internal/auth/device"
	"teller/internal/auth/metrics"
	"teller/internal/auth/models"
	dErrors "teller/pkg/domain-errors"
	authmw "teller/pkg/platform/middleware/auth"
	"teller/pkg/platform/sentinel"
	"teller/pkg/requestcontext"
)

// DefaultRefreshTokenTTL is how long an unused refresh token can be exchanged.
const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

// UserStore is the credential registry. Authenticate returns (nil, nil) when the
// credentials do not match any user.
type UserStore interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// RefreshTokenStore records issued refresh tokens. Consume removes the token.
type RefreshTokenStore interface {
	Create(ctx context.Context, record *models.RefreshTokenRecord) error
	Consume(ctx context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error)
	Delete(ctx context.Context, token string) error
}

// TokenIssuer mints token pairs.
type TokenIssuer interface {
	Issue(user *models.User) (*models.TokenPair, error)
}

// AccessTokenParser reads the claims of a presented access token.
type AccessTokenParser interface {
	ValidateToken(tokenString string) (*authmw.JWTClaims, error)
}

// TokenRevocationList blocks access tokens by JTI until they expire.
type TokenRevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type Service struct {
	users         UserStore
	refreshTokens RefreshTokenStore
	tokens        TokenIssuer
	devices       *device.Service
	refreshTTL    time.Duration
	accessTokens  AccessTokenParser
	revocations   TokenRevocationList
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithRefreshTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithDeviceService enables device labels and fingerprints on refresh tokens.
func WithDeviceService(devices *device.Service) Option {
	return func(s *Service) {
		s.devices = devices
	}
}

// WithAccessTokenRevocation lets logout and the revoke endpoint cut access
// tokens short instead of waiting for them to expire.
func WithAccessTokenRevocation(parser AccessTokenParser, list TokenRevocationList) Option {
	return func(s *Service) {
		s.accessTokens = parser
		s.revocations = list
	}
}

func New(users UserStore, refreshTokens RefreshTokenStore, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:         users,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		devices:       device.NewService(false),
		refreshTTL:    DefaultRefreshTokenTTL,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates with the password grant and returns the user, the token
// pair and the session blob the client persists.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, token, session, err := s.passwordGrant(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		Success: true,
		User:    user,
		Token:   token,
		Session: session,
		Message: "Login successful",
	}, nil
}

// Token serves the combined token endpoint. The password grant returns a token
// and session; the refresh grant returns only the new token pair.
func (s *Service) Token(ctx context.Context, req *models.TokenRequest) (*models.AuthResponse, error) {
	switch models.GrantType(req.GrantType) {
	case models.GrantPassword:
		login := models.LoginRequest{Email: req.Email, Password: req.Password}
		login.Normalize()
		if err := login.Validate(); err != nil {
			return nil, err
		}
		_, token, session, err := s.passwordGrant(ctx, login.Email, login.Password)
		if err != nil {
			return nil, err
		}
		return &models.AuthResponse{
			Success: true,
			Token:   token,
			Session: session,
			Message: "Token issued successfully",
		}, nil
	case models.GrantRefreshToken:
		refresh := models.RefreshRequest{RefreshToken: req.RefreshToken}
		refresh.Normalize()
		if err := refresh.Validate(); err != nil {
			return nil, err
		}
		_, token, err := s.rotate(ctx, refresh.RefreshToken)
		if err != nil {
			return nil, err
		}
		return &models.AuthResponse{
			Success: true,
			Token:   token,
			Message: "Token refreshed successfully",
		}, nil
	default:
		return nil, dErrors.New(dErrors.CodeUnsupportedGrantType, "Unsupported grant type")
	}
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed, so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, req *models.RefreshRequest) (*models.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, token, err := s.rotate(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		Success: true,
		User:    user,
		Token:   token,
		Session: models.NewSession(user, token, requestcontext.Now(ctx)),
		Message: "Token refreshed successfully",
	}, nil
}

// Logout revokes the refresh token if one is presented, and the bearer access
// token when revocation is configured. It never fails: the client clears its
// session regardless.
func (s *Service) Logout(ctx context.Context, req *models.LogoutRequest) *models.MessageResponse {
	if req != nil && req.RefreshToken != "" {
		s.revokeRefreshToken(ctx, req.RefreshToken)
	}
	if claims := authmw.GetClaims(ctx); claims != nil {
		s.revokeJTI(ctx, claims)
	}
	s.logger.InfoContext(ctx, "user logged out",
		"user_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.MessageResponse{Success: true, Message: "Logout successful"}
}

// Revoke follows RFC 7009: unknown tokens are not an error. Without a hint the
// token is tried as an access token first, then as a refresh token. Access
// tokens are only revocable when WithAccessTokenRevocation is set.
func (s *Service) Revoke(ctx context.Context, req *models.RevokeRequest) (*models.MessageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	switch req.TokenTypeHint {
	case models.TokenTypeHintAccessToken:
		s.revokeAccessToken(ctx, req.Token)
	case models.TokenTypeHintRefreshToken:
		s.revokeRefreshToken(ctx, req.Token)
	default:
		if !s.revokeAccessToken(ctx, req.Token) {
			s.revokeRefreshToken(ctx, req.Token)
		}
	}
	return &models.MessageResponse{Success: true, Message: "Token revoked successfully"}, nil
}

// UserInfo returns the profile of the authenticated subject.
func (s *Service) UserInfo(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "User not authenticated")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "User not authenticated")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// Session describes the bearer session. An empty userID means no valid token
// was presented.
func (s *Service) Session(ctx context.Context, userID string, expiresAt time.Time) (*models.SessionResponse, error) {
	if userID == "" {
		return &models.SessionResponse{Authenticated: false}, nil
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.SessionResponse{Authenticated: false}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return &models.SessionResponse{
		Authenticated: true,
		User:          user,
		ExpiresAt:     expiresAt.UnixMilli(),
	}, nil
}

func (s *Service) passwordGrant(ctx context.Context, email, password string) (*models.User, *models.TokenPair, *models.Session, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		s.metrics.ObserveLogin(metrics.OutcomeError)
		return nil, nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to authenticate")
	}
	if user == nil {
		s.metrics.ObserveLogin(metrics.OutcomeInvalidCredentials)
		s.logger.WarnContext(ctx, "login failed",
			"client_ip", requestcontext.ClientIP(ctx),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, nil, nil, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid email or password")
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		s.metrics.ObserveLogin(metrics.OutcomeError)
		return nil, nil, nil, err
	}
	s.metrics.ObserveLogin(metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID,
		"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		"client_ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return user, token, models.NewSession(user, token, requestcontext.Now(ctx)), nil
}

func (s *Service) rotate(ctx context.Context, refreshToken string) (*models.User, *models.TokenPair, error) {
	now := requestcontext.Now(ctx)
	record, err := s.refreshTokens.Consume(ctx, refreshToken, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) || errors.Is(err, sentinel.ErrCorrupt) {
			s.metrics.ObserveRefresh(metrics.OutcomeInvalidGrant)
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInvalidGrant, "Invalid refresh token")
		}
		s.metrics.ObserveRefresh(metrics.OutcomeError)
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume refresh token")
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.ObserveRefresh(metrics.OutcomeInvalidGrant)
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInvalidGrant, "User not found")
		}
		s.metrics.ObserveRefresh(metrics.OutcomeError)
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	current := s.devices.ComputeFingerprint(requestcontext.UserAgent(ctx))
	if _, drift := s.devices.CompareFingerprints(record.Fingerprint, current); drift {
		s.metrics.IncrementDeviceDrift()
		s.logger.WarnContext(ctx, "refresh token presented from a different device",
			"user_id", user.ID,
			"issued_to", record.Device,
			"presented_by", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		s.metrics.ObserveRefresh(metrics.OutcomeError)
		return nil, nil, err
	}
	s.metrics.ObserveRefresh(metrics.OutcomeSuccess)
	return user, token, nil
}

// issue mints a pair and records its refresh token.
func (s *Service) issue(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue tokens")
	}
	now := requestcontext.Now(ctx)
	userAgent := requestcontext.UserAgent(ctx)
	record := &models.RefreshTokenRecord{
		Token:       token.RefreshToken,
		UserID:      user.ID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.refreshTTL),
		Device:      device.ParseUserAgent(userAgent),
		Fingerprint: s.devices.ComputeFingerprint(userAgent),
	}
	if err := s.refreshTokens.Create(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store refresh token")
	}
	s.metrics.IncrementTokensIssued()
	return token, nil
}

func (s *Service) revokeRefreshToken(ctx context.Context, token string) {
	if err := s.refreshTokens.Delete(ctx, token); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh token",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.metrics.IncrementTokensRevoked()
}

// revokeAccessToken reports whether token was a valid access token.
func (s *Service) revokeAccessToken(ctx context.Context, token string) bool {
	if s.accessTokens == nil || s.revocations == nil {
		return false
	}
	claims, err := s.accessTokens.ValidateToken(token)
	if err != nil {
		return false
	}
	s.revokeJTI(ctx, claims)
	return true
}

func (s *Service) revokeJTI(ctx context.Context, claims *authmw.JWTClaims) {
	if s.revocations == nil || claims.JTI == "" {
		return
	}
	ttl := claims.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return
	}
	if err := s.revocations.RevokeToken(ctx, claims.JTI, ttl); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke access token",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.metrics.IncrementAccessTokensRevoked()
}
