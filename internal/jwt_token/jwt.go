package jwttoken

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"teller/internal/auth/models"
	dErrors "teller/pkg/domain-errors"
)

// DefaultAccessTokenTTL matches the one hour access token lifetime of the dashboard.
const DefaultAccessTokenTTL = time.Hour

// Claims represents the JWT claims of an access token.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues token pairs and answers expiry questions about access tokens.
type JWTService struct {
	signingKey   []byte
	issuer       string
	audience     string
	accessTTL    time.Duration
	legacyTokens bool
	clock        func() time.Time
	logger       *slog.Logger
}

type Option func(*JWTService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *JWTService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *JWTService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLegacyTokens makes IsExpired accept tokens that are a single base64 JSON
// blob instead of three segments. Compatibility only; never issued.
func WithLegacyTokens(enabled bool) Option {
	return func(s *JWTService) {
		s.legacyTokens = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *JWTService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewJWTService(signingKey string, issuer string, audience string, opts ...Option) *JWTService {
	s := &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  DefaultAccessTokenTTL,
		clock:      time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessTTL is the lifetime stamped into every issued access token.
func (s *JWTService) AccessTTL() time.Duration {
	return s.accessTTL
}

// Issue mints a signed access token and an opaque refresh token for user.
func (s *JWTService) Issue(user *models.User) (*models.TokenPair, error) {
	if user == nil || user.ID == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "cannot issue tokens without a subject")
	}
	now := s.clock()

	accessToken, err := s.GenerateAccessToken(user.ID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	refreshToken, err := GenerateRefreshToken(now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		TokenType:    models.TokenTypeBearer,
		ExpiresIn:    int(s.accessTTL / time.Second),
		RefreshToken: refreshToken,
		Scope:        models.AllScopes,
		ExpiresAt:    now.Truncate(time.Second).Add(s.accessTTL),
	}, nil
}

// GenerateAccessToken signs {iss, aud, iat, exp, sub, jti} with HS256.
// iat is truncated to the second so exp - iat equals the TTL exactly.
func (s *JWTService) GenerateAccessToken(subject string, now time.Time) (string, error) {
	issuedAt := now.Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: models.AllScopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.accessTTL)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// GenerateRefreshToken returns base36(unix ms) + "-" + base36(64 random bits).
func GenerateRefreshToken(now time.Time) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	random := binary.BigEndian.Uint64(buf[:])
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + strconv.FormatUint(random, 36), nil
}

// ValidateToken verifies signature, issuer, audience and expiry.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithTimeFunc(s.clock),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidToken, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token claims")
	}
	return claims, nil
}

// IsExpired is a structural check that needs no signing key: the token must have
// three dot-separated segments whose middle one is base64 JSON with a numeric
// exp. Anything that cannot be read is reported as expired.
func (s *JWTService) IsExpired(token string) bool {
	exp, err := expiryFromSegments(token)
	if err != nil && s.legacyTokens {
		if legacyExp, ok, legacyErr := expiryFromLegacyBlob(token); legacyErr == nil {
			if !ok {
				return false
			}
			exp, err = legacyExp, nil
		}
	}
	if err != nil {
		s.logger.Warn("failed to parse token", "error", err)
		return true
	}
	return s.clock().UnixMilli() >= exp*1000
}

func expiryFromSegments(token string) (int64, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("token has %d segments, want 3", len(parts))
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return 0, fmt.Errorf("decode payload: %w", err)
	}
	exp, ok, err := numericExp(payload)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("payload has no numeric exp")
	}
	return exp, nil
}

// expiryFromLegacyBlob reports the exp of a whole-token JSON blob; ok is false
// when the blob parses but carries no exp.
func expiryFromLegacyBlob(token string) (int64, bool, error) {
	blob, err := decodeSegment(token)
	if err != nil {
		return 0, false, err
	}
	return numericExp(blob)
}

func numericExp(payload []byte) (int64, bool, error) {
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0, false, fmt.Errorf("payload is not JSON: %w", err)
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0, false, nil
	}
	return int64(exp), true, nil
}

// decodeSegment accepts both the URL-safe alphabet JWTs use and the standard
// padded alphabet older clients produced.
func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(seg)
}
