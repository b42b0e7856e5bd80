package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/httputil"
	"teller/pkg/platform/sentinel"
	"teller/pkg/requestcontext"
)

// JWTValidator verifies a bearer token and returns its claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the subset of access token claims the middleware needs.
type JWTClaims struct {
	UserID    string
	JTI       string
	ExpiresAt time.Time
}

// Principal is the authenticated identity handlers authorize against.
type Principal interface {
	HasPermission(permission string) bool
	HasRole(role string) bool
}

// PrincipalStore resolves the subject of a validated token.
type PrincipalStore interface {
	FindPrincipal(ctx context.Context, userID string) (Principal, error)
}

type contextKeyPrincipal struct{}
type contextKeyClaims struct{}

// GetPrincipal returns the identity set by RequireAuth or OptionalAuth.
func GetPrincipal(ctx context.Context) Principal {
	p, _ := ctx.Value(contextKeyPrincipal{}).(Principal)
	return p
}

// GetClaims returns the validated token claims, or nil for anonymous requests.
func GetClaims(ctx context.Context) *JWTClaims {
	c, _ := ctx.Value(contextKeyClaims{}).(*JWTClaims)
	return c
}

// WithPrincipal injects an identity; used by tests that bypass the middleware.
func WithPrincipal(ctx context.Context, claims *JWTClaims, p Principal) context.Context {
	ctx = context.WithValue(ctx, contextKeyClaims{}, claims)
	ctx = context.WithValue(ctx, contextKeyPrincipal{}, p)
	if claims != nil {
		ctx = requestcontext.WithUserID(ctx, claims.UserID)
	}
	return ctx
}

// RevocationChecker reports whether a token ID was revoked before its expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Authenticator struct {
	validator   JWTValidator
	principals  PrincipalStore
	revocations RevocationChecker
	logger      *slog.Logger
}

type AuthenticatorOption func(*Authenticator)

// WithRevocationChecker rejects tokens whose JTI was revoked by logout or the
// revoke endpoint.
func WithRevocationChecker(checker RevocationChecker) AuthenticatorOption {
	return func(a *Authenticator) {
		a.revocations = checker
	}
}

func NewAuthenticator(validator JWTValidator, principals PrincipalStore, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{validator: validator, principals: principals, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RequireAuth rejects requests without a valid bearer token whose subject still exists.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteOAuthError(w, http.StatusUnauthorized, dErrors.CodeUnauthorized, "Authorization header is required")
			return
		}

		token, ok := ExtractBearerToken(authHeader)
		if !ok {
			httputil.WriteOAuthError(w, http.StatusUnauthorized, dErrors.CodeUnauthorized, "Invalid authorization header format")
			return
		}

		ctx, err := a.authenticate(ctx, token)
		if err != nil {
			a.writeAuthError(ctx, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches the identity when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if token, ok := ExtractBearerToken(r.Header.Get("Authorization")); ok {
			if authed, err := a.authenticate(ctx, token); err == nil {
				ctx = authed
			} else {
				a.logger.DebugContext(ctx, "optional auth ignored token", "error", err,
					"request_id", requestcontext.RequestID(ctx))
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission wraps RequireAuth with a permission check.
func (a *Authenticator) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				httputil.WriteOAuthError(w, http.StatusUnauthorized, dErrors.CodeUnauthorized, "User not authenticated")
				return
			}
			if !p.HasPermission(permission) {
				httputil.WriteOAuthError(w, http.StatusForbidden, dErrors.CodeForbidden,
					fmt.Sprintf("Permission '%s' is required", permission))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// RequireRole wraps RequireAuth with a role check.
func (a *Authenticator) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				httputil.WriteOAuthError(w, http.StatusUnauthorized, dErrors.CodeUnauthorized, "User not authenticated")
				return
			}
			if !p.HasRole(role) {
				httputil.WriteOAuthError(w, http.StatusForbidden, dErrors.CodeForbidden,
					fmt.Sprintf("Role '%s' is required", role))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func (a *Authenticator) authenticate(ctx context.Context, token string) (context.Context, error) {
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		return ctx, dErrors.Wrap(err, dErrors.CodeInvalidToken, "Token is expired or invalid")
	}
	if a.revocations != nil && claims.JTI != "" {
		revoked, err := a.revocations.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return ctx, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "Token revocation status is unavailable")
		}
		if revoked {
			return ctx, dErrors.New(dErrors.CodeInvalidToken, "Token has been revoked")
		}
	}
	p, err := a.principals.FindPrincipal(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ctx, dErrors.Wrap(err, dErrors.CodeInvalidToken, "User not found")
		}
		return ctx, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve token subject")
	}
	return WithPrincipal(ctx, claims, p), nil
}

func (a *Authenticator) writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		a.logger.ErrorContext(ctx, "authentication middleware error", "error", err, "request_id", requestID)
	} else {
		a.logger.WarnContext(ctx, "unauthorized access", "error", err, "request_id", requestID)
	}
	httputil.WriteError(w, err)
}

// ExtractBearerToken returns the token of a "Bearer <token>" header.
func ExtractBearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
