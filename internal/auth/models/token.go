package models

import (
	"strings"
	"time"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// OAuth scopes granted to dashboard sessions.
const (
	ScopeReadAccounts      = "read:accounts"
	ScopeWriteTransfers    = "write:transfers"
	ScopeReadTransactions  = "read:transactions"
	ScopeWriteTransactions = "write:transactions"
	ScopeReadProfile       = "read:profile"
	ScopeWriteProfile      = "write:profile"
)

// AllScopes is the space-separated scope string attached to every token pair.
var AllScopes = strings.Join([]string{
	ScopeReadAccounts,
	ScopeWriteTransfers,
	ScopeReadTransactions,
	ScopeWriteTransactions,
	ScopeReadProfile,
	ScopeWriteProfile,
}, " ")

// TokenPair is the OAuth2 token response body.
// Invariant: the access token's exp claim equals its iat claim plus ExpiresIn.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`

	// ExpiresAt is the access token's exp claim, known only where the pair was issued.
	ExpiresAt time.Time `json:"-"`
}

// RefreshTokenRecord binds an issued refresh token to its user on the server.
type RefreshTokenRecord struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// Device is a display label such as "Chrome on Mac OS X".
	Device      string `json:"device,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// IsExpired reports whether the record can no longer be exchanged at now.
func (r *RefreshTokenRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
