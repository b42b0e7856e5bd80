package models

import (
	"strings"

	dErrors "teller/pkg/domain-errors"
)

// GrantType enumerates the OAuth grants served by the token endpoints.
type GrantType string

const (
	GrantPassword     GrantType = "password"
	GrantRefreshToken GrantType = "refresh_token"
)

// Token type hints accepted by the revocation endpoint.
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	GrantType    string `json:"grant_type,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Normalize defaults the grant type. Credentials are matched exactly, so
// neither the email nor the password is trimmed.
func (r *LoginRequest) Normalize() {
	if r.GrantType == "" {
		r.GrantType = string(GrantPassword)
	}
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "Email and password are required")
	}
	if r.GrantType != string(GrantPassword) {
		return dErrors.New(dErrors.CodeUnsupportedGrantType, "Only password grant type is supported")
	}
	return nil
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	GrantType    string `json:"grant_type,omitempty"`
}

func (r *RefreshRequest) Normalize() {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	if r.GrantType == "" {
		r.GrantType = string(GrantRefreshToken)
	}
}

func (r *RefreshRequest) Validate() error {
	if r.RefreshToken == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "Refresh token is required")
	}
	if r.GrantType != string(GrantRefreshToken) {
		return dErrors.New(dErrors.CodeUnsupportedGrantType, "Only refresh_token grant type is supported")
	}
	return nil
}

// TokenRequest is the combined body of the generic token endpoint; which fields
// matter depends on GrantType.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type RevokeRequest struct {
	Token         string `json:"token"`
	TokenTypeHint string `json:"token_type_hint,omitempty"`
}

func (r *RevokeRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "Token is required")
	}
	switch r.TokenTypeHint {
	case "", TokenTypeHintAccessToken, TokenTypeHintRefreshToken:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidRequest, "Invalid token_type_hint")
	}
}
