package models

import "time"

// Session is the single persisted authentication artifact on the client.
// ExpiresAt is an absolute epoch-millisecond deadline matching the access token
// expiry at creation time.
type Session struct {
	User      *User      `json:"user"`
	Token     *TokenPair `json:"token"`
	ExpiresAt int64      `json:"expiresAt"`
}

// NewSession builds a session that expires with the access token. A pair that
// came over the wire has no exp, so now plus ExpiresIn stands in for it.
func NewSession(user *User, token *TokenPair, now time.Time) *Session {
	expiresAt := token.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt.UnixMilli()}
}

// Valid reports whether the session is still usable at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.UnixMilli() < s.ExpiresAt
}

// Complete reports whether the session carries both a user and a token.
func (s *Session) Complete() bool {
	return s != nil && s.User != nil && s.Token != nil
}
