package models

// AuthResponse is returned by the login, refresh and token endpoints. Session
// carries the full blob the client persists.
type AuthResponse struct {
	Success bool       `json:"success"`
	User    *User      `json:"user,omitempty"`
	Token   *TokenPair `json:"token,omitempty"`
	Session *Session   `json:"session,omitempty"`
	Message string     `json:"message,omitempty"`
}

// MessageResponse acknowledges logout and revocation.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SessionResponse reports whether the presented bearer token is still good.
type SessionResponse struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
	ExpiresAt     int64 `json:"expiresAt,omitempty"`
}
