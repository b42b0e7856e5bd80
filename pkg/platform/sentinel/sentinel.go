package sentinel

import "errors"

// Facts reported by stores and storage backends. Services translate them into
// domain errors; nothing above the service layer should match on these.
var (
	// ErrNotFound: no user, refresh token or persisted key exists for the lookup.
	ErrNotFound = errors.New("not found")
	// ErrExpired: the record exists but its absolute expiry has passed.
	ErrExpired = errors.New("expired")
	// ErrUnavailable: the backing store is absent or not reachable.
	ErrUnavailable = errors.New("unavailable")
	// ErrCorrupt: persisted bytes could not be decoded.
	ErrCorrupt = errors.New("corrupt")
)
