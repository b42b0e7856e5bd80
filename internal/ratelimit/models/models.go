package models

import "time"

// EndpointClass selects the policy and key prefix for a protected endpoint.
type EndpointClass string

const (
	ClassLogin   EndpointClass = "login"
	ClassRefresh EndpointClass = "refresh"
	ClassToken   EndpointClass = "token"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassLogin, ClassRefresh, ClassToken:
		return true
	}
	return false
}

// Policy is a fixed window: at most MaxRequests per Window per identifier.
type Policy struct {
	MaxRequests int
	Window      time.Duration
	// Message is returned as error_description when the limit is hit.
	Message string
}

// DefaultPolicies mirror the limits the dashboard endpoints have always applied.
func DefaultPolicies() map[EndpointClass]Policy {
	return map[EndpointClass]Policy{
		ClassLogin: {
			MaxRequests: 5,
			Window:      5 * time.Minute,
			Message:     "Too many login attempts. Please try again later.",
		},
		ClassRefresh: {
			MaxRequests: 10,
			Window:      time.Minute,
			Message:     "Too many refresh attempts. Please try again later.",
		},
		ClassToken: {
			MaxRequests: 10,
			Window:      time.Minute,
			Message:     "Too many token requests. Please try again later.",
		},
	}
}

// RateLimitRecord is one identifier's counter. Count never exceeds the policy
// maximum within a window; the window restarts at Count=1 once now > ResetAt.
type RateLimitRecord struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"resetAt"` // epoch ms
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// NewResult derives the caller-facing result from a record.
func NewResult(allowed bool, record RateLimitRecord, limit int, now time.Time) *RateLimitResult {
	resetAt := time.UnixMilli(record.ResetAt)
	result := &RateLimitResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(limit-record.Count, 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		retry := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
		result.RetryAfter = max(retry, 1)
	}
	return result
}
