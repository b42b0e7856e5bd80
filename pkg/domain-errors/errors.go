// Package domainerrors carries the error taxonomy shared by services, stores and
// transport. Codes double as the OAuth-style "error" field written to clients, so
// the transport layer never has to invent its own vocabulary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeInvalidRequest covers malformed or incomplete request bodies.
	CodeInvalidRequest Code = "invalid_request"
	// CodeUnsupportedGrantType is returned for grant types the endpoint does not serve.
	CodeUnsupportedGrantType Code = "unsupported_grant_type"
	// CodeInvalidCredentials is deliberately generic so it cannot be used for account enumeration.
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeInvalidToken       Code = "invalid_token"
	CodeInvalidGrant       Code = "invalid_grant"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "insufficient_scope"
	CodeMethodNotAllowed   Code = "method_not_allowed"
	CodeRateLimited        Code = "rate_limit_exceeded"
	CodeNotFound           Code = "not_found"
	// CodeStorageUnavailable means the persistence backend is absent or unusable.
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeNetwork            Code = "network_error"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "server_error"
)

// Error is a coded domain error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, which lets tests use
// require.ErrorIs against a freshly built expectation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New builds a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, or a generic one for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "Internal server error"
}
