package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	dErrors "teller/pkg/domain-errors"
)

// ErrorResponse is the OAuth-style envelope shared by every endpoint.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

const maxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into status + envelope. Messages of
// uncoded or internal errors are never echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	desc := dErrors.MessageOf(err)
	if code == dErrors.CodeInternal {
		desc = "Internal server error"
	}
	WriteJSON(w, StatusFor(code), ErrorResponse{Error: string(code), ErrorDescription: desc})
}

// WriteOAuthError writes an envelope without going through a domain error.
func WriteOAuthError(w http.ResponseWriter, status int, code dErrors.Code, desc string) {
	WriteJSON(w, status, ErrorResponse{Error: string(code), ErrorDescription: desc})
}

// DecodeJSON reads a bounded JSON body into dst. Empty or malformed bodies are
// reported as invalid_request.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return dErrors.New(dErrors.CodeInvalidRequest, "Request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return dErrors.New(dErrors.CodeInvalidRequest, "Request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeInvalidRequest, "Invalid JSON body")
	}
	return nil
}

// StatusFor maps a code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidRequest, dErrors.CodeUnsupportedGrantType:
		return http.StatusBadRequest
	case dErrors.CodeInvalidCredentials, dErrors.CodeInvalidToken, dErrors.CodeInvalidGrant, dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeStorageUnavailable, dErrors.CodeNetwork:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
