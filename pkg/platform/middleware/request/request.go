// Package request stamps every request with a correlation ID and a single "now"
// so logs and expiry checks within one request agree with each other.
package request

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"teller/pkg/requestcontext"
)

// HeaderRequestID is echoed back to the caller.
const HeaderRequestID = "X-Request-ID"

// Middleware reuses an inbound X-Request-ID or mints one, and pins request time.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
