package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation id threaded through
// logs, traces, and analytics events (read back out by internal/api's
// AuctionHandler and the asset/click proxies' analytics recording).
const RequestIDHeader = "X-Request-ID"

// WithRequestID ensures every request carries an X-Request-ID header,
// generating one with google/uuid when the caller didn't set it, and
// echoes it back on the response so a client can correlate its own logs.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
