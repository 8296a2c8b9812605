// Package requestid assigns each HTTP request a correlation identifier,
// honoring one supplied by the caller. Logs, audit events, and the response
// header all carry the same ID.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"governor/pkg/requestcontext"
)

// Header is the request and response header carrying the correlation ID.
const Header = "X-Request-ID"

// Middleware reads the caller-supplied request ID or mints one, stores it in
// the context, and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
