// Package requesttime pins a single "now" per HTTP request so the ledger,
// retention store, cache, and audit events all agree on a timestamp.
package requesttime

import (
	"net/http"
	"time"

	"governor/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and
// stores it in the context for consistent time references throughout the
// request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
