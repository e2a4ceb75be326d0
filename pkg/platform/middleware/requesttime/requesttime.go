// Package requesttime pins one "now" per HTTP request so every timestamp a
// request writes agrees.
package requesttime

import (
	"net/http"
	"time"

	"certflow/pkg/requestcontext"
)

// Middleware captures the clock at the start of the request.
func Middleware(clock func() time.Time) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
