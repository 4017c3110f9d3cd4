package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds one whole pipeline run. The deadline travels
// on the request context; normalize, handle, refine and send operations
// observe it cooperatively through ctx.Done, so a stuck webhook or
// handler releases the request at the deadline rather than never.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
