package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key for the per-request correlation id.
const RequestIDKey contextKey = "request_id"

// RequestIDMiddleware tags every request with a correlation id. An
// inbound X-Request-ID is honored so the id survives proxy hops;
// otherwise a fresh uuid is minted. The id is echoed on the response
// and recorded on the audit row's completion log entry.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation id from ctx, or "" outside a
// RequestIDMiddleware-wrapped request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
