package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"credence/pkg/platform/audit"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns every request a correlation ID, honoring one supplied by
// an upstream proxy, and echoes it in the response. The ID is stored under
// the audit package's context key so emitted events pick it up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := audit.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the correlation ID from the context.
func GetRequestID(ctx context.Context) string {
	return audit.RequestIDFromContext(ctx)
}

// WithRequestID injects a correlation ID into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return audit.ContextWithRequestID(ctx, requestID)
}
