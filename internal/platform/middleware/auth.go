package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "credence/pkg/domain"
)

// TokenValidator validates a bearer token and yields the caller's subject.
type TokenValidator interface {
	ExtractSubject(tokenString string) (id.SubjectID, error)
}

type contextKeySubject struct{}

// GetSubject retrieves the authenticated subject from the context.
// Returns NilSubject for unauthenticated requests.
func GetSubject(ctx context.Context) id.SubjectID {
	if subject, ok := ctx.Value(contextKeySubject{}).(id.SubjectID); ok {
		return subject
	}
	return id.NilSubject
}

// WithSubject injects an authenticated subject into a context.
// Useful for handler tests that don't run the full middleware chain.
func WithSubject(ctx context.Context, subject id.SubjectID) context.Context {
	return context.WithValue(ctx, contextKeySubject{}, subject)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's subject in the context for handlers.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access, missing token",
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			subject, err := validator.ExtractSubject(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid token",
					"error", err,
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(ctx, subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck
	w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
