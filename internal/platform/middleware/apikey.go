package middleware

import (
	"log/slog"
	"net/http"

	id "credence/pkg/domain"
)

// KeyAuthenticator verifies a machine caller's API key.
type KeyAuthenticator interface {
	Authenticate(fullKey string) (id.SubjectID, error)
}

// RequireAPIKey authenticates machine callers via the X-API-Key header. It
// stores the bound subject in the context the same way RequireAuth does, so
// handlers are agnostic to how the caller authenticated.
func RequireAPIKey(keys KeyAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fullKey := r.Header.Get("X-API-Key")
			if fullKey == "" {
				logger.WarnContext(ctx, "unauthorized access, missing api key",
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Missing X-API-Key header")
				return
			}

			subject, err := keys.Authenticate(fullKey)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid api key",
					"error", err,
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(ctx, subject)))
		})
	}
}
