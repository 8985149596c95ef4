// Package httputil centralizes JSON encoding and domain error translation so
// every handler produces the same envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "credence/pkg/domain-errors"
)

// WriteJSON encodes v with the given status. Encoding failures are
// unrecoverable at this point; the status line has already been sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
// Internal errors omit the description so storage details never leak to
// clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) && domainErr.Message != "" {
			body["error_description"] = domainErr.Message
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// Decode parses the JSON request body into T, writing the error response
// itself on failure. The bool result tells the handler whether to continue.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "malformed request body",
				"request_id", requestID, "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		var zero T
		return zero, false
	}
	return req, true
}
