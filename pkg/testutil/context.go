package testutil

import (
	"net/http"

	"credence/internal/platform/middleware"
	id "credence/pkg/domain"
)

// WithSubject adds an authenticated subject to the request context.
// This simulates what the auth middleware would do for authenticated
// requests. Invalid IDs are silently ignored.
func WithSubject(req *http.Request, subject string) *http.Request {
	if parsed, err := id.ParseSubjectID(subject); err == nil {
		return req.WithContext(middleware.WithSubject(req.Context(), parsed))
	}
	return req
}

// WithSubjectID adds an already-parsed subject to the request context.
func WithSubjectID(req *http.Request, subject id.SubjectID) *http.Request {
	return req.WithContext(middleware.WithSubject(req.Context(), subject))
}

// WithRequestID adds a correlation ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(middleware.WithRequestID(req.Context(), requestID))
}
