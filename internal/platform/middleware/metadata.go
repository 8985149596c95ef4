package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"credence/pkg/platform/audit"
)

type contextKeyClientIP struct{}

// ClientMetadata extracts the client IP and a parsed device description from
// the request and adds them to the context. Apply early in the chain; the
// device goes under the audit package's key so emitted events pick it up.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = context.WithValue(ctx, contextKeyClientIP{}, ClientIPFromRequest(r))
		ctx = audit.ContextWithDevice(ctx, ParseUserAgent(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// GetDevice retrieves the parsed device description from the context.
func GetDevice(ctx context.Context) string {
	return audit.DeviceFromContext(ctx)
}

// WithClientMetadata injects client IP and device description into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, device string) context.Context {
	ctx = context.WithValue(ctx, contextKeyClientIP{}, clientIP)
	return audit.ContextWithDevice(ctx, device)
}

// ParseUserAgent renders a user-agent string as "Browser on OS" for audit
// trails. Unknown agents still produce a non-empty description.
func ParseUserAgent(rawUserAgent string) string {
	if rawUserAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUserAgent)
	browser, _ := ua.Browser()
	os := ua.OS()
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}

// ClientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
