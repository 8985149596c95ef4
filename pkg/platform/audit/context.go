package audit

import "context"

type ctxKeyRequestID struct{}
type ctxKeyDevice struct{}

// ContextWithRequestID binds the correlation ID that emitted events carry.
// The HTTP middleware sets it once per request.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, requestID)
}

// ContextWithDevice binds the caller's device description.
func ContextWithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ctxKeyDevice{}, device)
}

// RequestIDFromContext returns the bound correlation ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ctxKeyRequestID{}).(string); ok {
		return requestID
	}
	return ""
}

// DeviceFromContext returns the bound device description, or "".
func DeviceFromContext(ctx context.Context) string {
	if device, ok := ctx.Value(ctxKeyDevice{}).(string); ok {
		return device
	}
	return ""
}

// Stamp fills correlation fields the emitter left empty from the request
// context. Publishers call it so domain services never handle transport
// metadata themselves.
func Stamp(ctx context.Context, event *Event) {
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
	if event.Device == "" {
		event.Device = DeviceFromContext(ctx)
	}
}
