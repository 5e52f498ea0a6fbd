// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and the ingest pipeline read them
// without importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	keyIDKey       struct{}
	signatureKey   struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyKeyID       = keyIDKey{}
	ContextKeySignature   = signatureKey{}
)

// RequestID retrieves the request ID (also used as the trace id) from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// DeviceCredentials returns the key id and signature presented by the device.
// Either may be empty.
func DeviceCredentials(ctx context.Context) (keyID, signature string) {
	keyID, _ = ctx.Value(ContextKeyKeyID).(string)
	signature, _ = ctx.Value(ContextKeySignature).(string)
	return keyID, signature
}

// WithDeviceCredentials injects the device's key id and signature headers.
func WithDeviceCredentials(ctx context.Context, keyID, signature string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyKeyID, keyID)
	return context.WithValue(ctx, ContextKeySignature, signature)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
