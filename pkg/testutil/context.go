package testutil

import (
	"context"
	"net/http"
	"time"

	"eeia/pkg/requestcontext"
)

// WithRequestID sets the request id as the RequestID middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithDeviceCredentials simulates the device credentials middleware.
func WithDeviceCredentials(req *http.Request, keyID, signature string) *http.Request {
	return req.WithContext(requestcontext.WithDeviceCredentials(req.Context(), keyID, signature))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
