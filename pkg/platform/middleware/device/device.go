// Package device lifts the device authentication headers into the request
// context so the entry gate never touches net/http.
package device

import (
	"net/http"
	"strings"

	"eeia/pkg/requestcontext"
)

// Header names sent by edge devices.
const (
	HeaderKeyID     = "X-EEIA-Key-Id"
	HeaderSignature = "X-EEIA-Signature"
)

// Credentials copies the key id and signature headers into the context.
// Missing headers become empty strings; the gate decides whether that is fatal.
func Credentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyID := strings.TrimSpace(r.Header.Get(HeaderKeyID))
		sig := strings.TrimSpace(r.Header.Get(HeaderSignature))
		ctx := requestcontext.WithDeviceCredentials(r.Context(), keyID, sig)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
