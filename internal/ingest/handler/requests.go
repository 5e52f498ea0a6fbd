package handler

import (
	"strings"

	"eeia/internal/ingest"
	dErrors "eeia/pkg/domain-errors"
)

// maxPacketBodyBytes bounds POST /v1/packets/route bodies.
const maxPacketBodyBytes = 16 << 20

// RegisterKeyRequest registers a device key. Secret may be omitted to have the
// server generate one.
type RegisterKeyRequest struct {
	DeviceID  string `json:"device_id"`
	KeyID     string `json:"key_id"`
	Secret    string `json:"secret,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
}

// Validate trims input and defaults the key id.
func (r *RegisterKeyRequest) Validate() error {
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.KeyID = strings.TrimSpace(r.KeyID)
	if r.DeviceID == "" {
		return dErrors.New(dErrors.CodeValidation, "device_id is required")
	}
	if r.KeyID == "" {
		r.KeyID = ingest.DefaultKeyID
	}
	return nil
}

func (r *RegisterKeyRequest) toRegistration() ingest.KeyRegistration {
	return ingest.KeyRegistration{
		DeviceID:  r.DeviceID,
		KeyID:     r.KeyID,
		Secret:    r.Secret,
		Algorithm: r.Algorithm,
	}
}
