package domain

import (
	"unicode/utf8"

	dErrors "eeia/pkg/domain-errors"
)

// Device is a registered edge device. Devices are mutable: re-registration
// replaces their attributes, and they are never hard-deleted.
type Device struct {
	DeviceID    string         `json:"device_id"`
	Environment Environment    `json:"environment"`
	Domain      Domain         `json:"domain"`
	DisplayName string         `json:"display_name,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate checks field bounds and enum membership, defaulting Domain to other.
func (d *Device) Validate() error {
	if d == nil {
		return dErrors.New(dErrors.CodeBadRequest, "device is required")
	}
	if err := validateDeviceID(d.DeviceID); err != nil {
		return err
	}
	if utf8.RuneCountInString(d.DisplayName) > 128 {
		return dErrors.New(dErrors.CodeValidation, "display_name must be at most 128 characters")
	}
	if d.Domain == "" {
		d.Domain = DomainOther
	}
	if !d.Environment.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid environment: "+d.Environment.String())
	}
	if !d.Domain.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid domain: "+d.Domain.String())
	}
	return nil
}
