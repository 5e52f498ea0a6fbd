package security

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eeia/internal/domain"
	dErrors "eeia/pkg/domain-errors"
)

// Verification failure reasons.
const (
	ReasonUnknownDeviceOrKey = "unknown_device_or_key"
	ReasonSignatureMismatch  = "signature_mismatch"
)

const fieldSeparator = '|'

// CanonicalBytes encodes the security-relevant packet fields in a fixed order:
//
//	packet_id|device_id|created_at|environment|domain|packet_type|priority|size_bytes|data|metadata
//
// Every field is a JSON value, so separators inside strings stay quoted. Maps
// are encoded with sorted keys at every depth, and created_at is RFC 3339 with
// nanoseconds in UTC.
func CanonicalBytes(pkt domain.Packet) ([]byte, error) {
	var buf bytes.Buffer
	fields := []any{
		pkt.ID(),
		pkt.DeviceID(),
		pkt.CreatedAt().UTC().Format(time.RFC3339Nano),
		string(pkt.Environment()),
		string(pkt.Domain()),
		string(pkt.Type()),
		string(pkt.Priority()),
	}
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(fieldSeparator)
		}
		if err := writeJSON(&buf, f); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(fieldSeparator)
	buf.WriteString(strconv.FormatInt(pkt.SizeBytes(), 10))
	for _, m := range []map[string]any{pkt.Data(), pkt.Metadata()} {
		buf.WriteByte(fieldSeparator)
		if err := writeJSON(&buf, m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// writeJSON appends v without HTML escaping or a trailing newline.
// encoding/json sorts map keys, which gives the stable map encoding.
func writeJSON(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "packet is not canonically encodable")
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// Sign returns the hex HMAC-SHA256 of the canonical packet encoding.
func Sign(pkt domain.Packet, key DeviceKey) (string, error) {
	method := jwt.GetSigningMethod(key.Algorithm)
	if method == nil || key.Algorithm != AlgorithmHS256 {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported algorithm: "+key.Algorithm)
	}
	msg, err := CanonicalBytes(pkt)
	if err != nil {
		return "", err
	}
	sig, err := method.Sign(string(msg), key.Secret)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "sign packet")
	}
	return hex.EncodeToString(sig), nil
}

// VerifyResult is the outcome of checking one signature.
type VerifyResult struct {
	OK     bool
	Reason string
}

// Authenticator verifies packet signatures against a key registry.
type Authenticator struct {
	keys KeyRegistry
}

// NewAuthenticator builds an authenticator over keys.
func NewAuthenticator(keys KeyRegistry) *Authenticator {
	return &Authenticator{keys: keys}
}

// Verify checks signature for pkt under the key registered as (deviceID, keyID).
// The comparison is constant time over the hex digests; hex case matters.
func (a *Authenticator) Verify(pkt domain.Packet, signature, deviceID, keyID string) VerifyResult {
	key, ok := a.keys.Lookup(deviceID, keyID)
	if !ok {
		return VerifyResult{Reason: ReasonUnknownDeviceOrKey}
	}
	return verifyWithKey(pkt, signature, key)
}

func verifyWithKey(pkt domain.Packet, signature string, key DeviceKey) VerifyResult {
	expected, err := Sign(pkt, key)
	if err != nil {
		return VerifyResult{Reason: ReasonSignatureMismatch}
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return VerifyResult{Reason: ReasonSignatureMismatch}
	}
	return VerifyResult{OK: true}
}
