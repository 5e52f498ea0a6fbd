// Package security holds device keys, the HMAC packet authenticator and the
// entry gate that admits packets into routing.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"unicode/utf8"

	dErrors "eeia/pkg/domain-errors"
)

// AlgorithmHS256 is the only supported signing algorithm.
const AlgorithmHS256 = "HS256"

// DeviceKey is a symmetric key bound to one device. Secret is never logged or
// serialised.
type DeviceKey struct {
	DeviceID  string
	KeyID     string
	Secret    []byte `json:"-"`
	Algorithm string
	Active    bool
}

// NewDeviceKey builds an active HS256 key.
func NewDeviceKey(deviceID, keyID string, secret []byte) DeviceKey {
	return DeviceKey{
		DeviceID:  deviceID,
		KeyID:     keyID,
		Secret:    slices.Clone(secret),
		Algorithm: AlgorithmHS256,
		Active:    true,
	}
}

// Validate checks identifiers, secret presence and algorithm.
func (k DeviceKey) Validate() error {
	if n := utf8.RuneCountInString(k.DeviceID); n < 3 || n > 64 {
		return dErrors.New(dErrors.CodeValidation, "device_id must be 3-64 characters")
	}
	if k.KeyID == "" || utf8.RuneCountInString(k.KeyID) > 64 {
		return dErrors.New(dErrors.CodeValidation, "key_id must be 1-64 characters")
	}
	if len(k.Secret) == 0 {
		return dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	if k.Algorithm != AlgorithmHS256 {
		return dErrors.New(dErrors.CodeValidation, "unsupported algorithm: "+k.Algorithm)
	}
	return nil
}

func (k DeviceKey) String() string {
	return fmt.Sprintf("DeviceKey{device_id=%s key_id=%s algorithm=%s active=%t secret=REDACTED}",
		k.DeviceID, k.KeyID, k.Algorithm, k.Active)
}

func (k DeviceKey) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("device_id", k.DeviceID),
		slog.String("key_id", k.KeyID),
		slog.String("algorithm", k.Algorithm),
		slog.Bool("active", k.Active),
	)
}

func (k DeviceKey) clone() DeviceKey {
	k.Secret = slices.Clone(k.Secret)
	return k
}

// GenerateSecret creates a random 32-byte secret, base64url encoded so it can be
// handed to a device over a text channel.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// KeyRegistry resolves device keys.
//
// Revoke semantics depend on the implementation: MultiKeyStore hard-removes the
// key, SingleKeyStore flips it inactive.
type KeyRegistry interface {
	Register(key DeviceKey) error
	Lookup(deviceID, keyID string) (DeviceKey, bool)
	Revoke(deviceID, keyID string) bool
}

type keyRef struct {
	deviceID string
	keyID    string
}

// MultiKeyStore indexes keys by (device_id, key_id), so several keys can
// coexist per device during rotation.
type MultiKeyStore struct {
	mu   sync.RWMutex
	keys map[keyRef]DeviceKey
}

func NewMultiKeyStore() *MultiKeyStore {
	return &MultiKeyStore{keys: make(map[keyRef]DeviceKey)}
}

// Register inserts or replaces the key for its (device_id, key_id) pair.
func (s *MultiKeyStore) Register(key DeviceKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyRef{key.DeviceID, key.KeyID}] = key.clone()
	return nil
}

// Lookup returns the active key for the pair.
func (s *MultiKeyStore) Lookup(deviceID, keyID string) (DeviceKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[keyRef{deviceID, keyID}]
	if !ok || !key.Active {
		return DeviceKey{}, false
	}
	return key.clone(), true
}

// Remove deletes the key for the pair and reports whether it existed.
func (s *MultiKeyStore) Remove(deviceID, keyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := keyRef{deviceID, keyID}
	if _, ok := s.keys[ref]; !ok {
		return false
	}
	delete(s.keys, ref)
	return true
}

// Revoke hard-removes the key.
func (s *MultiKeyStore) Revoke(deviceID, keyID string) bool {
	return s.Remove(deviceID, keyID)
}

// SingleKeyStore keeps one key per device. Registering replaces it; Revoke
// keeps the key but marks it inactive.
type SingleKeyStore struct {
	mu   sync.RWMutex
	keys map[string]DeviceKey
}

func NewSingleKeyStore() *SingleKeyStore {
	return &SingleKeyStore{keys: make(map[string]DeviceKey)}
}

// Register replaces the device's key.
func (s *SingleKeyStore) Register(key DeviceKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.DeviceID] = key.clone()
	return nil
}

// Lookup returns the device's key when it is active and, if keyID is given,
// when the ids agree.
func (s *SingleKeyStore) Lookup(deviceID, keyID string) (DeviceKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[deviceID]
	if !ok || !key.Active {
		return DeviceKey{}, false
	}
	if keyID != "" && keyID != key.KeyID {
		return DeviceKey{}, false
	}
	return key.clone(), true
}

// ActiveKey returns the device's active key regardless of key id.
func (s *SingleKeyStore) ActiveKey(deviceID string) (DeviceKey, bool) {
	return s.Lookup(deviceID, "")
}

// RevokeDevice marks the device's key inactive.
func (s *SingleKeyStore) RevokeDevice(deviceID string) bool {
	return s.Revoke(deviceID, "")
}

// Revoke marks the device's key inactive. A non-empty keyID must match the
// stored key.
func (s *SingleKeyStore) Revoke(deviceID, keyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[deviceID]
	if !ok || (keyID != "" && key.KeyID != keyID) {
		return false
	}
	key.Active = false
	s.keys[deviceID] = key
	return true
}
