// Package seed loads the initial policies and device keys from a YAML file.
//
//	policies:
//	  - policy_id: pol-medical-critical
//	    name: critical medical alerts
//	    match_domain: medical
//	    min_priority: critical
//	    target_endpoint: https://relay.example.net/ingest
//	keys:
//	  - device_id: dev-cardio-7
//	    key_id: default
//	    secret_env: EEIA_KEY_DEV_CARDIO_7
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"eeia/internal/domain"
	"eeia/internal/security"
)

// File is the parsed seed document.
type File struct {
	Policies []domain.PolicyDocument `yaml:"policies"`
	Keys     []KeyDocument           `yaml:"keys"`
}

// KeyDocument declares one device key. SecretEnv names an environment variable
// holding the secret and wins over Secret.
type KeyDocument struct {
	DeviceID  string `yaml:"device_id"`
	KeyID     string `yaml:"key_id"`
	Secret    string `yaml:"secret"`
	SecretEnv string `yaml:"secret_env"`
	Algorithm string `yaml:"algorithm"`
	Active    *bool  `yaml:"active"`
}

// Load reads and parses path. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document. An empty document is valid.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// PolicyList validates every policy and returns them in file order.
func (f *File) PolicyList() ([]domain.Policy, error) {
	out := make([]domain.Policy, 0, len(f.Policies))
	for i, doc := range f.Policies {
		p, err := doc.ToPolicy()
		if err != nil {
			return nil, fmt.Errorf("policy %d (%q): %w", i, doc.PolicyID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// KeyList resolves secrets through lookup (os.LookupEnv in production) and
// validates every key.
func (f *File) KeyList(lookup func(string) (string, bool)) ([]security.DeviceKey, error) {
	out := make([]security.DeviceKey, 0, len(f.Keys))
	for i, doc := range f.Keys {
		secret := doc.Secret
		if doc.SecretEnv != "" {
			v, ok := lookup(doc.SecretEnv)
			if !ok || v == "" {
				return nil, fmt.Errorf("key %d (%s/%s): environment variable %s is not set", i, doc.DeviceID, doc.KeyID, doc.SecretEnv)
			}
			secret = v
		}
		keyID := doc.KeyID
		if keyID == "" {
			keyID = "default"
		}
		key := security.NewDeviceKey(doc.DeviceID, keyID, []byte(secret))
		if doc.Algorithm != "" {
			key.Algorithm = doc.Algorithm
		}
		if doc.Active != nil {
			key.Active = *doc.Active
		}
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("key %d (%s/%s): %w", i, doc.DeviceID, keyID, err)
		}
		out = append(out, key)
	}
	return out, nil
}

// Apply loads the policies into policies and registers the keys.
func (f *File) Apply(upsert func(domain.Policy), keys security.KeyRegistry, lookup func(string) (string, bool)) error {
	policies, err := f.PolicyList()
	if err != nil {
		return err
	}
	deviceKeys, err := f.KeyList(lookup)
	if err != nil {
		return err
	}
	for _, p := range policies {
		upsert(p)
	}
	for _, k := range deviceKeys {
		if err := keys.Register(k); err != nil {
			return fmt.Errorf("register key %s/%s: %w", k.DeviceID, k.KeyID, err)
		}
	}
	return nil
}
