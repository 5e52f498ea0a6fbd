package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeia/internal/domain"
	"eeia/internal/policy"
	"eeia/internal/security"
)

const sample = `
policies:
  - policy_id: pol-medical-critical
    name: critical medical alerts
    match_domain: medical
    min_priority: critical
    target_endpoint: https://relay.example.net/ingest
    store_in_object_storage: true
  - policy_id: pol-orbit
    name: orbit hold
    match_environment: orbit
keys:
  - device_id: dev-cardio-7
    secret_env: TEST_CARDIO_SECRET
  - device_id: dev-pump-3
    key_id: k2
    secret: pump-secret
    active: false
`

func lookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestParseAndApply(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	policies, err := f.PolicyList()
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, "pol-medical-critical", policies[0].ID)
	assert.Equal(t, domain.PriorityCritical, policies[0].MinPriority)
	assert.True(t, policies[0].StoreInObjectStorage)
	assert.True(t, policies[1].StoreInTimeseries, "defaults apply to omitted flags")

	reg := policy.NewRegistry()
	keys := security.NewMultiKeyStore()
	require.NoError(t, f.Apply(reg.Upsert, keys, lookup(map[string]string{"TEST_CARDIO_SECRET": "s3cret"})))

	assert.Equal(t, 2, reg.Len())
	key, ok := keys.Lookup("dev-cardio-7", "default")
	require.True(t, ok)
	assert.Equal(t, []byte("s3cret"), key.Secret)
	_, ok = keys.Lookup("dev-pump-3", "k2")
	assert.False(t, ok, "inactive keys are registered but not resolvable")
}

func TestKeyListMissingEnv(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	_, err = f.KeyList(lookup(nil))
	assert.ErrorContains(t, err, "TEST_CARDIO_SECRET")
}

func TestParseErrors(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := Parse([]byte("policies:\n  - policy_id: pol-x\n    colour: red\n"))
		assert.Error(t, err)
	})

	t.Run("invalid policy", func(t *testing.T) {
		f, err := Parse([]byte("policies:\n  - policy_id: pol-x\n    name: bad domain\n    match_domain: mars\n"))
		require.NoError(t, err)
		_, err = f.PolicyList()
		assert.ErrorContains(t, err, "pol-x")
	})

	t.Run("empty document", func(t *testing.T) {
		f, err := Parse(nil)
		require.NoError(t, err)
		assert.Empty(t, f.Policies)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Keys, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
