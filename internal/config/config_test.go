package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/esbus/internal/transport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "esbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
identity: node-1
buses:
  - id: X
    locator: tcp://127.0.0.1:9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Role)
	assert.Equal(t, "./esbus-registry", cfg.Registry.Dir)
	assert.Equal(t, "./esbus-logs", cfg.Log.Dir)
	assert.Equal(t, 300, cfg.AwaitTimeoutSeconds)
}

func TestLoadRejectsMissingIdentity(t *testing.T) {
	path := writeConfig(t, `
buses:
  - id: X
    locator: tcp://127.0.0.1:9000
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNoBuses(t *testing.T) {
	path := writeConfig(t, `
identity: node-1
buses: []
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBusMissingLocator(t *testing.T) {
	path := writeConfig(t, `
identity: node-1
buses:
  - id: X
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNegativeTimeout(t *testing.T) {
	path := writeConfig(t, `
identity: node-1
await_timeout_seconds: -1
buses:
  - id: X
    locator: tcp://127.0.0.1:9000
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTransportRoleParsing(t *testing.T) {
	cfg := &Config{Role: "client"}
	role, err := cfg.TransportRole()
	require.NoError(t, err)
	assert.Equal(t, transport.RoleClient, role)

	cfg.Role = "bogus"
	_, err = cfg.TransportRole()
	assert.Error(t, err)
}

func TestLocatorsMap(t *testing.T) {
	cfg := &Config{Buses: []BusConfig{{ID: "X", Locator: "l1"}, {ID: "Y", Locator: "l2"}}}
	assert.Equal(t, map[string]string{"X": "l1", "Y": "l2"}, cfg.Locators())
}
