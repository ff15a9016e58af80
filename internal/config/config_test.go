package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 300, cfg.Catalog.CacheTTLSecs)
	assert.Empty(t, cfg.Catalog.Path)
	assert.Equal(t, 60, cfg.Executor.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.Executor.RateLimit, 0.001)
	assert.Equal(t, 5, cfg.Executor.Burst)
	assert.Equal(t, 5, cfg.Executor.CircuitFailureThreshold)
	assert.Equal(t, 30, cfg.Executor.CircuitResetSecs)
	assert.Equal(t, 60, cfg.Discovery.TestTimeoutSecs)
	assert.True(t, cfg.Discovery.LockEntries)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: ./console.db
log:
  level: debug
  format: console
server:
  port: 9090
catalog:
  path: catalog.yaml
executor:
  base_url: http://executor:8000
  credentials:
    omim: omim-token
discovery:
  lock_entries: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "./console.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "catalog.yaml", cfg.Catalog.Path)
	assert.Equal(t, "http://executor:8000", cfg.Executor.BaseURL)
	assert.Equal(t, "omim-token", cfg.Executor.Credentials["omim"])
	assert.False(t, cfg.Discovery.LockEntries)
	// Defaults still apply for unset values
	assert.Equal(t, 60, cfg.Discovery.TestTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("CONSOLE_STORE_DRIVER", "postgres")
	t.Setenv("CONSOLE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CONSOLE_SERVER_PORT", "3000")
	t.Setenv("CONSOLE_DISCOVERY_TEST_TIMEOUT_SECS", "15")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Discovery.TestTimeoutSecs)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/console"
	cfg.Server.Port = 8080
	cfg.Executor.BaseURL = "http://executor:8000"
	cfg.Executor.RateLimit = 5
	cfg.Discovery.TestTimeoutSecs = 60
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "executor.base_url is required")
	assert.Contains(t, err.Error(), "test_timeout_secs must be between 1 and 600")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 70000

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateDiscover(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate("discover"))

	cfg.Executor.RateLimit = 0
	err := cfg.Validate("discover")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "executor.rate_limit")
}

func TestValidateCatalog(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "console.db"
	assert.NoError(t, cfg.Validate("catalog"))

	cfg.Catalog.CacheTTLSecs = -1
	assert.Error(t, cfg.Validate("catalog"))
}

func TestValidateStatus_NeedsOnlyStore(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "console.db"
	assert.NoError(t, cfg.Validate("status"))

	cfg.Store.DatabaseURL = ""
	assert.Error(t, cfg.Validate("status"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
