package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/abacus/internal/config"
)

// noDotEnv points Load at a file that does not exist so a developer's .env
// cannot leak into the test.
func noDotEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.Options{DotEnv: noDotEnv(t)})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, config.BackendSQLite, cfg.Backend)
	assert.Equal(t, "./data/abacus.db", cfg.DBPath)
	assert.Equal(t, "localhost:9090", cfg.RemoteAddr)
	assert.Equal(t, 12, cfg.Precision)
	assert.Equal(t, 64, cfg.RecorderBuffer)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBackoff)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ABACUS_BACKEND", "Memory")
	t.Setenv("ABACUS_PRECISION", "8")
	t.Setenv("ABACUS_RECONNECT_BACKOFF_MS", "50")
	t.Setenv("ABACUS_ENV", "staging")

	cfg, err := config.Load(config.Options{DotEnv: noDotEnv(t)})
	require.NoError(t, err)

	assert.Equal(t, config.BackendMemory, cfg.Backend)
	assert.Equal(t, 8, cfg.Precision)
	assert.Equal(t, 50*time.Millisecond, cfg.ReconnectBackoff)
	assert.Equal(t, "dev", cfg.Env, "unknown env falls back to dev")
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("ABACUS_PRECISION", "lots")
	t.Setenv("ABACUS_RECORDER_BUFFER", "-3")

	cfg, err := config.Load(config.Options{DotEnv: noDotEnv(t)})
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Precision)
	assert.Equal(t, 64, cfg.RecorderBuffer)
}

func TestLoad_FileThenEnvThenOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abacus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backend: remote\nremote_addr: calc.internal:9090\ndb_path: /var/lib/abacus.db\nhttp_addr: \":7000\"\n",
	), 0o600))

	t.Setenv("ABACUS_REMOTE_ADDR", "env.internal:9090")

	cfg, err := config.Load(config.Options{
		ConfigFile: path,
		DotEnv:     noDotEnv(t),
		Overrides:  map[string]any{config.KeyDBPath: "/tmp/override.db"},
	})
	require.NoError(t, err)

	assert.Equal(t, config.BackendRemote, cfg.Backend)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "env.internal:9090", cfg.RemoteAddr)
	assert.Equal(t, "/tmp/override.db", cfg.DBPath)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := config.Load(config.Options{
		ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"),
		DotEnv:     noDotEnv(t),
	})
	assert.Error(t, err)
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("ABACUS_BACKEND", "firestore")

	_, err := config.Load(config.Options{DotEnv: noDotEnv(t)})
	assert.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "ABACUS_GRPC_ADDR"
	prev, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})

	dotEnv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotEnv, []byte(key+"=:9999\n"), 0o600))

	cfg, err := config.Load(config.Options{DotEnv: dotEnv})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.GRPCAddr)
}
