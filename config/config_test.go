package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "filesystem", cfg.Storage.Driver)
	require.Equal(t, 5000, cfg.HTTP.Port)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  root: /data/registry
http:
  host: 127.0.0.1
  port: 6000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/registry", cfg.Storage.Root)
	require.Equal(t, "127.0.0.1:6000", cfg.HTTP.Addr())
}

func TestEnvironmentOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  root: /data/registry\n"), 0o644))

	t.Setenv("REGISTRY_STORAGE_ROOT", "/mnt/registry")
	t.Setenv("REGISTRY_AUTH_JWT_SECRET", "topsecret")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/mnt/registry", cfg.Storage.Root)
	require.Equal(t, "topsecret", cfg.Auth.JWTSecret)
}
