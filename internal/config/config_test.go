package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing-on-purpose.yaml"))
	require.Error(t, err) // explicit paths must exist

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 5*time.Minute, cfg.Streams.TTL)
	require.Equal(t, time.Minute, cfg.Streams.SweepInterval)
	require.Equal(t, "echo", cfg.Providers.Default)
	require.False(t, cfg.Redis.Enabled)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
streams:
  ttl: 10s
  sweep_interval: 2s
providers:
  default: scripted
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Streams.TTL)
	require.Equal(t, 2*time.Second, cfg.Streams.SweepInterval)
	require.Equal(t, "scripted", cfg.Providers.Default)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0o600))
	t.Setenv("SANGPT_SERVER__ADDR", ":7777")
	t.Setenv("SANGPT_STREAMS__SWEEP_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Server.Addr)
	require.Equal(t, 30*time.Second, cfg.Streams.SweepInterval)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Streams.TTL = 0
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Server.Addr = " "
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Redis.Enabled = true
	bad.Redis.Addr = ""
	require.Error(t, bad.Validate())
}
