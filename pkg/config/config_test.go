package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := LoadServerConfig(fs, nil)
	require.NoError(t, err)

	assert.EqualValues(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultAOFEnabled, cfg.AOFEnabled)
	assert.Equal(t, DefaultAOFPath, cfg.AOFPath)
	assert.Equal(t, DefaultMaxKeys, cfg.MaxKeys)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoadServerConfigFlagsOverrideDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := LoadServerConfig(fs, []string{"--port", "7000", "--threads", "8", "--aof-enabled=false"})
	require.NoError(t, err)

	assert.EqualValues(t, 7000, cfg.Port)
	assert.Equal(t, 8, cfg.Threads)
	assert.False(t, cfg.AOFEnabled)
}

func TestLoadServerConfigEnvOverridesDefaultsButNotFlags(t *testing.T) {
	t.Setenv("CACHEFORGE_PORT", "7001")
	t.Setenv("CACHEFORGE_LOG_LEVEL", "debug")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := LoadServerConfig(fs, []string{"--log-level", "error"})
	require.NoError(t, err)

	assert.EqualValues(t, 7001, cfg.Port, "env should override the default")
	assert.Equal(t, "error", cfg.LogLevel, "flag should override env")
}

func TestLoadServerConfigYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cacheforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9999\nmax_keys: 500\n"), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := LoadServerConfig(fs, []string{"--config", path})
	require.NoError(t, err)

	assert.EqualValues(t, 9999, cfg.Port)
	assert.Equal(t, 500, cfg.MaxKeys)
}

func TestLoadServerConfigFlagsOverrideYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cacheforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9999\nthreads: 2\n"), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := LoadServerConfig(fs, []string{"--config", path, "--port", "7100"})
	require.NoError(t, err)

	assert.EqualValues(t, 7100, cfg.Port, "explicit flag should beat the file")
	assert.Equal(t, 2, cfg.Threads, "file should still apply where no flag was set")
}

func TestLoadServerConfigRejectsInvalidLogLevel(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := LoadServerConfig(fs, []string{"--log-level", "verbose"})
	assert.Error(t, err)
}

func TestLoadServerConfigRejectsZeroPort(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := LoadServerConfig(fs, []string{"--port", "0"})
	assert.Error(t, err)
}

func TestServerConfigAddress(t *testing.T) {
	cfg := &ServerConfig{Port: 6380}
	assert.Equal(t, ":6380", cfg.Address())
}

func TestDefaultClientConfigIsValid(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.NoError(t, cfg.Validate())
}

func TestClientConfigValidateRejectsEmptyAddress(t *testing.T) {
	cfg := &ClientConfig{Address: "", ConnTimeoutSec: 5}
	assert.Error(t, cfg.Validate())
}
