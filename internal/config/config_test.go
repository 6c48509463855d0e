package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, ":9100", cfg.Listeners.UDPAddr)
	assert.Equal(t, -10, cfg.Reputation.BanThreshold)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("OVERLAY_UDP_ADDR", "0.0.0.0:7000")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "listeners:\n  udp_addr: \"${OVERLAY_UDP_ADDR}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Listeners.UDPAddr)
}

func TestLoadExpandsEnvVarsWithDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "listeners:\n  udp_addr: \"${OVERLAY_UDP_ADDR_UNSET:127.0.0.1:9999}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Listeners.UDPAddr)
}

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listeners, cfg.Listeners)
}

func TestValidateRejectsPositiveBanThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reputation.BanThreshold = 5
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsZeroHalfLife(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reputation.HalfLife = 0
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml", "")
	assert.Error(t, err)
}
