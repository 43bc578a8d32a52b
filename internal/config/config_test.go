package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/hamasa-api/v1", cfg.Server.BasePath)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, 365*24*time.Hour, cfg.Auth.ServiceTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Contains(t, cfg.Seed.MediaCategories, "Radio")
	assert.Len(t, cfg.Seed.ReportTimes, 5)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("auth:\n  access_token_ttl: 10m\nlog:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTokenTTL)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.BasePath = "api"
	cfg.OTP.Length = 2
	cfg.SMS.Provider = "beem"
	cfg.SMS.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.base_path")
	assert.Contains(t, err.Error(), "otp.length")
	assert.Contains(t, err.Error(), "beem provider")
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	_, err := FromYAML([]byte("auth: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hamasa.yml"), []byte("server:\n  addr: 0.0.0.0:9000\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
}
