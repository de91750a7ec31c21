package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/spaauth/pkg/authsdk"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SPAAUTH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SPAAUTH_BASE_URL", "https://id.example.com")
	t.Setenv("SPAAUTH_CLIENT_ID", "cli")

	cfg := LoadConfig()
	require.Equal(t, "https://id.example.com", cfg.BaseURL)
	require.Equal(t, "cli", cfg.ClientID)
	require.Equal(t, "http://127.0.0.1:8085/callback", cfg.RedirectURL)
	require.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	require.Equal(t, "memory", cfg.Storage)
	require.Equal(t, time.Minute, cfg.ClockTolerance)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.False(t, cfg.RateLimit.Enabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SPAAUTH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SPAAUTH_STORAGE", "sqlite")
	t.Setenv("SPAAUTH_INSTANCE_ID", "4")
	t.Setenv("SPAAUTH_CLOCK_TOLERANCE", "30")
	t.Setenv("SPAAUTH_HTTP_TIMEOUT", "2s")
	t.Setenv("SPAAUTH_SCOPES", "openid offline_access")
	t.Setenv("SPAAUTH_RESOURCE_SERVERS", "https://api.example.com https://files.example.com")
	t.Setenv("RATELIMIT_SPAAUTH_REQUESTS", "10")
	t.Setenv("RATELIMIT_SPAAUTH_WINDOW_SEC", "1")

	cfg := LoadConfig()
	require.Equal(t, "sqlite", cfg.Storage)
	require.Equal(t, 4, cfg.InstanceID)
	require.Equal(t, 30*time.Second, cfg.ClockTolerance)
	require.Equal(t, 2*time.Second, cfg.HTTPTimeout)
	require.Equal(t, []string{"openid", "offline_access"}, cfg.Scopes)
	require.Equal(t, []string{"https://api.example.com", "https://files.example.com"}, cfg.ResourceServers)
	require.True(t, cfg.RateLimit.Enabled())

	sdk := cfg.SDKConfig()
	require.Equal(t, authsdk.StorageSQLite, sdk.Storage)
	require.Equal(t, cfg.ResourceServers, sdk.ResourceServerURLs)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SPAAUTH_PROBE_URL=https://api.example.com/me\n"), 0o600))
	t.Setenv("SPAAUTH_ENV_FILE", envFile)
	t.Cleanup(func() { _ = os.Unsetenv("SPAAUTH_PROBE_URL") })

	cfg := LoadConfig()
	require.Equal(t, "https://api.example.com/me", cfg.ProbeURL)
}
