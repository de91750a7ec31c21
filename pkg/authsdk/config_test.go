package authsdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		BaseURL:           "https://id.example.com/",
		ClientID:          "spa",
		SignInRedirectURL: "http://127.0.0.1:8085/callback",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing client id", func(c *Config) { c.ClientID = " " }, "client_id"},
		{"relative base url", func(c *Config) { c.BaseURL = "/idp" }, "base_url"},
		{"missing redirect", func(c *Config) { c.SignInRedirectURL = "" }, "sign_in_redirect_url"},
		{"bad sign out redirect", func(c *Config) { c.SignOutRedirectURL = "ftp://x" }, "sign_out_redirect_url"},
		{"unknown storage", func(c *Config) { c.Storage = "floppy" }, "storage"},
		{"negative tolerance", func(c *Config) { c.ClockTolerance = -time.Second }, "clock_tolerance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(&cfg)

			errs := cfg.Validate()
			require.Contains(t, errs, tt.field)
		})
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		require.Nil(t, validConfig().Validate())
	})

	t.Run("explicit endpoints replace base url", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.BaseURL = ""
		cfg.Issuer = "https://id.example.com"
		cfg.Endpoints = OIDCEndpoints{
			Authorization: "https://id.example.com/authorize",
			Token:         "https://id.example.com/token",
			JWKS:          "https://id.example.com/jwks",
		}
		require.Nil(t, cfg.Validate())
	})
}

func TestConfigMerge(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Scopes = []string{"profile"}
	cfg.Endpoints.Revocation = "https://id.example.com/revoke"

	cfg.Merge(Config{
		ClientSecret: "s3cret",
		Scopes:       []string{"email"},
		InstanceID:   3,
		DisablePKCE:  true,
		Endpoints:    OIDCEndpoints{EndSession: "https://id.example.com/logout"},
	})

	require.Equal(t, "spa", cfg.ClientID)
	require.Equal(t, "s3cret", cfg.ClientSecret)
	require.Equal(t, []string{"email"}, cfg.Scopes)
	require.Equal(t, 3, cfg.InstanceID)
	require.True(t, cfg.DisablePKCE)
	require.Equal(t, "https://id.example.com/revoke", cfg.Endpoints.Revocation)
	require.Equal(t, "https://id.example.com/logout", cfg.Endpoints.EndSession)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig().withDefaults()
	require.Equal(t, "https://id.example.com", cfg.BaseURL)
	require.Equal(t, cfg.BaseURL, cfg.Issuer)
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, defaultHTTPTimeout, cfg.HTTPTimeout)
	require.NotNil(t, cfg.Logger)
	require.Equal(t, "instance_0-spa", cfg.sessionKey())

	sqliteCfg := validConfig()
	sqliteCfg.Storage = StorageSQLite
	require.Equal(t, defaultDatabaseFile, sqliteCfg.withDefaults().DatabaseFile)
}

func TestConfigScopes(t *testing.T) {
	t.Parallel()

	cfg := Config{Scopes: []string{"profile", "openid", " ", "email", "profile"}}
	require.Equal(t, []string{"openid", "profile", "email"}, cfg.scopes())
	require.Equal(t, []string{"openid", "profile", "email", "internal_login"}, cfg.scopes("internal_login"))
}

func TestConfigResourceOrigins(t *testing.T) {
	t.Parallel()

	cfg := validConfig().withDefaults()
	require.Nil(t, cfg.resourceOrigins())

	cfg.ResourceServerURLs = []string{"https://api.example.com"}
	require.Equal(t, []string{"https://id.example.com", "https://api.example.com"}, cfg.resourceOrigins())
}
