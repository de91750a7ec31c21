package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/spaauth/pkg/authsdk"
	"github.com/aussiebroadwan/spaauth/pkg/httpx"
)

type Config struct {
	BaseURL            string        // Required: identity server root / issuer
	ClientID           string        // Required: registered client id
	ClientSecret       string        // Optional: only for confidential clients
	RedirectURL        string        // Optional: loopback callback (default: http://127.0.0.1:8085/callback)
	SignOutRedirectURL string        // Optional: post logout redirect
	Scopes             []string      // Optional: space separated (default: openid profile email)
	Storage            string        // Optional: memory, sqlite, isolated (default: memory)
	DatabaseFile       string        // Optional: sqlite session file (default: ./spaauth.db)
	InstanceID         int           // Optional: session namespace within the store (default: 0)
	ClockTolerance     time.Duration // Optional: ID token clock skew allowance (default: 1m)
	ResourceServers    []string      // Optional: origins allowed to receive the access token
	ProbeURL           string        // Optional: API called with the access token after sign in
	HTTPTimeout        time.Duration // Optional: outbound request timeout (default: 10s)
	RateLimit          httpx.RateLimitConfig

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: text)
	ShutdownGracePeriod time.Duration // Callback server shutdown timeout (default: 5s)
}

// LoadConfig reads the environment, after loading SPAAUTH_ENV_FILE
// (default: .env) when present. Variables already set win over the file.
func LoadConfig() Config {
	_ = godotenv.Load(getEnvOrDefault("SPAAUTH_ENV_FILE", ".env"))

	return Config{
		BaseURL:            os.Getenv("SPAAUTH_BASE_URL"),
		ClientID:           os.Getenv("SPAAUTH_CLIENT_ID"),
		ClientSecret:       os.Getenv("SPAAUTH_CLIENT_SECRET"),
		RedirectURL:        getEnvOrDefault("SPAAUTH_REDIRECT_URL", "http://127.0.0.1:8085/callback"),
		SignOutRedirectURL: os.Getenv("SPAAUTH_SIGN_OUT_REDIRECT_URL"),
		Scopes:             httpx.ParseSpaceDelimitedFields(getEnvOrDefault("SPAAUTH_SCOPES", "openid profile email")),
		Storage:            getEnvOrDefault("SPAAUTH_STORAGE", string(authsdk.StorageMemory)),
		DatabaseFile:       getEnvOrDefault("SPAAUTH_DATABASE_FILE", "spaauth.db"),
		InstanceID:         getEnvIntOrDefault("SPAAUTH_INSTANCE_ID", 0),
		ClockTolerance:     getEnvDurationOrDefault("SPAAUTH_CLOCK_TOLERANCE", time.Minute),
		ResourceServers:    httpx.ParseSpaceDelimitedFields(os.Getenv("SPAAUTH_RESOURCE_SERVERS")),
		ProbeURL:           os.Getenv("SPAAUTH_PROBE_URL"),
		HTTPTimeout:        getEnvDurationOrDefault("SPAAUTH_HTTP_TIMEOUT", 10*time.Second),
		RateLimit:          httpx.ParseRateLimitFromEnv("SPAAUTH", httpx.RateLimitConfig{}),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "text"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 5*time.Second),
	}
}

// SDKConfig maps the CLI config onto the client config.
func (c Config) SDKConfig() authsdk.Config {
	return authsdk.Config{
		BaseURL:            c.BaseURL,
		ClientID:           c.ClientID,
		ClientSecret:       c.ClientSecret,
		SignInRedirectURL:  c.RedirectURL,
		SignOutRedirectURL: c.SignOutRedirectURL,
		Scopes:             c.Scopes,
		Storage:            authsdk.StorageMode(c.Storage),
		DatabaseFile:       c.DatabaseFile,
		InstanceID:         c.InstanceID,
		ClockTolerance:     c.ClockTolerance,
		ResourceServerURLs: c.ResourceServers,
		HTTPTimeout:        c.HTTPTimeout,
		RateLimit:          c.RateLimit,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
