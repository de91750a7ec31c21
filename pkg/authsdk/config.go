package authsdk

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/spaauth/pkg/httpx"
)

// StorageMode selects where session data lives.
type StorageMode string

const (
	// StorageMemory keeps sessions in process memory (the default).
	StorageMemory StorageMode = "memory"

	// StorageSQLite persists sessions to DatabaseFile so a client stays
	// signed in across restarts.
	StorageSQLite StorageMode = "sqlite"

	// StorageIsolated keeps sessions in memory and never hands token
	// material to callers: GetAccessToken refuses, while HTTPRequest and the
	// client from GetHTTPClient still attach tokens internally.
	StorageIsolated StorageMode = "isolated"
)

const (
	ScopeOpenID = "openid"

	defaultDatabaseFile = "spaauth.db"
	defaultHTTPTimeout  = 10 * time.Second

	configRequiredReason = "required"
)

// Config describes the identity provider and this client's registration.
type Config struct {
	// BaseURL is the identity server root. It doubles as the issuer unless
	// Issuer is set.
	BaseURL string
	Issuer  string

	ClientID     string
	ClientSecret string // only for confidential clients

	SignInRedirectURL  string
	SignOutRedirectURL string

	// Scopes to request. "openid" is always added.
	Scopes []string

	Storage      StorageMode
	DatabaseFile string // sqlite storage only (default: ./spaauth.db)
	InstanceID   int    // separates sessions of several clients sharing a store

	DisablePKCE              bool
	DisableIDTokenValidation bool
	ClockTolerance           time.Duration

	// ResourceServerURLs restricts which origins receive the access token
	// from HTTPRequest and the GetHTTPClient client. Empty means every URL.
	ResourceServerURLs []string

	// Endpoints overrides discovered endpoints field by field. When
	// Authorization, Token and JWKS are all set discovery is skipped.
	Endpoints OIDCEndpoints

	HTTPClient  *http.Client // base client for every outbound call
	HTTPTimeout time.Duration
	RateLimit   httpx.RateLimitConfig

	Logger *slog.Logger
}

// Validate checks the config. Returns a map of field names to error
// messages, or nil if the config is usable.
func (c Config) Validate() map[string]string {
	errs := make(map[string]string)

	c.validateBaseURL(errs)
	c.validateRedirects(errs)
	c.validateStorage(errs)

	if strings.TrimSpace(c.ClientID) == "" {
		errs["client_id"] = configRequiredReason
	}

	if c.ClockTolerance < 0 {
		errs["clock_tolerance"] = "must not be negative"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (c Config) validateBaseURL(errs map[string]string) {
	if c.BaseURL == "" {
		if c.Endpoints.skipsDiscovery() && c.Issuer != "" {
			return
		}
		errs["base_url"] = configRequiredReason
		return
	}

	if !isAbsoluteURL(c.BaseURL) {
		errs["base_url"] = "must be an absolute http(s) URL"
	}
}

func (c Config) validateRedirects(errs map[string]string) {
	switch {
	case c.SignInRedirectURL == "":
		errs["sign_in_redirect_url"] = configRequiredReason
	case !isAbsoluteURL(c.SignInRedirectURL):
		errs["sign_in_redirect_url"] = "must be an absolute http(s) URL"
	}

	if c.SignOutRedirectURL != "" && !isAbsoluteURL(c.SignOutRedirectURL) {
		errs["sign_out_redirect_url"] = "must be an absolute http(s) URL"
	}
}

func (c Config) validateStorage(errs map[string]string) {
	switch c.Storage {
	case "", StorageMemory, StorageIsolated, StorageSQLite:
	default:
		errs["storage"] = "must be one of memory, sqlite, isolated"
	}
}

// Merge copies every non-zero field of patch over c. Boolean switches can
// only be turned on this way.
func (c *Config) Merge(patch Config) {
	setString(&c.BaseURL, patch.BaseURL)
	setString(&c.Issuer, patch.Issuer)
	setString(&c.ClientID, patch.ClientID)
	setString(&c.ClientSecret, patch.ClientSecret)
	setString(&c.SignInRedirectURL, patch.SignInRedirectURL)
	setString(&c.SignOutRedirectURL, patch.SignOutRedirectURL)
	setString(&c.DatabaseFile, patch.DatabaseFile)

	if patch.Storage != "" {
		c.Storage = patch.Storage
	}
	if patch.Scopes != nil {
		c.Scopes = slices.Clone(patch.Scopes)
	}
	if patch.ResourceServerURLs != nil {
		c.ResourceServerURLs = slices.Clone(patch.ResourceServerURLs)
	}
	if patch.InstanceID != 0 {
		c.InstanceID = patch.InstanceID
	}
	if patch.DisablePKCE {
		c.DisablePKCE = true
	}
	if patch.DisableIDTokenValidation {
		c.DisableIDTokenValidation = true
	}
	if patch.ClockTolerance != 0 {
		c.ClockTolerance = patch.ClockTolerance
	}
	if patch.HTTPClient != nil {
		c.HTTPClient = patch.HTTPClient
	}
	if patch.HTTPTimeout != 0 {
		c.HTTPTimeout = patch.HTTPTimeout
	}
	if patch.RateLimit.Enabled() {
		c.RateLimit = patch.RateLimit
	}
	if patch.Logger != nil {
		c.Logger = patch.Logger
	}
	c.Endpoints = c.Endpoints.merge(patch.Endpoints)
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Issuer == "" {
		c.Issuer = c.BaseURL
	}
	if c.Storage == "" {
		c.Storage = StorageMemory
	}
	if c.Storage == StorageSQLite && c.DatabaseFile == "" {
		c.DatabaseFile = defaultDatabaseFile
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// scopes returns the requested scopes with "openid" first and duplicates
// removed.
func (c Config) scopes(extra ...string) []string {
	out := []string{ScopeOpenID}
	for _, s := range slices.Concat(c.Scopes, extra) {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// resourceOrigins lists the origins that receive bearer tokens. Nil means
// no restriction.
func (c Config) resourceOrigins() []string {
	if len(c.ResourceServerURLs) == 0 {
		return nil
	}
	return append([]string{c.BaseURL}, c.ResourceServerURLs...)
}

// needsRediscovery reports whether moving from c to next changes anything
// discovery or the oauth2 config depends on.
func (c Config) needsRediscovery(next Config) bool {
	return c.BaseURL != next.BaseURL ||
		c.Issuer != next.Issuer ||
		c.ClientID != next.ClientID ||
		c.ClientSecret != next.ClientSecret ||
		c.SignInRedirectURL != next.SignInRedirectURL ||
		c.Endpoints != next.Endpoints ||
		c.HTTPClient != next.HTTPClient ||
		c.HTTPTimeout != next.HTTPTimeout ||
		c.RateLimit != next.RateLimit ||
		c.Logger != next.Logger ||
		!slices.Equal(c.Scopes, next.Scopes)
}

// needsNewStore reports whether the session store must be reopened.
func (c Config) needsNewStore(next Config) bool {
	return c.Storage != next.Storage || c.DatabaseFile != next.DatabaseFile
}

func (c Config) sessionKey() string {
	return "instance_" + strconv.Itoa(c.InstanceID) + "-" + c.ClientID
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
