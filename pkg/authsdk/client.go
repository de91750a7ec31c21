package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/spaauth/internal/store"
	"github.com/aussiebroadwan/spaauth/internal/store/drivers/memory"
	"github.com/aussiebroadwan/spaauth/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/spaauth/pkg/httpx"
)

// expiryBuffer refreshes access tokens slightly before they expire.
const expiryBuffer = 30 * time.Second

// Client is an OIDC relying party for a single client registration. It
// holds at most one session, keyed by Config.InstanceID and ClientID in its
// store. All methods are safe for concurrent use.
type Client struct {
	mu sync.RWMutex
	rt *runtime

	// refreshMu serialises token refreshes so concurrent requests with an
	// expired token trigger a single refresh_token grant.
	refreshMu sync.Mutex

	hooks          *hookRegistry
	handlerEnabled atomic.Bool

	now func() time.Time
}

// runtime is everything derived from a Config. It is replaced as a whole by
// Initialize and UpdateConfig and never mutated afterwards.
type runtime struct {
	cfg       Config
	store     store.Store
	endpoints OIDCEndpoints
	oauth     *oauth2.Config
	verifier  *oidc.IDTokenVerifier
	logger    *slog.Logger

	// httpClient carries request ids, logging and rate limiting. apiClient
	// adds bearer injection on top and is what GetHTTPClient hands out.
	httpClient *http.Client
	apiClient  *http.Client
}

// New returns an uninitialized client. Call Initialize before anything else.
func New() *Client {
	c := &Client{
		hooks: newHookRegistry(),
		now:   time.Now,
	}
	c.handlerEnabled.Store(true)
	return c
}

// Initialize validates cfg, opens the session store and discovers the
// provider's endpoints. Calling it again replaces the previous
// configuration. It fires HookInitialize with true on success.
func (c *Client) Initialize(ctx context.Context, cfg Config) (bool, error) {
	if errs := cfg.Validate(); errs != nil {
		return false, &ConfigError{Fields: errs}
	}
	cfg = cfg.withDefaults()

	st, err := openStore(cfg)
	if err != nil {
		return false, err
	}

	rt, err := c.build(ctx, cfg, st)
	if err != nil {
		_ = st.Close()
		return false, err
	}

	c.mu.Lock()
	old := c.rt
	c.rt = rt
	c.mu.Unlock()

	if old != nil && old.store != st {
		_ = old.store.Close()
	}

	rt.logger.Info("authsdk_initialized",
		"issuer", rt.endpoints.Issuer,
		"client_id", cfg.ClientID,
		"storage", string(cfg.Storage),
	)
	c.hooks.fire(HookInitialize, true)
	return true, nil
}

// UpdateConfig merges patch into the current configuration. Changes to the
// provider or client registration trigger rediscovery; storage changes
// reopen the store. The session is kept unless the store changes.
func (c *Client) UpdateConfig(ctx context.Context, patch Config) error {
	cur, err := c.current()
	if err != nil {
		return err
	}

	next := cur.cfg
	next.Merge(patch)
	if errs := next.Validate(); errs != nil {
		return &ConfigError{Fields: errs}
	}
	next = next.withDefaults()

	st := cur.store
	if cur.cfg.needsNewStore(next) {
		if st, err = openStore(next); err != nil {
			return err
		}
	}

	var rt *runtime
	if cur.cfg.needsRediscovery(next) {
		rt, err = c.build(ctx, next, st)
		if err != nil {
			if st != cur.store {
				_ = st.Close()
			}
			return err
		}
	} else {
		copied := *cur
		copied.cfg = next
		copied.store = st
		copied.oauth = c.oauthConfig(next, cur.endpoints)
		copied.apiClient = c.apiHTTPClient(next, cur.httpClient)
		rt = &copied
	}

	c.mu.Lock()
	c.rt = rt
	c.mu.Unlock()

	if st != cur.store {
		_ = cur.store.Close()
	}
	rt.logger.Info("authsdk_config_updated", "client_id", next.ClientID)
	return nil
}

// Close releases the session store.
func (c *Client) Close() error {
	c.mu.Lock()
	rt := c.rt
	c.rt = nil
	c.mu.Unlock()

	if rt == nil {
		return nil
	}
	return rt.store.Close()
}

// On registers cb for h, replacing any previous callback for the same hook.
// A nil cb removes the registration.
func (c *Client) On(h Hook, cb Callback) error {
	return c.hooks.set(h, cb)
}

// EnableHTTPHandler turns the HTTPRequest* hooks on. They are on by default.
func (c *Client) EnableHTTPHandler() bool {
	c.handlerEnabled.Store(true)
	return true
}

// DisableHTTPHandler stops HTTPRequest and HTTPRequestAll from firing the
// HTTPRequest* hooks.
func (c *Client) DisableHTTPHandler() bool {
	c.handlerEnabled.Store(false)
	return true
}

// GetOIDCServiceEndpoints returns the endpoints in use.
func (c *Client) GetOIDCServiceEndpoints() (OIDCEndpoints, error) {
	rt, err := c.current()
	if err != nil {
		return OIDCEndpoints{}, err
	}
	return rt.endpoints, nil
}

// GetHTTPClient returns a client that attaches the current access token to
// requests for the configured resource servers, refreshing it when needed.
// Requests go out unauthenticated while signed out.
func (c *Client) GetHTTPClient() (*http.Client, error) {
	rt, err := c.current()
	if err != nil {
		return nil, err
	}
	return rt.apiClient, nil
}

func (c *Client) current() (*runtime, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rt == nil {
		return nil, ErrNotInitialized
	}
	return c.rt, nil
}

// build discovers the provider and assembles a runtime for cfg on st.
func (c *Client) build(ctx context.Context, cfg Config, st store.Store) (*runtime, error) {
	logger := cfg.Logger.With("component", "authsdk")

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	httpClient := &http.Client{
		Transport: httpx.Chain(base.Transport,
			httpx.RequestID(logger),
			httpx.Logging(logger),
			httpx.RateLimit(cfg.RateLimit),
		),
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       cfg.HTTPTimeout,
	}

	endpoints, verifier, err := c.discover(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:        cfg,
		store:      st,
		endpoints:  endpoints,
		oauth:      c.oauthConfig(cfg, endpoints),
		verifier:   verifier,
		logger:     logger,
		httpClient: httpClient,
		apiClient:  c.apiHTTPClient(cfg, httpClient),
	}, nil
}

// discoveryDocument holds the metadata fields go-oidc does not expose
// directly.
type discoveryDocument struct {
	Revocation         string `json:"revocation_endpoint"`
	EndSession         string `json:"end_session_endpoint"`
	Introspection      string `json:"introspection_endpoint"`
	CheckSessionIframe string `json:"check_session_iframe"`
	JWKS               string `json:"jwks_uri"`
}

func (c *Client) discover(ctx context.Context, cfg Config, httpClient *http.Client) (OIDCEndpoints, *oidc.IDTokenVerifier, error) {
	verifierCfg := &oidc.Config{
		ClientID: cfg.ClientID,
		// Expiry is checked separately so ClockTolerance applies.
		SkipExpiryCheck: true,
		Now:             c.now,
	}

	if cfg.Endpoints.skipsDiscovery() {
		ep := cfg.Endpoints
		setString(&ep.Issuer, cfg.Issuer)
		keys := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), httpClient), ep.JWKS)
		return ep, oidc.NewVerifier(ep.Issuer, keys, verifierCfg), nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.Issuer)
	if err != nil {
		return OIDCEndpoints{}, nil, fmt.Errorf("discover %s: %w", cfg.Issuer, err)
	}

	var doc discoveryDocument
	if err := provider.Claims(&doc); err != nil {
		return OIDCEndpoints{}, nil, fmt.Errorf("decode discovery document: %w", err)
	}

	discovered := OIDCEndpoints{
		Issuer:             cfg.Issuer,
		Authorization:      provider.Endpoint().AuthURL,
		Token:              provider.Endpoint().TokenURL,
		UserInfo:           provider.UserInfoEndpoint(),
		JWKS:               doc.JWKS,
		Revocation:         doc.Revocation,
		EndSession:         doc.EndSession,
		Introspection:      doc.Introspection,
		CheckSessionIframe: doc.CheckSessionIframe,
	}
	ep := discovered.merge(cfg.Endpoints)

	return ep, provider.Verifier(verifierCfg), nil
}

func (c *Client) oauthConfig(cfg Config, ep OIDCEndpoints) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.SignInRedirectURL,
		Scopes:       cfg.scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  ep.Authorization,
			TokenURL: ep.Token,
		},
	}
}

func (c *Client) apiHTTPClient(cfg Config, httpClient *http.Client) *http.Client {
	return &http.Client{
		Transport: httpx.Chain(httpClient.Transport,
			httpx.Bearer(c.optionalToken, httpx.OriginAllowList(cfg.resourceOrigins()...)),
		),
		CheckRedirect: httpClient.CheckRedirect,
		Jar:           httpClient.Jar,
		Timeout:       httpClient.Timeout,
	}
}

// optionalToken is the bearer source for GetHTTPClient: signed out means no
// token rather than an error.
func (c *Client) optionalToken(ctx context.Context) (string, error) {
	tok, err := c.validToken(ctx)
	if errors.Is(err, ErrNotAuthenticated) {
		return "", nil
	}
	return tok, err
}

func openStore(cfg Config) (store.Store, error) {
	switch cfg.Storage {
	case StorageSQLite:
		st, err := sqlite.NewStore(cfg.DatabaseFile)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		if err := st.ApplyMigrations(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate session store: %w", err)
		}
		return st, nil
	default:
		return memory.NewStore(), nil
	}
}

// httpContext makes the oauth2 package use the client's transport stack.
func (rt *runtime) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, rt.httpClient)
}
