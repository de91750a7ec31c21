// Package authsdktest runs an in-process OpenID Connect provider for tests
// of code built on authsdk.
package authsdktest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/spaauth/pkg/cryptox"
	"github.com/aussiebroadwan/spaauth/pkg/jwtx"
)

const (
	ClientID          = "spa-client"
	DefaultSubject    = "user-1"
	DefaultEmail      = "jane@example.org"
	DefaultName       = "Jane Doe"
	DefaultUsername   = "jane"
	DefaultScope      = "openid profile email"
	TokenExchangeType = "urn:ietf:params:oauth:grant-type:token-exchange"
)

// User is the identity the provider signs users in as.
type User struct {
	Subject  string
	Email    string
	Name     string
	Username string
}

// Provider is a minimal OIDC provider: discovery, authorize, token
// (authorization_code, refresh_token and any other grant type echoed back),
// revocation, end session, JWKS and a bearer protected /api/echo endpoint.
type Provider struct {
	Server *httptest.Server
	signer *jwtx.RS256Signer

	mu            sync.Mutex
	user          User
	accessTTL     time.Duration
	idTokenTTL    time.Duration
	codes         map[string]pendingCode
	accessTokens  map[string]bool
	refreshTokens map[string]bool
	revoked       []string
	grants        []url.Values
	failRevoke    bool
	sessionState  string
}

type pendingCode struct {
	clientID    string
	redirectURI string
	challenge   string
	nonce       string
	scope       string
}

// NewProvider starts a provider and stops it when the test ends.
func NewProvider(t *testing.T) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := jwtx.NewRS256Signer("test-key", key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	p := &Provider{
		signer: signer,
		user: User{
			Subject:  DefaultSubject,
			Email:    DefaultEmail,
			Name:     DefaultName,
			Username: DefaultUsername,
		},
		accessTTL:     time.Hour,
		idTokenTTL:    time.Hour,
		codes:         make(map[string]pendingCode),
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
		sessionState:  "session-state-1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("GET /authorize", p.handleAuthorize)
	mux.HandleFunc("POST /token", p.handleToken)
	mux.HandleFunc("POST /revoke", p.handleRevoke)
	mux.HandleFunc("GET /jwks", p.handleJWKS)
	mux.HandleFunc("GET /logout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/api/echo", p.handleEcho)
	mux.HandleFunc("/api/fail", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"teapot"}`, http.StatusTeapot)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// URL is the issuer.
func (p *Provider) URL() string { return p.Server.URL }

// SetUser changes who the next sign-in authenticates as.
func (p *Provider) SetUser(u User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// SetAccessTokenTTL changes the lifetime of access tokens issued from now on.
func (p *Provider) SetAccessTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTTL = d
}

// SetIDTokenTTL changes the lifetime of ID tokens issued from now on.
// Negative values issue already expired tokens.
func (p *Provider) SetIDTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenTTL = d
}

// FailRevocation makes the revocation endpoint answer invalid_request.
func (p *Provider) FailRevocation(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRevoke = fail
}

// Revoked returns the tokens revoked so far.
func (p *Provider) Revoked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// Grants returns the forms of every non-standard grant request received.
func (p *Provider) Grants() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.grants...)
}

// Authorize plays the user agent: it follows authURL and returns the code
// and session_state the provider redirects back with.
func (p *Provider) Authorize(t *testing.T, authURL string) (code, sessionState string) {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(authURL)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("authorize: status %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("authorize: bad redirect: %v", err)
	}
	return loc.Query().Get("code"), loc.Query().Get("session_state")
}

func (p *Provider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	base := p.Server.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"userinfo_endpoint":                     base + "/userinfo",
		"jwks_uri":                              base + "/jwks",
		"revocation_endpoint":                   base + "/revoke",
		"end_session_endpoint":                  base + "/logout",
		"introspection_endpoint":                base + "/introspect",
		"check_session_iframe":                  base + "/check-session",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *Provider) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.signer.PublicJWKS())
}

func (p *Provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") == "" || q.Get("redirect_uri") == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing parameters")
		return
	}

	code := mustToken()

	p.mu.Lock()
	p.codes[code] = pendingCode{
		clientID:    q.Get("client_id"),
		redirectURI: q.Get("redirect_uri"),
		challenge:   q.Get("code_challenge"),
		nonce:       q.Get("nonce"),
		scope:       q.Get("scope"),
	}
	sessionState := p.sessionState
	p.mu.Unlock()

	redirect, _ := url.Parse(q.Get("redirect_uri"))
	rq := redirect.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	rq.Set("session_state", sessionState)
	redirect.RawQuery = rq.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "bad form")
		return
	}

	clientID := r.PostForm.Get("client_id")
	if id, _, ok := r.BasicAuth(); ok {
		clientID = id
	}

	switch grant := r.PostForm.Get("grant_type"); grant {
	case "authorization_code":
		p.exchangeCode(w, r.PostForm, clientID)
	case "refresh_token":
		p.refresh(w, r.PostForm, clientID)
	case "":
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "grant_type required")
	default:
		p.customGrant(w, r, clientID)
	}
}

func (p *Provider) exchangeCode(w http.ResponseWriter, form url.Values, clientID string) {
	p.mu.Lock()
	pending, ok := p.codes[form.Get("code")]
	delete(p.codes, form.Get("code"))
	p.mu.Unlock()

	switch {
	case !ok:
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown code")
		return
	case pending.clientID != clientID:
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client mismatch")
		return
	case pending.redirectURI != form.Get("redirect_uri"):
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	case pending.challenge != "" && s256(form.Get("code_verifier")) != pending.challenge:
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "pkce verification failed")
		return
	}

	p.issue(w, clientID, pending.nonce, pending.scope, true)
}

func (p *Provider) refresh(w http.ResponseWriter, form url.Values, clientID string) {
	rt := form.Get("refresh_token")

	p.mu.Lock()
	ok := p.refreshTokens[rt]
	delete(p.refreshTokens, rt)
	p.mu.Unlock()

	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown refresh token")
		return
	}
	p.issue(w, clientID, "", DefaultScope, true)
}

// customGrant records the form. Token exchange grants issue a session,
// anything else gets the form echoed back as JSON.
func (p *Provider) customGrant(w http.ResponseWriter, r *http.Request, clientID string) {
	p.mu.Lock()
	p.grants = append(p.grants, r.PostForm)
	p.mu.Unlock()

	if r.PostForm.Get("grant_type") == TokenExchangeType {
		p.issue(w, clientID, "", DefaultScope, false)
		return
	}

	echo := make(map[string]any, len(r.PostForm)+1)
	for k := range r.PostForm {
		echo[k] = r.PostForm.Get(k)
	}
	echo["authorization"] = r.Header.Get("Authorization")
	writeJSON(w, http.StatusOK, echo)
}

func (p *Provider) issue(w http.ResponseWriter, clientID, nonce, scope string, withRefresh bool) {
	p.mu.Lock()
	user, accessTTL, idTTL := p.user, p.accessTTL, p.idTokenTTL
	p.mu.Unlock()

	now := time.Now()
	idToken, err := p.signer.Sign(&jwtx.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Server.URL,
			Subject:   user.Subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(idTTL)),
		},
		Nonce:    nonce,
		Email:    user.Email,
		Name:     user.Name,
		Username: user.Username,
	})
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	access := mustToken()
	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(accessTTL.Seconds()),
		"id_token":     idToken,
		"scope":        scope,
	}

	p.mu.Lock()
	p.accessTokens[access] = true
	if withRefresh {
		refresh := mustToken()
		p.refreshTokens[refresh] = true
		resp["refresh_token"] = refresh
	}
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (p *Provider) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "bad form")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failRevoke {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "revocation disabled")
		return
	}

	tok := r.PostForm.Get("token")
	delete(p.accessTokens, tok)
	p.revoked = append(p.revoked, tok)
	w.WriteHeader(http.StatusOK)
}

// handleEcho requires a live access token and echoes request details.
func (p *Provider) handleEcho(w http.ResponseWriter, r *http.Request) {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

	p.mu.Lock()
	live := ok && p.accessTokens[tok]
	p.mu.Unlock()

	if !live {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "missing or unknown token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"method":     r.Method,
		"path":       r.URL.Path,
		"token":      tok,
		"request_id": r.Header.Get("X-Request-ID"),
	})
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func mustToken() string {
	tok, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		panic(err)
	}
	return tok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}
