package authsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/spaauth/internal/store"
	"github.com/aussiebroadwan/spaauth/pkg/cryptox"
)

// pendingTTL bounds how long an authorization request may stay open.
const pendingTTL = 10 * time.Minute

const (
	tempVerifier = "pkce_verifier:"
	tempNonce    = "nonce:"
)

// SignInURL builds an authorization URL for a new sign-in attempt and
// remembers its PKCE verifier and nonce under the returned state.
func (c *Client) SignInURL(ctx context.Context, cfg SignInConfig) (authURL, state string, err error) {
	rt, err := c.current()
	if err != nil {
		return "", "", err
	}

	state = cfg.State
	if state == "" {
		if state, err = cryptox.GenerateToken(cryptox.TokenSize128); err != nil {
			return "", "", err
		}
	}

	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", "", err
	}

	key := rt.cfg.sessionKey()
	opts := []oauth2.AuthCodeOption{oidcNonce(nonce)}

	if !rt.cfg.DisablePKCE {
		verifier := oauth2.GenerateVerifier()
		if err := rt.store.PutTemporary(ctx, key, tempVerifier+state, verifier, pendingTTL); err != nil {
			return "", "", fmt.Errorf("store pkce verifier: %w", err)
		}
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	if err := rt.store.PutTemporary(ctx, key, tempNonce+state, nonce, pendingTTL); err != nil {
		return "", "", fmt.Errorf("store nonce: %w", err)
	}

	oc := rt.oauthFor(cfg)
	if cfg.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", cfg.Prompt))
	}
	if cfg.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", cfg.LoginHint))
	}
	for k, v := range cfg.ExtraParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return oc.AuthCodeURL(state, opts...), state, nil
}

// SignIn completes the authorization code flow. Without a code it returns a
// *RedirectRequiredError carrying a fresh authorization URL. With a code it
// exchanges it using the PKCE verifier remembered for cfg.State, verifies
// the ID token, stores the session and fires HookSignIn.
func (c *Client) SignIn(ctx context.Context, cfg SignInConfig, code, sessionState string) (BasicUserInfo, error) {
	rt, err := c.current()
	if err != nil {
		return BasicUserInfo{}, err
	}

	if code == "" {
		authURL, state, err := c.SignInURL(ctx, cfg)
		if err != nil {
			return BasicUserInfo{}, err
		}
		return BasicUserInfo{}, &RedirectRequiredError{URL: authURL, State: state}
	}

	verifier, nonce, err := rt.takePending(ctx, cfg.State)
	if err != nil {
		return BasicUserInfo{}, err
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := rt.oauthFor(cfg).Exchange(rt.httpContext(ctx), code, opts...)
	if err != nil {
		return BasicUserInfo{}, fromRetrieveError(err)
	}

	sess := sessionFromToken(tok, c.now())
	sess.SessionState = sessionState
	if sess.IDToken == "" {
		return BasicUserInfo{}, &OAuth2Error{Code: ErrorCodeServerError, Description: "token response has no id_token"}
	}
	if _, err := c.verifyIDToken(ctx, rt, sess.IDToken, nonce); err != nil {
		return BasicUserInfo{}, err
	}

	if err := rt.store.SetSession(ctx, rt.cfg.sessionKey(), sess); err != nil {
		return BasicUserInfo{}, fmt.Errorf("store session: %w", err)
	}

	info, err := userInfoFromSession(sess)
	if err != nil {
		return BasicUserInfo{}, err
	}

	rt.logger.Info("authsdk_signed_in", "sub", info.Sub, "token", cryptox.FingerprintToken(sess.AccessToken))
	c.hooks.fire(HookSignIn, info)
	return info, nil
}

// SignOut clears the session and returns the provider's end-session URL
// (empty when the provider has none). HookSignOut receives the URL;
// failures fire HookSignOutFailed with the error.
func (c *Client) SignOut(ctx context.Context) (string, error) {
	endSessionURL, err := c.signOut(ctx)
	if err != nil {
		c.hooks.fire(HookSignOutFailed, err)
		return "", err
	}
	c.hooks.fire(HookSignOut, endSessionURL)
	return endSessionURL, nil
}

func (c *Client) signOut(ctx context.Context) (string, error) {
	rt, err := c.current()
	if err != nil {
		return "", err
	}

	sess, err := rt.session(ctx)
	if err != nil {
		return "", err
	}

	endSessionURL := rt.endSessionURL(sess.IDToken)
	if err := rt.store.DeleteSession(ctx, rt.cfg.sessionKey()); err != nil {
		return "", fmt.Errorf("delete session: %w", err)
	}

	rt.logger.Info("authsdk_signed_out")
	return endSessionURL, nil
}

// RevokeAccessToken revokes the access token at the provider (RFC 7009),
// clears the session and fires HookRevokeAccessToken. The session is kept when
// the provider rejects the revocation.
func (c *Client) RevokeAccessToken(ctx context.Context) (bool, error) {
	rt, err := c.current()
	if err != nil {
		return false, err
	}
	if rt.endpoints.Revocation == "" {
		return false, errors.New("authsdk: provider has no revocation endpoint")
	}

	sess, err := rt.session(ctx)
	if err != nil {
		return false, err
	}

	form := url.Values{
		"token":           {sess.AccessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {rt.cfg.ClientID},
	}
	if rt.cfg.ClientSecret != "" {
		form.Set("client_secret", rt.cfg.ClientSecret)
	}

	if _, err := rt.postForm(ctx, rt.endpoints.Revocation, form, ""); err != nil {
		return false, err
	}

	if err := rt.store.DeleteSession(ctx, rt.cfg.sessionKey()); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}

	rt.logger.Info("authsdk_access_token_revoked", "token", cryptox.FingerprintToken(sess.AccessToken))
	c.hooks.fire(HookRevokeAccessToken, true)
	return true, nil
}

// takePending consumes the verifier and nonce stored by SignInURL. Unknown
// states fail with ErrInvalidState. An empty state is only accepted when PKCE
// is disabled.
func (rt *runtime) takePending(ctx context.Context, state string) (verifier, nonce string, err error) {
	if state == "" {
		if rt.cfg.DisablePKCE {
			return "", "", nil
		}
		return "", "", ErrInvalidState
	}

	key := rt.cfg.sessionKey()
	nonce, err = rt.store.TakeTemporary(ctx, key, tempNonce+state)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", ErrInvalidState
	}
	if err != nil {
		return "", "", fmt.Errorf("load nonce: %w", err)
	}

	if rt.cfg.DisablePKCE {
		return "", nonce, nil
	}
	verifier, err = rt.store.TakeTemporary(ctx, key, tempVerifier+state)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", ErrInvalidState
	}
	if err != nil {
		return "", "", fmt.Errorf("load pkce verifier: %w", err)
	}
	return verifier, nonce, nil
}

// oauthFor applies per-attempt overrides to the shared oauth2 config.
func (rt *runtime) oauthFor(cfg SignInConfig) *oauth2.Config {
	if cfg.RedirectURL == "" && len(cfg.Scopes) == 0 {
		return rt.oauth
	}
	oc := *rt.oauth
	if cfg.RedirectURL != "" {
		oc.RedirectURL = cfg.RedirectURL
	}
	oc.Scopes = rt.cfg.scopes(cfg.Scopes...)
	return &oc
}

func (rt *runtime) endSessionURL(idToken string) string {
	if rt.endpoints.EndSession == "" {
		return ""
	}
	u, err := url.Parse(rt.endpoints.EndSession)
	if err != nil {
		return ""
	}

	q := u.Query()
	q.Set("client_id", rt.cfg.ClientID)
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if rt.cfg.SignOutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", rt.cfg.SignOutRedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// postForm sends an application/x-www-form-urlencoded POST and returns the
// body of a 2xx response. Error bodies become *OAuth2Error.
func (rt *runtime) postForm(ctx context.Context, endpoint string, form url.Values, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := rt.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := parseErrorResponse(resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

func oidcNonce(nonce string) oauth2.AuthCodeOption {
	return oauth2.SetAuthURLParam("nonce", nonce)
}
