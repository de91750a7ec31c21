package authsdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/spaauth/internal/store"
	"github.com/aussiebroadwan/spaauth/pkg/jwtx"
)

// IsAuthenticated reports whether there is a session whose access token is
// still valid or can be refreshed.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	rt, err := c.current()
	if err != nil {
		return false, err
	}

	sess, err := rt.session(ctx)
	if errors.Is(err, ErrNotAuthenticated) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.AccessToken != "" && (!sess.Expired(c.now()) || sess.RefreshToken != ""), nil
}

// GetAccessToken returns a valid access token, refreshing it first when it is
// about to expire. In isolated storage mode it returns ErrTokensIsolated.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	rt, err := c.current()
	if err != nil {
		return "", err
	}
	if rt.cfg.Storage == StorageIsolated {
		return "", ErrTokensIsolated
	}
	return c.validToken(ctx)
}

// GetIDToken returns the raw ID token of the current session.
func (c *Client) GetIDToken(ctx context.Context) (string, error) {
	rt, err := c.current()
	if err != nil {
		return "", err
	}
	sess, err := rt.session(ctx)
	if err != nil {
		return "", err
	}
	if sess.IDToken == "" {
		return "", ErrNotAuthenticated
	}
	return sess.IDToken, nil
}

// GetDecodedIDToken returns the claims of the current ID token. The token
// was verified when it was stored; it is not verified again.
func (c *Client) GetDecodedIDToken(ctx context.Context) (*jwtx.IDTokenClaims, error) {
	raw, err := c.GetIDToken(ctx)
	if err != nil {
		return nil, err
	}
	return jwtx.Decode(raw)
}

// GetBasicUserInfo returns the profile of the signed-in user.
func (c *Client) GetBasicUserInfo(ctx context.Context) (BasicUserInfo, error) {
	rt, err := c.current()
	if err != nil {
		return BasicUserInfo{}, err
	}
	sess, err := rt.session(ctx)
	if err != nil {
		return BasicUserInfo{}, err
	}
	return userInfoFromSession(sess)
}

// RefreshAccessToken runs the refresh_token grant and stores the new tokens.
func (c *Client) RefreshAccessToken(ctx context.Context) (BasicUserInfo, error) {
	rt, err := c.current()
	if err != nil {
		return BasicUserInfo{}, err
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	sess, err := c.refreshLocked(ctx, rt)
	if err != nil {
		return BasicUserInfo{}, err
	}
	return userInfoFromSession(sess)
}

// validToken returns the session's access token, refreshing it when it
// expires within expiryBuffer.
func (c *Client) validToken(ctx context.Context) (string, error) {
	rt, err := c.current()
	if err != nil {
		return "", err
	}

	sess, err := rt.session(ctx)
	if err != nil {
		return "", err
	}
	if !c.expiresSoon(sess) {
		return sess.AccessToken, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if sess, err = rt.session(ctx); err != nil {
		return "", err
	}
	if !c.expiresSoon(sess) {
		return sess.AccessToken, nil
	}

	if sess, err = c.refreshLocked(ctx, rt); err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

func (c *Client) expiresSoon(sess store.Session) bool {
	return sess.Expired(c.now().Add(expiryBuffer))
}

// refreshLocked must be called with refreshMu held.
func (c *Client) refreshLocked(ctx context.Context, rt *runtime) (store.Session, error) {
	sess, err := rt.session(ctx)
	if err != nil {
		return store.Session{}, err
	}
	if sess.RefreshToken == "" {
		return store.Session{}, ErrNoRefreshToken
	}

	tok, err := rt.oauth.TokenSource(rt.httpContext(ctx), &oauth2.Token{
		RefreshToken: sess.RefreshToken,
	}).Token()
	if err != nil {
		return store.Session{}, fromRetrieveError(err)
	}

	next := sessionFromToken(tok, c.now())
	next.CreatedAt = sess.CreatedAt
	next.SessionState = sess.SessionState
	if next.IDToken == "" {
		next.IDToken = sess.IDToken
	} else if _, err := c.verifyIDToken(ctx, rt, next.IDToken, ""); err != nil {
		return store.Session{}, err
	}
	if next.Scope == "" {
		next.Scope = sess.Scope
	}

	if err := rt.store.SetSession(ctx, rt.cfg.sessionKey(), next); err != nil {
		return store.Session{}, fmt.Errorf("store session: %w", err)
	}

	rt.logger.Debug("authsdk_token_refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

// verifyIDToken checks signature, issuer, audience, expiry (with
// ClockTolerance) and, when nonce is set, the nonce claim.
func (c *Client) verifyIDToken(ctx context.Context, rt *runtime, raw, nonce string) (*jwtx.IDTokenClaims, error) {
	claims, err := jwtx.Decode(raw)
	if err != nil {
		return nil, err
	}
	if rt.cfg.DisableIDTokenValidation {
		return claims, nil
	}

	if _, err := rt.verifier.Verify(ctx, raw); err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if err := claims.ValidateExpiryWithLeeway(rt.cfg.ClockTolerance); err != nil {
		return nil, err
	}
	if nonce != "" && claims.Nonce != nonce {
		return nil, fmt.Errorf("verify id token: %w", ErrInvalidState)
	}
	return claims, nil
}

func (rt *runtime) session(ctx context.Context) (store.Session, error) {
	sess, err := rt.store.GetSession(ctx, rt.cfg.sessionKey())
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, ErrNotAuthenticated
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func sessionFromToken(tok *oauth2.Token, now time.Time) store.Session {
	sess := store.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if v, ok := tok.Extra("id_token").(string); ok {
		sess.IDToken = v
	}
	if v, ok := tok.Extra("scope").(string); ok {
		sess.Scope = v
	}
	return sess
}

func sessionFromTokenResponse(resp TokenResponse, now time.Time) store.Session {
	sess := store.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if resp.ExpiresIn > 0 {
		sess.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return sess
}

func userInfoFromSession(sess store.Session) (BasicUserInfo, error) {
	info := BasicUserInfo{
		AllowedScopes: sess.Scope,
		SessionState:  sess.SessionState,
	}
	if sess.IDToken == "" {
		return info, nil
	}

	claims, err := jwtx.Decode(sess.IDToken)
	if err != nil {
		return BasicUserInfo{}, err
	}

	info.Sub = claims.Subject
	info.Email = claims.Email
	info.Username = claims.LoginName()
	info.DisplayName = claims.DisplayName()
	info.TenantDomain = claims.TenantDomain
	if info.TenantDomain == "" {
		info.TenantDomain = tenantFromUsername(info.Username)
	}
	return info, nil
}

// tenantFromUsername returns the part after the last "@" of a
// tenant-qualified username such as "alice@example.org".
func tenantFromUsername(username string) string {
	i := strings.LastIndex(username, "@")
	if i < 0 || i == len(username)-1 {
		return ""
	}
	return username[i+1:]
}
