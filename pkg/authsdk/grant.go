package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/spaauth/internal/store"
)

// RequestCustomGrant posts cfg.Data to the token endpoint and fires
// HookCustomGrant(cfg.ID) with the result. The result is a BasicUserInfo
// when cfg.ReturnsSession is set (the returned tokens become the session)
// and the decoded JSON response otherwise.
func (c *Client) RequestCustomGrant(ctx context.Context, cfg CustomGrantConfig) (any, error) {
	rt, err := c.current()
	if err != nil {
		return nil, err
	}

	sess, err := rt.session(ctx)
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		if cfg.SignInRequired || cfg.AttachToken {
			return nil, ErrNotAuthenticated
		}
	case err != nil:
		return nil, err
	}

	var bearer string
	if cfg.AttachToken {
		if bearer, err = c.validToken(ctx); err != nil {
			return nil, err
		}
		sess.AccessToken = bearer
	}

	endpoint := cfg.TokenEndpoint
	if endpoint == "" {
		endpoint = rt.endpoints.Token
	}

	body, err := rt.postForm(ctx, endpoint, rt.grantForm(cfg.Data, sess), bearer)
	if err != nil {
		return nil, err
	}

	var result any
	if cfg.ReturnsSession {
		result, err = c.storeGrantSession(ctx, rt, body, sess)
	} else {
		var raw map[string]any
		if err = json.Unmarshal(body, &raw); err != nil {
			err = fmt.Errorf("decode grant response: %w", err)
		}
		result = raw
	}
	if err != nil {
		return nil, err
	}

	rt.logger.Info("authsdk_custom_grant", "grant_id", cfg.ID, "returns_session", cfg.ReturnsSession)
	if cfg.ID != "" {
		c.hooks.fire(HookCustomGrant(cfg.ID), result)
	}
	return result, nil
}

func (c *Client) storeGrantSession(ctx context.Context, rt *runtime, body []byte, prev store.Session) (BasicUserInfo, error) {
	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return BasicUserInfo{}, fmt.Errorf("decode grant response: %w", err)
	}
	if resp.AccessToken == "" {
		return BasicUserInfo{}, &OAuth2Error{Code: ErrorCodeServerError, Description: "grant response has no access_token"}
	}

	sess := sessionFromTokenResponse(resp, c.now())
	sess.SessionState = prev.SessionState
	if sess.IDToken == "" {
		sess.IDToken = prev.IDToken
	} else if _, err := c.verifyIDToken(ctx, rt, sess.IDToken, ""); err != nil {
		return BasicUserInfo{}, err
	}

	if err := rt.store.SetSession(ctx, rt.cfg.sessionKey(), sess); err != nil {
		return BasicUserInfo{}, fmt.Errorf("store session: %w", err)
	}
	return userInfoFromSession(sess)
}

// grantForm expands the {{...}} placeholders in data.
func (rt *runtime) grantForm(data map[string]string, sess store.Session) url.Values {
	var username string
	if info, err := userInfoFromSession(sess); err == nil {
		username = info.Username
	}

	r := strings.NewReplacer(
		"{{token}}", sess.AccessToken,
		"{{refreshToken}}", sess.RefreshToken,
		"{{idToken}}", sess.IDToken,
		"{{clientID}}", rt.cfg.ClientID,
		"{{clientSecret}}", rt.cfg.ClientSecret,
		"{{scope}}", strings.Join(rt.cfg.scopes(), " "),
		"{{redirectURI}}", rt.cfg.SignInRedirectURL,
		"{{username}}", username,
	)

	form := make(url.Values, len(data))
	for k, v := range data {
		form.Set(k, r.Replace(v))
	}
	return form
}
