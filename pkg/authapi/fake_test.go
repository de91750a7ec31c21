package authapi_test

import (
	"context"
	"net/http"
	"sync"

	"github.com/aussiebroadwan/spaauth/pkg/authsdk"
	"github.com/aussiebroadwan/spaauth/pkg/jwtx"
)

// fakeDelegate fires hooks the way authsdk.Client does: synchronously,
// before the triggering call returns.
type fakeDelegate struct {
	mu    sync.Mutex
	hooks map[authsdk.Hook]authsdk.Callback

	info        authsdk.BasicUserInfo
	signInErr   error
	signOutURL  string
	signOutErr  error
	revokeErr   error
	accessToken string
	tokenErr    error
	grantResult map[string]any
	calls       []string
}

func newFakeDelegate() *fakeDelegate {
	return &fakeDelegate{hooks: make(map[authsdk.Hook]authsdk.Callback)}
}

func (f *fakeDelegate) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeDelegate) fire(h authsdk.Hook, payload any) {
	f.mu.Lock()
	cb := f.hooks[h]
	f.mu.Unlock()
	if cb != nil {
		cb(payload)
	}
}

func (f *fakeDelegate) On(h authsdk.Hook, cb authsdk.Callback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[h] = cb
	return nil
}

func (f *fakeDelegate) Initialize(context.Context, authsdk.Config) (bool, error) {
	f.record("Initialize")
	return true, nil
}

func (f *fakeDelegate) UpdateConfig(context.Context, authsdk.Config) error {
	f.record("UpdateConfig")
	return nil
}

func (f *fakeDelegate) SignIn(_ context.Context, _ authsdk.SignInConfig, _, _ string) (authsdk.BasicUserInfo, error) {
	f.record("SignIn")
	if f.signInErr != nil {
		return authsdk.BasicUserInfo{}, f.signInErr
	}
	f.fire(authsdk.HookSignIn, f.info)
	return f.info, nil
}

func (f *fakeDelegate) SignOut(context.Context) (string, error) {
	f.record("SignOut")
	if f.signOutErr != nil {
		f.fire(authsdk.HookSignOutFailed, f.signOutErr)
		return "", f.signOutErr
	}
	f.fire(authsdk.HookSignOut, f.signOutURL)
	return f.signOutURL, nil
}

func (f *fakeDelegate) GetBasicUserInfo(context.Context) (authsdk.BasicUserInfo, error) {
	return f.info, nil
}

func (f *fakeDelegate) GetDecodedIDToken(context.Context) (*jwtx.IDTokenClaims, error) {
	return &jwtx.IDTokenClaims{Email: f.info.Email}, nil
}

func (f *fakeDelegate) GetIDToken(context.Context) (string, error) { return "id-token", nil }

func (f *fakeDelegate) GetAccessToken(context.Context) (string, error) {
	return f.accessToken, f.tokenErr
}

func (f *fakeDelegate) RefreshAccessToken(context.Context) (authsdk.BasicUserInfo, error) {
	return f.info, nil
}

func (f *fakeDelegate) RevokeAccessToken(context.Context) (bool, error) {
	f.record("RevokeAccessToken")
	if f.revokeErr != nil {
		return false, f.revokeErr
	}
	f.fire(authsdk.HookRevokeAccessToken, true)
	return true, nil
}

func (f *fakeDelegate) IsAuthenticated(context.Context) (bool, error) { return true, nil }

// RequestCustomGrant fires the hook for cfg.ID with the session profile for
// session returning grants and grantResult otherwise.
func (f *fakeDelegate) RequestCustomGrant(_ context.Context, cfg authsdk.CustomGrantConfig) (any, error) {
	f.record("RequestCustomGrant:" + cfg.ID)

	var result any = f.grantResult
	if cfg.ReturnsSession {
		result = f.info
	}
	f.fire(authsdk.HookCustomGrant(cfg.ID), result)
	return result, nil
}

func (f *fakeDelegate) GetOIDCServiceEndpoints() (authsdk.OIDCEndpoints, error) {
	return authsdk.OIDCEndpoints{Issuer: "https://id.example.com"}, nil
}

func (f *fakeDelegate) GetHTTPClient() (*http.Client, error) { return http.DefaultClient, nil }

func (f *fakeDelegate) HTTPRequest(_ context.Context, cfg authsdk.HTTPRequestConfig) (*authsdk.HTTPResponse, error) {
	return &authsdk.HTTPResponse{StatusCode: http.StatusOK, Body: []byte(cfg.URL)}, nil
}

func (f *fakeDelegate) HTTPRequestAll(_ context.Context, cfgs []authsdk.HTTPRequestConfig) ([]*authsdk.HTTPResponse, error) {
	out := make([]*authsdk.HTTPResponse, len(cfgs))
	for i, cfg := range cfgs {
		out[i] = &authsdk.HTTPResponse{StatusCode: http.StatusOK, Body: []byte(cfg.URL)}
	}
	return out, nil
}

func (f *fakeDelegate) EnableHTTPHandler() bool  { return true }
func (f *fakeDelegate) DisableHTTPHandler() bool { return true }
