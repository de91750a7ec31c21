package authapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/aussiebroadwan/spaauth/pkg/authsdk"
	"github.com/aussiebroadwan/spaauth/pkg/jwtx"
)

// Delegate is the client AuthAPI forwards to. *authsdk.Client implements it.
type Delegate interface {
	Initialize(ctx context.Context, cfg authsdk.Config) (bool, error)
	UpdateConfig(ctx context.Context, patch authsdk.Config) error

	SignIn(ctx context.Context, cfg authsdk.SignInConfig, code, sessionState string) (authsdk.BasicUserInfo, error)
	SignOut(ctx context.Context) (string, error)

	GetBasicUserInfo(ctx context.Context) (authsdk.BasicUserInfo, error)
	GetDecodedIDToken(ctx context.Context) (*jwtx.IDTokenClaims, error)
	GetIDToken(ctx context.Context) (string, error)
	GetAccessToken(ctx context.Context) (string, error)
	RefreshAccessToken(ctx context.Context) (authsdk.BasicUserInfo, error)
	RevokeAccessToken(ctx context.Context) (bool, error)
	IsAuthenticated(ctx context.Context) (bool, error)

	RequestCustomGrant(ctx context.Context, cfg authsdk.CustomGrantConfig) (any, error)

	GetOIDCServiceEndpoints() (authsdk.OIDCEndpoints, error)
	GetHTTPClient() (*http.Client, error)
	HTTPRequest(ctx context.Context, cfg authsdk.HTTPRequestConfig) (*authsdk.HTTPResponse, error)
	HTTPRequestAll(ctx context.Context, cfgs []authsdk.HTTPRequestConfig) ([]*authsdk.HTTPResponse, error)
	EnableHTTPHandler() bool
	DisableHTTPHandler() bool

	On(hook authsdk.Hook, cb authsdk.Callback) error
}

var _ Delegate = (*authsdk.Client)(nil)

// AuthAPI caches authentication State in front of a Delegate. Methods are
// safe for concurrent use; concurrent state updates are last write wins.
type AuthAPI struct {
	client Delegate

	mu    sync.RWMutex
	state State
}

// New returns an AuthAPI in the default state.
func New(client Delegate) *AuthAPI {
	return &AuthAPI{client: client, state: DefaultState()}
}

// GetState returns a copy of the cached state.
func (a *AuthAPI) GetState() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// UpdateState merges patch into the cached state.
func (a *AuthAPI) UpdateState(patch StatePatch) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = a.state.Apply(patch)
}

func (a *AuthAPI) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
}

func (a *AuthAPI) signedIn(info authsdk.BasicUserInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = a.state.signedIn(info)
}

// Init initializes the delegate with cfg.
func (a *AuthAPI) Init(ctx context.Context, cfg authsdk.Config) (bool, error) {
	return a.client.Initialize(ctx, cfg)
}

// SignIn completes a sign-in. When the delegate reports the user signed in,
// the cached state is updated first, then dispatch receives state overlaid
// with the profile, then callback (if any) receives the profile.
func (a *AuthAPI) SignIn(
	ctx context.Context,
	dispatch Dispatch,
	state State,
	cfg authsdk.SignInConfig,
	authorizationCode, sessionState string,
	callback func(authsdk.BasicUserInfo),
) (authsdk.BasicUserInfo, error) {
	err := a.client.On(authsdk.HookSignIn, func(payload any) {
		info, _ := payload.(authsdk.BasicUserInfo)

		a.signedIn(info)
		if dispatch != nil {
			dispatch(state.signedIn(info))
		}
		if callback != nil {
			callback(info)
		}
	})
	if err != nil {
		return authsdk.BasicUserInfo{}, err
	}

	return a.client.SignIn(ctx, cfg, authorizationCode, sessionState)
}

// SignOut signs out and returns the provider's end-session URL. When the
// delegate reports the sign-out, the cached state is reset, dispatch
// receives the default state and callback (if any) runs.
func (a *AuthAPI) SignOut(ctx context.Context, dispatch Dispatch, state State, callback func()) (string, error) {
	err := a.client.On(authsdk.HookSignOut, func(any) {
		a.setState(DefaultState())
		if dispatch != nil {
			dispatch(state.Apply(defaultPatch()))
		}
		if callback != nil {
			callback()
		}
	})
	if err != nil {
		return "", err
	}

	return a.client.SignOut(ctx)
}

// RequestCustomGrant runs a custom grant. Observers are keyed by cfg.ID, so
// grants with different ids are tracked independently; registering the same
// id again replaces the earlier observer. For session returning grants
// dispatch receives the cached state overlaid with the new profile. callback
// always receives the raw result.
func (a *AuthAPI) RequestCustomGrant(
	ctx context.Context,
	cfg authsdk.CustomGrantConfig,
	callback func(any),
	dispatch Dispatch,
) (any, error) {
	err := a.client.On(authsdk.HookCustomGrant(cfg.ID), func(payload any) {
		if cfg.ReturnsSession && dispatch != nil {
			info, _ := payload.(authsdk.BasicUserInfo)
			dispatch(a.GetState().signedIn(info))
		}
		if callback != nil {
			callback(payload)
		}
	})
	if err != nil {
		return nil, err
	}

	return a.client.RequestCustomGrant(ctx, cfg)
}

// RevokeAccessToken revokes the access token. On success the cached state is
// reset and dispatch receives the default state. On failure nothing changes.
func (a *AuthAPI) RevokeAccessToken(ctx context.Context, dispatch Dispatch) (bool, error) {
	if _, err := a.client.RevokeAccessToken(ctx); err != nil {
		return false, err
	}

	a.setState(DefaultState())
	if dispatch != nil {
		dispatch(DefaultState())
	}
	return true, nil
}

// On registers callback for hook on the delegate.
func (a *AuthAPI) On(hook authsdk.Hook, callback authsdk.Callback) error {
	return a.client.On(hook, callback)
}

func (a *AuthAPI) UpdateConfig(ctx context.Context, patch authsdk.Config) error {
	return a.client.UpdateConfig(ctx, patch)
}

func (a *AuthAPI) GetBasicUserInfo(ctx context.Context) (authsdk.BasicUserInfo, error) {
	return a.client.GetBasicUserInfo(ctx)
}

func (a *AuthAPI) GetDecodedIDToken(ctx context.Context) (*jwtx.IDTokenClaims, error) {
	return a.client.GetDecodedIDToken(ctx)
}

func (a *AuthAPI) GetIDToken(ctx context.Context) (string, error) {
	return a.client.GetIDToken(ctx)
}

// GetAccessToken returns the access token. With isolated storage the
// delegate keeps tokens to itself and this returns "" with
// authsdk.ErrTokensIsolated.
func (a *AuthAPI) GetAccessToken(ctx context.Context) (string, error) {
	return a.client.GetAccessToken(ctx)
}

func (a *AuthAPI) RefreshAccessToken(ctx context.Context) (authsdk.BasicUserInfo, error) {
	return a.client.RefreshAccessToken(ctx)
}

func (a *AuthAPI) IsAuthenticated(ctx context.Context) (bool, error) {
	return a.client.IsAuthenticated(ctx)
}

func (a *AuthAPI) GetOIDCServiceEndpoints() (authsdk.OIDCEndpoints, error) {
	return a.client.GetOIDCServiceEndpoints()
}

func (a *AuthAPI) GetHTTPClient() (*http.Client, error) {
	return a.client.GetHTTPClient()
}

func (a *AuthAPI) HTTPRequest(ctx context.Context, cfg authsdk.HTTPRequestConfig) (*authsdk.HTTPResponse, error) {
	return a.client.HTTPRequest(ctx, cfg)
}

func (a *AuthAPI) HTTPRequestAll(ctx context.Context, cfgs []authsdk.HTTPRequestConfig) ([]*authsdk.HTTPResponse, error) {
	return a.client.HTTPRequestAll(ctx, cfgs)
}

func (a *AuthAPI) EnableHTTPHandler() bool  { return a.client.EnableHTTPHandler() }
func (a *AuthAPI) DisableHTTPHandler() bool { return a.client.DisableHTTPHandler() }

// defaultPatch sets every field to its default value.
func defaultPatch() StatePatch {
	d := DefaultState()
	return StatePatch{
		IsAuthenticated: &d.IsAuthenticated,
		DisplayName:     &d.DisplayName,
		Email:           &d.Email,
		Username:        &d.Username,
		AllowedScopes:   &d.AllowedScopes,
	}
}
