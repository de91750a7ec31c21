package authsdk

import (
	"encoding/json"
	"net/http"
	"time"
)

// ============================================================================
// Endpoints
// ============================================================================

// OIDCEndpoints are the provider URLs the client talks to. Discovery fills
// them in; non-empty fields in Config.Endpoints take precedence.
type OIDCEndpoints struct {
	Issuer             string `json:"issuer"`
	Authorization      string `json:"authorization_endpoint"`
	Token              string `json:"token_endpoint"`
	UserInfo           string `json:"userinfo_endpoint,omitempty"`
	JWKS               string `json:"jwks_uri"`
	Revocation         string `json:"revocation_endpoint,omitempty"`
	EndSession         string `json:"end_session_endpoint,omitempty"`
	Introspection      string `json:"introspection_endpoint,omitempty"`
	CheckSessionIframe string `json:"check_session_iframe,omitempty"`
}

func (e OIDCEndpoints) skipsDiscovery() bool {
	return e.Authorization != "" && e.Token != "" && e.JWKS != ""
}

// merge returns e with every non-empty field of o applied.
func (e OIDCEndpoints) merge(o OIDCEndpoints) OIDCEndpoints {
	setString(&e.Issuer, o.Issuer)
	setString(&e.Authorization, o.Authorization)
	setString(&e.Token, o.Token)
	setString(&e.UserInfo, o.UserInfo)
	setString(&e.JWKS, o.JWKS)
	setString(&e.Revocation, o.Revocation)
	setString(&e.EndSession, o.EndSession)
	setString(&e.Introspection, o.Introspection)
	setString(&e.CheckSessionIframe, o.CheckSessionIframe)
	return e
}

// ============================================================================
// Sign-in
// ============================================================================

// SignInConfig carries the per-attempt parameters of an authorization
// request.
type SignInConfig struct {
	// State selects the PKCE verifier on SignIn. SignInURL generates one
	// when empty.
	State string

	// RedirectURL overrides Config.SignInRedirectURL for this attempt.
	RedirectURL string

	Prompt    string   // e.g. "login", "consent"
	LoginHint string
	Scopes    []string // added to Config.Scopes

	// ExtraParams are appended verbatim to the authorization URL.
	ExtraParams map[string]string
}

// BasicUserInfo is the profile derived from the current ID token.
type BasicUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email,omitempty"`
	Username      string `json:"username,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	AllowedScopes string `json:"allowed_scopes,omitempty"`
	SessionState  string `json:"session_state,omitempty"`
	TenantDomain  string `json:"tenant_domain,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
type TokenResponse struct {
	// AccessToken is the access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token used to obtain new access tokens
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OIDC ID token (JWT)
	IDToken string `json:"id_token,omitempty"`

	// TokenType is "Bearer" (RFC 6750)
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// ============================================================================
// Custom grants
// ============================================================================

// CustomGrantConfig describes a grant request the client does not know
// natively (token exchange, device grants, provider extensions).
//
// Values in Data may reference session and client values with the
// placeholders {{token}}, {{refreshToken}}, {{idToken}}, {{clientID}},
// {{clientSecret}}, {{scope}}, {{redirectURI}} and {{username}}.
type CustomGrantConfig struct {
	// ID keys the CustomGrant hook fired when the grant completes.
	ID string

	Data map[string]string

	// TokenEndpoint overrides the discovered token endpoint.
	TokenEndpoint string

	// SignInRequired fails the grant with ErrNotAuthenticated when there is
	// no session.
	SignInRequired bool

	// AttachToken sends the access token as a bearer Authorization header.
	AttachToken bool

	// ReturnsSession stores the returned tokens as the new session and
	// delivers BasicUserInfo instead of the raw response.
	ReturnsSession bool
}

// ============================================================================
// HTTP requests
// ============================================================================

// HTTPRequestConfig is a single request issued through HTTPRequest.
type HTTPRequestConfig struct {
	Method  string // default GET
	URL     string
	Headers http.Header

	// Body is sent as-is. JSON, when set, is encoded instead and the content
	// type defaults to application/json.
	Body []byte
	JSON any

	// SkipToken sends the request without an access token.
	SkipToken bool
}

// HTTPResponse is a fully read response.
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// DecodeJSON unmarshals the body into v.
func (r *HTTPResponse) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}
