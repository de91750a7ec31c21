package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2"
)

// ============================================================================
// OAuth2 Error Codes (RFC 6749)
// ============================================================================

const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeServerError          = "server_error"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeAccessDenied         = "access_denied"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// ErrNotInitialized is returned by every operation before Initialize succeeds.
	ErrNotInitialized = errors.New("authsdk: client not initialized")

	// ErrNotAuthenticated is returned when an operation needs a session and
	// there is none.
	ErrNotAuthenticated = errors.New("authsdk: not authenticated")

	// ErrTokensIsolated is returned by GetAccessToken in isolated storage mode.
	ErrTokensIsolated = errors.New("authsdk: tokens are isolated inside the client")

	// ErrInvalidState is returned when a sign-in callback carries an OAuth
	// state this client never issued, or one that was already used.
	ErrInvalidState = errors.New("authsdk: unknown or reused state")

	// ErrURLNotAllowed is returned when a request that must carry the token
	// targets an origin outside the configured resource servers.
	ErrURLNotAllowed = errors.New("authsdk: url is not an allowed resource server")

	// ErrNoRefreshToken is returned when a refresh is needed but the session
	// has no refresh token.
	ErrNoRefreshToken = errors.New("authsdk: no refresh token")
)

// ============================================================================
// Typed errors
// ============================================================================

// OAuth2Error represents a standard OAuth2 error response per RFC 6749.
type OAuth2Error struct {
	// StatusCode is the HTTP status code the provider answered with
	StatusCode int `json:"-"`

	// Code is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// RedirectRequiredError is returned by SignIn when no authorization code was
// supplied. The user agent has to visit URL first.
type RedirectRequiredError struct {
	URL   string
	State string
}

func (e *RedirectRequiredError) Error() string {
	return "authsdk: redirect required: " + e.URL
}

// HTTPError is returned by HTTPRequest for non-2xx responses. The body is
// kept so callers can decode problem details.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("authsdk: %s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
}

// ConfigError lists the fields that failed Config.Validate.
type ConfigError struct {
	Fields map[string]string
}

func (e *ConfigError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "authsdk: invalid config: " + strings.Join(parts, ", ")
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx provider response into an *OAuth2Error.
// Returns nil for 2xx status codes.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &OAuth2Error{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}

// fromRetrieveError converts the oauth2 package's token endpoint error into
// an *OAuth2Error. Other errors pass through untouched.
func fromRetrieveError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}

	if re.ErrorCode != "" {
		return &OAuth2Error{
			StatusCode:  statusOf(re.Response),
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
		}
	}

	if re.Response != nil {
		return parseErrorResponse(re.Response, re.Body)
	}
	return err
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
