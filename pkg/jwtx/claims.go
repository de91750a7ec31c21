package jwtx

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// IDTokenClaims are the OpenID Connect ID token claims the SDK cares about.
// Anything else the provider adds is kept in Raw.
type IDTokenClaims struct {
	jwt.RegisteredClaims

	Nonce    string           `json:"nonce,omitempty"`
	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	SID      string           `json:"sid,omitempty"`
	AMR      []string         `json:"amr,omitempty"`
	ACR      string           `json:"acr,omitempty"`
	AZP      string           `json:"azp,omitempty"`

	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`

	// Username and TenantDomain are non-standard but common on WSO2 style
	// identity servers.
	Username     string `json:"username,omitempty"`
	TenantDomain string `json:"tenant_domain,omitempty"`

	Raw map[string]any `json:"-"`
}

// DisplayName picks the most human friendly name the token carries.
func (c *IDTokenClaims) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.GivenName != "" && c.FamilyName != "":
		return c.GivenName + " " + c.FamilyName
	case c.GivenName != "":
		return c.GivenName
	case c.PreferredUsername != "":
		return c.PreferredUsername
	default:
		return c.Subject
	}
}

// LoginName picks the account name, falling back to the subject.
func (c *IDTokenClaims) LoginName() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.PreferredUsername != "":
		return c.PreferredUsername
	default:
		return c.Subject
	}
}

// Decode parses the payload of a compact JWT without checking the signature.
// Signature checks belong to the OIDC verifier; this is for reading claims
// out of a token we already trust.
func Decode(raw string) (*IDTokenClaims, error) {
	parser := jwt.NewParser()

	var claims IDTokenClaims
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	var all jwt.MapClaims
	if _, _, err := parser.ParseUnverified(raw, &all); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	claims.Raw = all

	return &claims, nil
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *IDTokenClaims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *IDTokenClaims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiryWithLeeway checks exp and nbf, allowing leeway for clock skew.
func (c *IDTokenClaims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
