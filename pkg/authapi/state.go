package authapi

import "github.com/aussiebroadwan/spaauth/pkg/authsdk"

// State is the authentication state a UI renders from.
type State struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	DisplayName     string `json:"displayName"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	AllowedScopes   string `json:"allowedScopes"`
}

// DefaultState is the signed out state.
func DefaultState() State { return State{} }

// StatePatch is a partial State. Nil fields are left as they are.
type StatePatch struct {
	IsAuthenticated *bool
	DisplayName     *string
	Email           *string
	Username        *string
	AllowedScopes   *string
}

// Apply returns s with every non-nil field of p applied.
func (s State) Apply(p StatePatch) State {
	if p.IsAuthenticated != nil {
		s.IsAuthenticated = *p.IsAuthenticated
	}
	if p.DisplayName != nil {
		s.DisplayName = *p.DisplayName
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Username != nil {
		s.Username = *p.Username
	}
	if p.AllowedScopes != nil {
		s.AllowedScopes = *p.AllowedScopes
	}
	return s
}

// signedIn returns s overlaid with the user's profile and marked
// authenticated.
func (s State) signedIn(info authsdk.BasicUserInfo) State {
	s.IsAuthenticated = true
	s.DisplayName = info.DisplayName
	s.Email = info.Email
	s.Username = info.Username
	s.AllowedScopes = info.AllowedScopes
	return s
}

// Dispatch receives state the UI should render.
type Dispatch func(State)

// Bool, String are helpers for building a StatePatch.
func Bool(v bool) *bool       { return &v }
func String(v string) *string { return &v }
