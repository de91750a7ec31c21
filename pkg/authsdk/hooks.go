package authsdk

import (
	"errors"
	"sync"
)

// HookKind identifies an event the client emits.
type HookKind string

const (
	KindInitialize         HookKind = "initialize"
	KindSignIn             HookKind = "sign-in"
	KindSignOut            HookKind = "sign-out"
	KindSignOutFailed      HookKind = "sign-out-failed"
	KindRevokeAccessToken  HookKind = "revoke-access-token"
	KindCustomGrant        HookKind = "custom-grant"
	KindHTTPRequestStart   HookKind = "http-request-start"
	KindHTTPRequestSuccess HookKind = "http-request-success"
	KindHTTPRequestError   HookKind = "http-request-error"
	KindHTTPRequestFinish  HookKind = "http-request-finish"
)

// Hook is a registration key. Only custom-grant hooks carry an id; build
// them with HookCustomGrant.
type Hook struct {
	kind HookKind
	id   string
}

var (
	HookInitialize         = Hook{kind: KindInitialize}
	HookSignIn             = Hook{kind: KindSignIn}
	HookSignOut            = Hook{kind: KindSignOut}
	HookSignOutFailed      = Hook{kind: KindSignOutFailed}
	HookRevokeAccessToken  = Hook{kind: KindRevokeAccessToken}
	HookHTTPRequestStart   = Hook{kind: KindHTTPRequestStart}
	HookHTTPRequestSuccess = Hook{kind: KindHTTPRequestSuccess}
	HookHTTPRequestError   = Hook{kind: KindHTTPRequestError}
	HookHTTPRequestFinish  = Hook{kind: KindHTTPRequestFinish}
)

// HookCustomGrant returns the hook fired when the custom grant with id
// completes.
func HookCustomGrant(id string) Hook {
	return Hook{kind: KindCustomGrant, id: id}
}

func (h Hook) Kind() HookKind { return h.kind }

// ID is the custom grant id, empty for every other kind.
func (h Hook) ID() string { return h.id }

func (h Hook) String() string {
	if h.id == "" {
		return string(h.kind)
	}
	return string(h.kind) + ":" + h.id
}

var ErrInvalidHook = errors.New("authsdk: invalid hook")

func (h Hook) valid() bool {
	switch h.kind {
	case KindCustomGrant:
		return h.id != ""
	case "":
		return false
	default:
		return h.id == ""
	}
}

// Callback receives the event payload. See the Hook* variables for what each
// event delivers.
type Callback func(payload any)

// hookRegistry holds one callback per hook. Registering again replaces the
// previous callback.
type hookRegistry struct {
	mu        sync.RWMutex
	callbacks map[Hook]Callback
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{callbacks: make(map[Hook]Callback)}
}

func (r *hookRegistry) set(h Hook, cb Callback) error {
	if !h.valid() {
		return ErrInvalidHook
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb == nil {
		delete(r.callbacks, h)
		return nil
	}
	r.callbacks[h] = cb
	return nil
}

// fire runs the callback registered for h, if any, on the calling goroutine.
// The lock is released first so callbacks may register hooks themselves.
func (r *hookRegistry) fire(h Hook, payload any) {
	r.mu.RLock()
	cb := r.callbacks[h]
	r.mu.RUnlock()

	if cb != nil {
		cb(payload)
	}
}
