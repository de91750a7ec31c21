package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Session is the token material and metadata kept for one signed-in client
// instance.
type Session struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        string
	SessionState string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token is past its expiry at now. A zero
// ExpiresAt never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions keyed by client instance, plus short-lived
// temporary values (PKCE verifiers keyed by OAuth state) that are consumed
// exactly once.
type Store interface {
	GetSession(ctx context.Context, key string) (Session, error)
	SetSession(ctx context.Context, key string, s Session) error
	DeleteSession(ctx context.Context, key string) error

	// PutTemporary stores value under (key, name) until ttl elapses.
	PutTemporary(ctx context.Context, key, name, value string, ttl time.Duration) error

	// TakeTemporary returns and removes the value. Expired or missing values
	// yield ErrNotFound.
	TakeTemporary(ctx context.Context, key, name string) (string, error)

	ApplyMigrations() error
	Ping(ctx context.Context) error
	Close() error
}
