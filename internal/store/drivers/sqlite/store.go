// Package sqlite is a persistent Store on modernc.org/sqlite, for clients that
// should stay signed in across process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/spaauth/internal/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetSession(ctx context.Context, key string) (store.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, id_token, token_type, scope,
		       session_state, expires_at, created_at, updated_at
		FROM sessions WHERE session_key = ?`, key)

	var (
		sess                           store.Session
		expiresAt, createdAt, updatedAt int64
	)
	err := row.Scan(
		&sess.AccessToken,
		&sess.RefreshToken,
		&sess.IDToken,
		&sess.TokenType,
		&sess.Scope,
		&sess.SessionState,
		&expiresAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return store.Session{}, mapNotFound(err)
	}

	sess.ExpiresAt = fromMillis(expiresAt)
	sess.CreatedAt = fromMillis(createdAt)
	sess.UpdatedAt = fromMillis(updatedAt)
	return sess, nil
}

func (s *Store) SetSession(ctx context.Context, key string, sess store.Session) error {
	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_key, access_token, refresh_token, id_token, token_type,
			scope, session_state, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_key) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			id_token      = excluded.id_token,
			token_type    = excluded.token_type,
			scope         = excluded.scope,
			session_state = excluded.session_state,
			expires_at    = excluded.expires_at,
			updated_at    = excluded.updated_at`,
		key,
		sess.AccessToken,
		sess.RefreshToken,
		sess.IDToken,
		sess.TokenType,
		sess.Scope,
		sess.SessionState,
		toMillis(sess.ExpiresAt),
		now,
		now,
	)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key)
	return err
}

func (s *Store) PutTemporary(ctx context.Context, key, name, value string, ttl time.Duration) error {
	now := s.now()

	// Opportunistic sweep so abandoned sign-in attempts don't pile up.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM temporary_values WHERE expires_at <= ?`, toMillis(now)); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO temporary_values (session_key, name, value, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_key, name) DO UPDATE SET
			value      = excluded.value,
			expires_at = excluded.expires_at`,
		key, name, value, toMillis(now.Add(ttl)),
	)
	return err
}

func (s *Store) TakeTemporary(ctx context.Context, key, name string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	var (
		value     string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT value, expires_at FROM temporary_values
		WHERE session_key = ? AND name = ?`, key, name).Scan(&value, &expiresAt)
	if err != nil {
		return "", mapNotFound(err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM temporary_values WHERE session_key = ? AND name = ?`, key, name); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	if toMillis(s.now()) >= expiresAt {
		return "", store.ErrNotFound
	}
	return value, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
