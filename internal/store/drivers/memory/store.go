// Package memory is an in-process Store. Sessions vanish with the process,
// which matches browser session storage semantics.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/spaauth/internal/store"
)

type temporary struct {
	value     string
	expiresAt time.Time
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]store.Session
	temp     map[string]temporary
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]store.Session),
		temp:     make(map[string]temporary),
		now:      time.Now,
	}
}

func (s *Store) GetSession(_ context.Context, key string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) SetSession(_ context.Context, key string, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if prev, ok := s.sessions[key]; ok {
		sess.CreatedAt = prev.CreatedAt
	} else {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	s.sessions[key] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}

func (s *Store) PutTemporary(_ context.Context, key, name, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.temp[key+"\x00"+name] = temporary{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) TakeTemporary(_ context.Context, key, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key + "\x00" + name
	t, ok := s.temp[k]
	if !ok {
		return "", store.ErrNotFound
	}
	delete(s.temp, k)

	if !s.now().Before(t.expiresAt) {
		return "", store.ErrNotFound
	}
	return t.value, nil
}

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }
