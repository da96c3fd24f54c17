// Package session issues per-session identities.
//
// A session token is a bearer secret handed to the client; the user id is a
// separate random UUID used as the quota key and shown to operators. Identities
// are not durable: a new session is a new user with a fresh daily quota.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var ErrNotFound = errors.New("session not found or expired")

const DefaultTTL = 12 * time.Hour

type Session struct {
	Token     string
	UserID    string
	APIKey    string
	CreatedAt time.Time
}

// OwnCredential reports whether the session generates with the user's own key.
func (s *Session) OwnCredential() bool {
	return s.APIKey != ""
}

type Manager struct {
	sessions *cache.Cache
	ttl      time.Duration
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions: cache.New(ttl, ttl/2),
		ttl:      ttl,
	}
}

// Create starts a session. apiKey may be empty.
func (m *Manager) Create(apiKey string) *Session {
	s := &Session{
		Token:     uuid.NewString(),
		UserID:    NewUserID(),
		APIKey:    apiKey,
		CreatedAt: time.Now().UTC(),
	}
	m.sessions.Set(s.Token, s, cache.DefaultExpiration)
	return s
}

func (m *Manager) Get(token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	v, ok := m.sessions.Get(token)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Session), nil
}

// UserID returns the stable identity of the session behind token.
func (m *Manager) UserID(token string) (string, error) {
	s, err := m.Get(token)
	if err != nil {
		return "", err
	}
	return s.UserID, nil
}

// Touch extends the session lifetime.
func (m *Manager) Touch(token string) {
	if v, ok := m.sessions.Get(token); ok {
		m.sessions.Set(token, v, cache.DefaultExpiration)
	}
}

func (m *Manager) Delete(token string) {
	m.sessions.Delete(token)
}

func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}

// NewUserID returns a fresh opaque user identifier.
func NewUserID() string {
	return uuid.NewString()
}
