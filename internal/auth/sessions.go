package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tasktracker/tasks-api/internal/apperr"
)

const (
	DefaultCookieName = "auth_session"
	DefaultSessionTTL = 30 * 24 * time.Hour

	sessionIDBytes = 32
)

type SessionManagerConfig struct {
	TTL        time.Duration
	CookieName string
	// Secure marks cookies Secure; set in production.
	Secure bool
}

// SessionManager owns the session lifecycle. It never writes response
// headers: every operation that must change the client cookie returns a
// Cookie directive instead.
type SessionManager struct {
	sessions SessionStore
	users    UserStore

	ttl        time.Duration
	cookieName string
	secure     bool

	nowFunc func() time.Time
	newID   func() (string, error)
}

func NewSessionManager(sessions SessionStore, users UserStore, cfg SessionManagerConfig) (*SessionManager, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("session TTL must be > 0")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	return &SessionManager{
		sessions:   sessions,
		users:      users,
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		nowFunc:    time.Now,
		newID:      newSessionID,
	}, nil
}

func (m *SessionManager) CookieName() string { return m.cookieName }

func (m *SessionManager) TTL() time.Duration { return m.ttl }

func (m *SessionManager) CreateSession(ctx context.Context, userID string) (Session, Cookie, error) {
	if userID == "" {
		return Session{}, Cookie{}, apperr.Internal("create session", errors.New("user id is required"))
	}
	id, err := m.newID()
	if err != nil {
		return Session{}, Cookie{}, apperr.Internal("create session", fmt.Errorf("generate session id: %w", err))
	}

	sess := Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: m.nowFunc().Add(m.ttl).UTC(),
	}
	if err := m.sessions.Insert(ctx, sess); err != nil {
		return Session{}, Cookie{}, apperr.Internal("create session", err)
	}
	return sess, m.SessionCookie(sess), nil
}

// ValidateSession resolves a cookie value to its session and user.
//
// An empty value is simply anonymous and yields no cookie directive. A value
// that does not resolve to a live session yields a blank cookie so the client
// drops it. A session in the second half of its lifetime is extended and a
// renewed cookie is returned. Store failures are internal errors, never
// "unauthenticated".
func (m *SessionManager) ValidateSession(ctx context.Context, id string) (Validation, error) {
	if id == "" {
		return Validation{}, nil
	}
	if !validSessionID(id) {
		return m.anonymous(), nil
	}

	sess, err := m.sessions.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return m.anonymous(), nil
		}
		return Validation{}, apperr.Internal("validate session", err)
	}

	now := m.nowFunc()
	if !now.Before(sess.ExpiresAt) {
		if err := m.sessions.Delete(ctx, sess.ID); err != nil {
			return Validation{}, apperr.Internal("delete expired session", err)
		}
		return m.anonymous(), nil
	}

	user, err := m.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if err := m.sessions.Delete(ctx, sess.ID); err != nil {
				return Validation{}, apperr.Internal("delete orphaned session", err)
			}
			return m.anonymous(), nil
		}
		return Validation{}, apperr.Internal("load session user", err)
	}

	if !m.isFresh(sess, now) {
		return Validation{User: &user, Session: &sess}, nil
	}

	expiresAt := now.Add(m.ttl).UTC()
	if err := m.sessions.UpdateExpiry(ctx, sess.ID, expiresAt); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// Invalidated between the read and the renewal.
			return m.anonymous(), nil
		}
		return Validation{}, apperr.Internal("extend session", err)
	}
	sess.ExpiresAt = expiresAt
	sess.Fresh = true
	cookie := m.SessionCookie(sess)
	return Validation{User: &user, Session: &sess, Cookie: &cookie}, nil
}

// isFresh reports whether more than half of the lifetime has elapsed.
func (m *SessionManager) isFresh(sess Session, now time.Time) bool {
	return now.After(sess.ExpiresAt.Add(-m.ttl / 2))
}

func (m *SessionManager) InvalidateSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.sessions.Delete(ctx, id); err != nil {
		return apperr.Internal("invalidate session", err)
	}
	return nil
}

func (m *SessionManager) InvalidateUserSessions(ctx context.Context, userID string) (int, error) {
	n, err := m.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("invalidate user sessions", err)
	}
	return n, nil
}

func (m *SessionManager) DeleteExpired(ctx context.Context) (int, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.nowFunc())
	if err != nil {
		return 0, apperr.Internal("delete expired sessions", err)
	}
	return n, nil
}

func (m *SessionManager) SessionCookie(sess Session) Cookie {
	return Cookie{
		Name:     m.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
		MaxAge:   int(m.ttl / time.Second),
	}
}

func (m *SessionManager) BlankCookie() Cookie {
	return Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
	}
}

func (m *SessionManager) anonymous() Validation {
	c := m.BlankCookie()
	return Validation{Cookie: &c}
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validSessionID(id string) bool {
	if len(id) != sessionIDBytes*2 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
