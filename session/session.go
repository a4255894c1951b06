// Package session implements cookie sessions: an anonymous user identity
// plus the ids of the lists that user has created or joined. The cookie
// carries only a signed session id; the session body lives in the store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
	"github.com/whisper-darkly/coodo-backend/user"
)

// CookieName is the session cookie. It is deliberately not HttpOnly: the
// browser client reads the raw cookie value to authenticate its websocket.
const CookieName = "sid"

// TTL is how long a session lives past its last visit to the session
// endpoint; other endpoints never extend it.
const TTL = 24 * time.Hour

// Session is the per-browser state. UserLists is the caller's own
// membership record; there is no server-side index of who joined what.
type Session struct {
	User      user.User           `json:"user"`
	UserLists []todo.TodoListInfo `json:"userLists"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// JoinList records membership, dedup by id, preserving insertion order.
// Reports whether the session changed.
func (s *Session) JoinList(info todo.TodoListInfo) bool {
	for _, have := range s.UserLists {
		if have.ID == info.ID {
			return false
		}
	}
	s.UserLists = append(s.UserLists, info)
	return true
}

// LeaveList removes membership by id. Reports whether the session changed.
func (s *Session) LeaveList(id uuid.UUID) bool {
	for i, have := range s.UserLists {
		if have.ID == id {
			s.UserLists = append(s.UserLists[:i], s.UserLists[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) expired() bool {
	return !s.ExpiresAt.After(time.Now())
}

// Manager loads and saves sessions and speaks the cookie protocol. The
// cookie value is an HS256 JWT whose subject is the session id; expiry is
// not encoded in the token, it lives in the stored session and only the
// session endpoint extends it.
type Manager struct {
	store  store.SessionStore
	secret []byte
	ttl    time.Duration
}

// NewManager wires a session manager over st. ttl is the session lifetime
// granted by NewSession and Extend.
func NewManager(st store.SessionStore, secret []byte, ttl time.Duration) *Manager {
	return &Manager{store: st, secret: secret, ttl: ttl}
}

// NewSession starts a fresh session for u with a full lifetime ahead of it.
func (m *Manager) NewSession(u user.User) *Session {
	return &Session{
		User:      u,
		UserLists: []todo.TodoListInfo{},
		ExpiresAt: time.Now().Add(m.ttl).UTC(),
	}
}

// Extend grants the session a full lifetime from now.
func (m *Manager) Extend(sess *Session) {
	sess.ExpiresAt = time.Now().Add(m.ttl).UTC()
}

// Load resolves the request's cookie to a live session. A missing cookie,
// a bad signature, an unknown id or an expired session all come back empty;
// expired and undecodable sessions are destroyed on the spot so their ids
// cannot be resurrected.
func (m *Manager) Load(ctx context.Context, r *http.Request) (string, *Session) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", nil
	}
	sid, err := m.parseCookie(c.Value)
	if err != nil {
		slog.Debug("session: rejected cookie", "error", err)
		return "", nil
	}

	blob, err := m.store.LoadSession(ctx, sid)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("session: load", "sid", sid, "error", err)
		}
		return "", nil
	}

	var sess Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		slog.Warn("session: destroying undecodable session", "sid", sid, "error", err)
		_ = m.store.DestroySession(ctx, sid)
		return "", nil
	}
	if sess.expired() {
		_ = m.store.DestroySession(ctx, sid)
		return "", nil
	}
	return sid, &sess
}

// Save persists the session and (re)issues the cookie. An empty sid mints a
// fresh one; the returned sid is the one stored under.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sid string, sess *Session) (string, error) {
	if sid == "" {
		sid = uuid.NewString()
	}
	blob, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.StoreSession(ctx, sid, blob, sess.ExpiresAt); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	token, err := m.signCookie(sid)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	http.SetCookie(w, m.cookie(token, int(m.ttl/time.Second)))
	return sid, nil
}

// Destroy drops the stored session and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sid string) error {
	if err := m.store.DestroySession(ctx, sid); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	http.SetCookie(w, m.cookie("", -1))
	return nil
}

// ---- cookie codec ----

type sidClaims struct {
	jwt.RegisteredClaims
}

func (m *Manager) signCookie(sid string) (string, error) {
	claims := sidClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sid,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) parseCookie(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &sidClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session cookie: %w", err)
	}
	claims, ok := token.Claims.(*sidClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid session cookie claims")
	}
	return claims.Subject, nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	}
}
