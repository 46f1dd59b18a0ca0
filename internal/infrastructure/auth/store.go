package auth

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Mirror persists the access token outside process memory so a restarted
// client can resume a still-valid session. It is a convenience cache, not a
// security boundary; the refresh credential lives in an HTTP-only cookie the
// client never reads.
type Mirror interface {
	Save(token string)
	Load() string
	Clear()
}

// Store holds the current access token. Memory is authoritative; the mirror
// is consulted only when memory is empty.
type Store struct {
	mu     sync.RWMutex
	token  string
	mirror Mirror
}

// NewStore creates a credential store backed by the given mirror.
func NewStore(mirror Mirror) *Store {
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &Store{mirror: mirror}
}

// Get returns the current access token, or the empty string if none. When
// memory is empty it falls back to the mirror and re-populates memory on a
// hit, which covers a process restart within the mirror's TTL.
func (s *Store) Get() string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token != "" {
		return token
	}

	mirrored := s.mirror.Load()
	if mirrored == "" {
		return ""
	}

	s.mu.Lock()
	if s.token == "" {
		s.token = mirrored
	}
	token = s.token
	s.mu.Unlock()
	return token
}

// Set replaces the current token atomically and mirrors it.
func (s *Store) Set(token string) {
	token = strings.TrimSpace(token)
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.mirror.Save(token)
}

// Clear wipes memory and expires the mirror.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	s.mirror.Clear()
}

// ExpiresAt decodes the current token as a JWT without verifying its
// signature and returns the exp claim. The zero time means the token is
// absent or not a JWT. Informational only; the backend is the authority on
// token validity.
func (s *Store) ExpiresAt() time.Time {
	token := s.Get()
	if token == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// NopMirror discards tokens; sessions do not survive a restart.
type NopMirror struct{}

func (NopMirror) Save(string)  {}
func (NopMirror) Load() string { return "" }
func (NopMirror) Clear()       {}

// CookieMirror stores the access token as a bounded-TTL cookie in the
// client's cookie jar, scoped to the backend origin. The same jar carries
// the server-set HTTP-only refresh cookie, so one jar round-trips both.
type CookieMirror struct {
	jar    http.CookieJar
	origin *url.URL
	name   string
	ttl    time.Duration
}

// NewCookieMirror creates a mirror writing cookies for the given origin.
func NewCookieMirror(jar http.CookieJar, origin *url.URL, name string, ttl time.Duration) *CookieMirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CookieMirror{jar: jar, origin: origin, name: name, ttl: ttl}
}

// Save writes the token cookie with the configured TTL.
func (m *CookieMirror) Save(token string) {
	if token == "" {
		m.Clear()
		return
	}
	m.jar.SetCookies(m.origin, []*http.Cookie{{
		Name:    m.name,
		Value:   token,
		Path:    "/",
		Expires: time.Now().Add(m.ttl),
	}})
}

// Load returns the mirrored token, or empty if the cookie is gone.
func (m *CookieMirror) Load() string {
	for _, c := range m.jar.Cookies(m.origin) {
		if c.Name == m.name {
			return c.Value
		}
	}
	return ""
}

// Clear expires the token cookie immediately.
func (m *CookieMirror) Clear() {
	m.jar.SetCookies(m.origin, []*http.Cookie{{
		Name:    m.name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	}})
}
