package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	cartapp "github.com/storefront/client/internal/application/cart"
	"github.com/storefront/client/internal/infrastructure/auth"
	"github.com/storefront/client/internal/infrastructure/event"
)

// API is the slice of the backend client the session manager needs.
type API interface {
	RequestOTP(ctx context.Context, phone string) error
	Login(ctx context.Context, phone, code string) error
	Logout(ctx context.Context) error
}

// Manager owns the session lifecycle: login, restore after a restart, and
// logout. It is the bridge that populates or clears the cart when identity
// changes, and the gate that keeps cart fetches from racing an unfinished
// session restore.
type Manager struct {
	api    API
	creds  *auth.Store
	cart   *cartapp.Syncer
	bus    *event.Bus
	logger *zap.Logger

	mu            sync.RWMutex
	authenticated bool

	// ready is closed once Restore has settled, whatever the outcome.
	ready     chan struct{}
	readyOnce sync.Once
}

// NewManager creates a session manager. Restore must be called once at
// startup; until it settles, FetchCart blocks.
func NewManager(api API, creds *auth.Store, cart *cartapp.Syncer, bus *event.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		api:    api,
		creds:  creds,
		cart:   cart,
		bus:    bus,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Authenticated reports whether the current session holds an identity.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

// RequestOTP asks the backend to deliver a login passcode.
func (m *Manager) RequestOTP(ctx context.Context, phone string) error {
	return m.api.RequestOTP(ctx, phone)
}

// Login completes the OTP exchange. On success the server's cart replaces
// any guest-local one.
func (m *Manager) Login(ctx context.Context, phone, code string) error {
	if err := m.api.Login(ctx, phone, code); err != nil {
		return err
	}
	m.setAuthenticated(true)
	m.markReady()

	if err := m.cart.Fetch(ctx); err != nil {
		// The session is valid either way; the cart store keeps the error.
		m.logger.Warn("cart fetch after login failed", zap.Error(err))
	}
	return nil
}

// Restore decides the session's identity after a process restart: if a
// mirrored credential survived (or the refresh cookie can mint one through
// the pipeline), the authoritative cart fetch succeeds and the session is
// live; an auth rejection means logged out. Always settles the ready gate.
func (m *Manager) Restore(ctx context.Context) {
	defer m.markReady()

	if m.creds.Get() == "" {
		m.setAuthenticated(false)
		return
	}

	if err := m.cart.Fetch(ctx); err != nil {
		m.logger.Info("session restore failed, treating as logged out", zap.Error(err))
		m.creds.Clear()
		m.setAuthenticated(false)
		return
	}
	m.setAuthenticated(true)
}

// Logout ends the session. Local state is cleared first and
// unconditionally: the UI must reflect logged-out reality even if the
// server call is slow or fails.
func (m *Manager) Logout(ctx context.Context) {
	m.setAuthenticated(false)
	m.creds.Clear()
	m.cart.Store().Clear()

	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("server logout failed", zap.Error(err))
	}
}

// FetchCart requests the authoritative cart, waiting for an unresolved
// restore first so the fetch cannot run before the session's identity is
// known. For a guest session it succeeds with an empty cart.
func (m *Manager) FetchCart(ctx context.Context) error {
	select {
	case <-m.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !m.Authenticated() {
		return nil
	}
	return m.cart.Fetch(ctx)
}

func (m *Manager) setAuthenticated(v bool) {
	m.mu.Lock()
	changed := m.authenticated != v
	m.authenticated = v
	m.mu.Unlock()

	if changed && m.bus != nil {
		m.bus.Publish(event.TopicAuthChanged, v)
	}
}

func (m *Manager) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}
