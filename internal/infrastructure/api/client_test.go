package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/client/internal/infrastructure/config"
)

// fakeBackend is an httptest stand-in for the storefront backend: OTP
// login, cookie-based refresh, and a cart whose prices are server-computed.
type fakeBackend struct {
	mu           sync.Mutex
	accessToken  string
	refreshHits  atomic.Int32
	refreshDelay time.Duration
	refreshFail  bool
	cartItems    []CartLine
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/otp", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0, "message": "ok"})
	})
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.accessToken = "access-1"
		b.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt-1", Path: "/", HttpOnly: true})
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"access_token": "access-1"}})
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshHits.Add(1)
		time.Sleep(b.refreshDelay)
		b.mu.Lock()
		fail := b.refreshFail
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if c, err := r.Cookie("refresh_token"); err != nil || c.Value == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		b.accessToken = "access-2"
		b.mu.Unlock()
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"access_token": "access-2"}})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0})
	})
	mux.HandleFunc("/api/v1/cart", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPut:
			var req BulkSyncRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			b.mu.Lock()
			lines := make([]CartLine, 0, len(req.Items))
			for _, e := range req.Items {
				lines = append(lines, CartLine{ProductID: e.ProductID, Quantity: e.Quantity, Stock: 10})
			}
			b.cartItems = lines
			b.mu.Unlock()
		case http.MethodDelete:
			b.mu.Lock()
			b.cartItems = nil
			b.mu.Unlock()
		}
		b.writeCart(w)
	})
	mux.HandleFunc("/api/v1/cart/items/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		productID := strings.TrimPrefix(r.URL.Path, "/api/v1/cart/items/")
		b.mu.Lock()
		switch r.Method {
		case http.MethodPut:
			var req ItemWriteRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			found := false
			for i := range b.cartItems {
				if b.cartItems[i].ProductID == productID {
					b.cartItems[i].Quantity = req.Quantity
					found = true
				}
			}
			if !found {
				b.cartItems = append(b.cartItems, CartLine{ProductID: productID, Quantity: req.Quantity, Stock: 10})
			}
		case http.MethodDelete:
			kept := b.cartItems[:0]
			for _, line := range b.cartItems {
				if line.ProductID != productID {
					kept = append(kept, line)
				}
			}
			b.cartItems = kept
		}
		b.mu.Unlock()
		b.writeCart(w)
	})
	return mux
}

func (b *fakeBackend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accessToken != "" && r.Header.Get("Authorization") == "Bearer "+b.accessToken
}

func (b *fakeBackend) writeCart(w http.ResponseWriter) {
	b.mu.Lock()
	items := make([]CartLine, len(b.cartItems))
	copy(items, b.cartItems)
	b.mu.Unlock()
	writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"items": items}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.API.BaseURL = srv.URL + "/api/v1"
	cfg.API.Timeout = 5 * time.Second
	cfg.API.MaxBodySize = 1 << 20
	cfg.API.RequestIDHeader = "X-Request-ID"
	cfg.Auth.RefreshPath = "/auth/refresh"
	cfg.Auth.MirrorCookieName = "access_token"
	cfg.Auth.MirrorCookieTTL = time.Hour
	cfg.Auth.CSRFCookieName = "csrf_token"
	cfg.Auth.CSRFHeaderName = "X-CSRF-Token"

	client, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestClient_LoginStoresCredential(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)

	require.NoError(t, client.Login(context.Background(), "13800000000", "123456"))
	assert.Equal(t, "access-1", client.Credentials().Get())
}

func TestClient_CartRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, "13800000000", "123456"))

	items, err := client.PutItem(ctx, "p7", 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p7", items[0].ProductID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 10, items[0].Stock)

	items, err = client.BulkSync(ctx, []SyncEntry{{ProductID: "p7", Quantity: 5}, {ProductID: "p9", Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, items, 2)

	items, err = client.DeleteItem(ctx, "p9")
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = client.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	items, err = client.ClearCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_ExpiredCredentialHealsInvisibly(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, "13800000000", "123456"))

	// Server-side rotation invalidates the issued access token.
	backend.mu.Lock()
	backend.accessToken = "rotated-away"
	backend.mu.Unlock()

	_, err := client.GetCart(ctx)
	require.NoError(t, err, "401 healed by refresh-and-retry")
	assert.Equal(t, "access-2", client.Credentials().Get())
	assert.Equal(t, int32(1), backend.refreshHits.Load())
}

func TestClient_ParallelCallsShareOneRefresh(t *testing.T) {
	backend := &fakeBackend{refreshDelay: 150 * time.Millisecond}
	client := newTestClient(t, backend)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, "13800000000", "123456"))

	backend.mu.Lock()
	backend.accessToken = "rotated-away"
	backend.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.GetCart(ctx)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), backend.refreshHits.Load(), "both 401s joined one refresh flight")
}

func TestClient_FailedRefreshClearsCredential(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, "13800000000", "123456"))

	backend.mu.Lock()
	backend.accessToken = "rotated-away"
	backend.refreshFail = true
	backend.mu.Unlock()

	_, err := client.GetCart(ctx)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Empty(t, client.Credentials().Get())
}

func TestClient_BackendErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 40001, "message": "otp throttled"})
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.API.BaseURL = srv.URL
	cfg.API.Timeout = time.Second
	cfg.API.MaxBodySize = 1 << 20
	cfg.API.RequestIDHeader = "X-Request-ID"
	cfg.Auth.RefreshPath = "/auth/refresh"
	cfg.Auth.MirrorCookieName = "access_token"

	client, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	err = client.RequestOTP(context.Background(), "13800000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "otp throttled")
}
