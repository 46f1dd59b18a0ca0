package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/client/internal/domain/cart"
	"github.com/storefront/client/internal/infrastructure/auth"
	"github.com/storefront/client/internal/infrastructure/config"
)

// Errors for the backend API client
var (
	ErrBackendUnavailable = errors.New("api: backend unavailable")
	ErrRequestFailed      = errors.New("api: request failed")
	ErrInvalidResponse    = errors.New("api: invalid response")
)

// Client is the typed REST client for the storefront backend. All calls go
// through the authenticated pipeline except the refresh call itself, which
// uses the base transport so a rejected refresh cannot recurse.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	rawClient   *http.Client
	creds       *auth.Store
	refreshPath string
	maxBodySize int64
	reqIDHeader string
	logger      *zap.Logger
}

// New wires the full client stack: cookie jar, credential store with cookie
// mirror, single-flight refresher, and the authenticated transport.
func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	baseURL, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("api: cookie jar: %w", err)
	}

	creds := auth.NewStore(auth.NewCookieMirror(jar, baseURL, cfg.Auth.MirrorCookieName, cfg.Auth.MirrorCookieTTL))

	c := &Client{
		baseURL: baseURL,
		rawClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.API.Timeout,
		},
		creds:       creds,
		refreshPath: cfg.Auth.RefreshPath,
		maxBodySize: cfg.API.MaxBodySize,
		reqIDHeader: cfg.API.RequestIDHeader,
		logger:      logger,
	}

	refresher := auth.NewRefresher(creds, c.doRefresh, logger)
	transport := auth.NewTransport(nil, creds, refresher, jar, baseURL, auth.TransportConfig{
		RefreshPath:    cfg.Auth.RefreshPath,
		CSRFCookieName: cfg.Auth.CSRFCookieName,
		CSRFHeaderName: cfg.Auth.CSRFHeaderName,
	}, logger)

	c.httpClient = &http.Client{
		Jar:       jar,
		Timeout:   cfg.API.Timeout,
		Transport: transport,
	}
	return c, nil
}

// Credentials exposes the credential store to session wiring.
func (c *Client) Credentials() *auth.Store {
	return c.creds
}

// ---------------------------------------------------------------------------
// Auth Operations
// ---------------------------------------------------------------------------

// RequestOTP asks the backend to deliver a one-time passcode.
func (c *Client) RequestOTP(ctx context.Context, phone string) error {
	var resp Envelope
	return c.doRequest(ctx, c.httpClient, http.MethodPost, "/auth/otp", OTPRequest{Phone: phone}, &resp)
}

// Login exchanges the passcode for an access token. The refresh credential
// arrives as an HTTP-only cookie captured by the jar; the access token is
// stored for the pipeline.
func (c *Client) Login(ctx context.Context, phone, code string) error {
	var resp TokenResponse
	if err := c.doRequest(ctx, c.httpClient, http.MethodPost, "/auth/login", LoginRequest{Phone: phone, Code: code}, &resp); err != nil {
		return err
	}
	if resp.Data.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrInvalidResponse)
	}
	c.creds.Set(resp.Data.AccessToken)
	return nil
}

// Logout invalidates the server-side session. Local state is cleared by the
// session manager before this call is made.
func (c *Client) Logout(ctx context.Context) error {
	var resp Envelope
	return c.doRequest(ctx, c.httpClient, http.MethodPost, "/auth/logout", nil, &resp)
}

// doRefresh is the RefreshFunc handed to the refresher. It deliberately uses
// the raw client: the refresh endpoint authenticates via the HTTP-only
// refresh cookie alone, and must never trigger the pipeline's retry logic.
func (c *Client) doRefresh(ctx context.Context) (string, error) {
	var resp TokenResponse
	if err := c.doRequest(ctx, c.rawClient, http.MethodPost, c.refreshPath, nil, &resp); err != nil {
		return "", err
	}
	return resp.Data.AccessToken, nil
}

// ---------------------------------------------------------------------------
// Cart Operations
// ---------------------------------------------------------------------------

// GetCart fetches the authoritative cart.
func (c *Client) GetCart(ctx context.Context) (cart.Items, error) {
	var resp CartResponse
	if err := c.doRequest(ctx, c.httpClient, http.MethodGet, "/cart", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items(), nil
}

// BulkSync replaces the server cart with the full local item list.
func (c *Client) BulkSync(ctx context.Context, entries []SyncEntry) (cart.Items, error) {
	var resp CartResponse
	if err := c.doRequest(ctx, c.httpClient, http.MethodPut, "/cart", BulkSyncRequest{Items: entries}, &resp); err != nil {
		return nil, err
	}
	return resp.Items(), nil
}

// PutItem sets one product's quantity on the server cart.
func (c *Client) PutItem(ctx context.Context, productID string, quantity int) (cart.Items, error) {
	var resp CartResponse
	path := "/cart/items/" + url.PathEscape(productID)
	if err := c.doRequest(ctx, c.httpClient, http.MethodPut, path, ItemWriteRequest{Quantity: quantity}, &resp); err != nil {
		return nil, err
	}
	return resp.Items(), nil
}

// DeleteItem removes one product from the server cart.
func (c *Client) DeleteItem(ctx context.Context, productID string) (cart.Items, error) {
	var resp CartResponse
	path := "/cart/items/" + url.PathEscape(productID)
	if err := c.doRequest(ctx, c.httpClient, http.MethodDelete, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items(), nil
}

// ClearCart empties the server cart.
func (c *Client) ClearCart(ctx context.Context) (cart.Items, error) {
	var resp CartResponse
	if err := c.doRequest(ctx, c.httpClient, http.MethodDelete, "/cart", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items(), nil
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

// envelope is implemented by every response wrapper
type envelope interface {
	IsSuccess() bool
	ErrMessage() string
}

func (c *Client) doRequest(ctx context.Context, client *http.Client, method, path string, body any, out envelope) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("api: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.reqIDHeader, uuid.New().String())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return fmt.Errorf("api: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: failed to parse response: %w", err)
	}
	if !out.IsSuccess() {
		return fmt.Errorf("%w: %s", ErrRequestFailed, out.ErrMessage())
	}
	return nil
}
