package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
	// retriedHeader marks a request that already went through one
	// refresh-and-retry cycle so a still-rejected credential cannot loop.
	retriedHeader = "X-Auth-Retried"
)

// TransportConfig carries the pipeline's cookie and endpoint wiring.
type TransportConfig struct {
	// RefreshPath is the backend path of the refresh endpoint. Requests to
	// it are never decorated with a bearer header and never retried.
	RefreshPath string
	// CSRFCookieName is the same-origin cookie the backend sets; its value
	// is echoed back as CSRFHeaderName on every authenticated call.
	CSRFCookieName string
	CSRFHeaderName string
}

// Transport is the authenticated request pipeline. It decorates outbound
// requests with the bearer credential and anti-forgery header, and heals a
// single 401 per request by refreshing the credential and re-issuing the
// request exactly once.
type Transport struct {
	base      http.RoundTripper
	store     *Store
	refresher *Refresher
	jar       http.CookieJar
	origin    *url.URL
	cfg       TransportConfig
	logger    *zap.Logger
}

// NewTransport wraps base with the authenticated pipeline. A nil base uses
// http.DefaultTransport.
func NewTransport(base http.RoundTripper, store *Store, refresher *Refresher, jar http.CookieJar, origin *url.URL, cfg TransportConfig, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:      base,
		store:     store,
		refresher: refresher,
		jar:       jar,
		origin:    origin,
		cfg:       cfg,
		logger:    logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	isRefresh := t.isRefreshEndpoint(req.URL)

	decorated := t.decorate(req, isRefresh)
	resp, err := t.base.RoundTrip(decorated)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// A 401 from the refresh endpoint is terminal: the refresh credential
	// itself is dead, and retrying would recurse.
	if isRefresh {
		t.store.Clear()
		return resp, nil
	}
	if decorated.Header.Get(retriedHeader) != "" {
		return resp, nil
	}

	t.logger.Debug("unauthorized response, refreshing credential",
		zap.String("path", req.URL.Path),
	)

	if _, rerr := t.refresher.Refresh(req.Context()); rerr != nil {
		t.store.Clear()
		// Propagate the original 401, not the refresh error: to the caller
		// this is just a failed call, and the cleared store stops later
		// requests from retrying against a known-dead credential.
		return resp, nil
	}

	retry, rerr := cloneRequest(req)
	if rerr != nil {
		return resp, nil
	}
	retry.Header.Set(retriedHeader, "1")

	resp.Body.Close()
	return t.base.RoundTrip(t.decorate(retry, false))
}

// decorate attaches the bearer credential and the anti-forgery header.
// The refresh endpoint gets neither; it authenticates via the HTTP-only
// refresh cookie that the jar sends automatically.
func (t *Transport) decorate(req *http.Request, isRefresh bool) *http.Request {
	out := req.Clone(req.Context())
	if isRefresh {
		return out
	}
	if token := t.store.Get(); token != "" {
		out.Header.Set(headerAuthorization, bearerPrefix+token)
		if csrf := t.csrfToken(); csrf != "" && t.cfg.CSRFHeaderName != "" {
			out.Header.Set(t.cfg.CSRFHeaderName, csrf)
		}
	}
	return out
}

// csrfToken reads the anti-forgery cookie from the jar, if present.
func (t *Transport) csrfToken() string {
	if t.jar == nil || t.cfg.CSRFCookieName == "" {
		return ""
	}
	for _, c := range t.jar.Cookies(t.origin) {
		if c.Name == t.cfg.CSRFCookieName {
			return c.Value
		}
	}
	return ""
}

func (t *Transport) isRefreshEndpoint(u *url.URL) bool {
	return t.cfg.RefreshPath != "" && strings.HasSuffix(u.Path, t.cfg.RefreshPath)
}

// cloneRequest duplicates a request for the retry, re-winding the body via
// GetBody. Requests with a body but no GetBody cannot be retried.
func cloneRequest(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("auth: request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}
