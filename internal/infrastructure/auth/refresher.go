package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrRefreshFailed reports a refresh call that settled without producing a
// usable access token.
var ErrRefreshFailed = errors.New("auth: token refresh failed")

// RefreshFunc performs the actual refresh call against the backend and
// returns the new access token. It must not go through the authenticated
// pipeline, or a rejected refresh would recurse into another refresh.
type RefreshFunc func(ctx context.Context) (string, error)

const refreshKey = "access-token"

// Refresher collapses concurrent refresh attempts into a single backend
// call. Every caller that finds the credential expired while a refresh is
// already in flight attaches to that flight and observes its outcome.
// singleflight drops the key once the flight settles, so the next expiry
// starts a fresh call rather than replaying a stale result.
type Refresher struct {
	group   singleflight.Group
	store   *Store
	refresh RefreshFunc
	logger  *zap.Logger
}

// NewRefresher creates a refresher that stores successful results in store.
func NewRefresher(store *Store, refresh RefreshFunc, logger *zap.Logger) *Refresher {
	return &Refresher{store: store, refresh: refresh, logger: logger}
}

// Refresh returns a fresh access token, issuing at most one backend call no
// matter how many goroutines arrive concurrently. On success the token is
// stored before any waiter resumes, so retried requests always read the new
// credential. On failure every waiter receives the same error and the store
// is left untouched; the caller decides whether to clear it.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	v, err, shared := r.group.Do(refreshKey, func() (any, error) {
		token, err := r.refresh(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrRefreshFailed
		}
		r.store.Set(token)
		return token, nil
	})
	if err != nil {
		r.logger.Warn("token refresh failed",
			zap.Bool("shared", shared),
			zap.Error(err),
		)
		return "", err
	}

	token := v.(string)
	r.logger.Debug("token refreshed", zap.Bool("shared", shared))
	return token, nil
}
