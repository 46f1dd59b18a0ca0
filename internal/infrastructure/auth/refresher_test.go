package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRefresher_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	store := NewStore(nil)
	refresher := NewRefresher(store, func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "fresh-token", nil
	}, zap.NewNop())

	const n = 10
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = refresher.Refresh(context.Background())
		}(i)
	}

	// Let every goroutine reach the in-flight rendezvous before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "exactly one backend call for the burst")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh-token", tokens[i])
	}
	assert.Equal(t, "fresh-token", store.Get(), "token stored before waiters resume")
}

func TestRefresher_SecondExpiryTriggersNewCall(t *testing.T) {
	var calls atomic.Int32
	store := NewStore(nil)
	refresher := NewRefresher(store, func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		return "token-" + string(rune('0'+n)), nil
	}, zap.NewNop())

	first, err := refresher.Refresh(context.Background())
	require.NoError(t, err)

	second, err := refresher.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(), "a settled flight must not swallow the next expiry")
	assert.NotEqual(t, first, second)
}

func TestRefresher_FailurePropagatesToAllWaiters(t *testing.T) {
	wantErr := errors.New("refresh rejected")
	release := make(chan struct{})

	store := NewStore(nil)
	store.Set("old-token")
	refresher := NewRefresher(store, func(ctx context.Context) (string, error) {
		<-release
		return "", wantErr
	}, zap.NewNop())

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = refresher.Refresh(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.ErrorIs(t, errs[i], wantErr)
	}
	assert.Equal(t, "old-token", store.Get(), "the refresher itself leaves the store untouched on failure")
}

func TestRefresher_EmptyTokenIsFailure(t *testing.T) {
	store := NewStore(nil)
	refresher := NewRefresher(store, func(ctx context.Context) (string, error) {
		return "", nil
	}, zap.NewNop())

	_, err := refresher.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)
}
