package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "storefront-client", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "http://localhost:8080/api/v1", cfg.API.BaseURL)
		assert.Equal(t, 30*time.Second, cfg.API.Timeout)
		assert.Equal(t, "/auth/refresh", cfg.Auth.RefreshPath)
		assert.Equal(t, "access_token", cfg.Auth.MirrorCookieName)
		assert.Equal(t, 24*time.Hour, cfg.Auth.MirrorCookieTTL)
		assert.Equal(t, "csrf_token", cfg.Auth.CSRFCookieName)
		assert.Equal(t, "X-CSRF-Token", cfg.Auth.CSRFHeaderName)
		assert.Equal(t, time.Second, cfg.Cart.DebounceWindow)
		assert.Equal(t, 15*time.Second, cfg.Cart.SyncTimeout)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "console", cfg.Log.Format)
	})

	t.Run("environment variables override defaults", func(t *testing.T) {
		t.Setenv("SHOP_API_BASE_URL", "https://shop.example.com/api/v2")
		t.Setenv("SHOP_CART_DEBOUNCE_WINDOW", "250ms")
		t.Setenv("SHOP_LOG_LEVEL", "debug")
		t.Setenv("SHOP_APP_ENV", "production")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "https://shop.example.com/api/v2", cfg.API.BaseURL)
		assert.Equal(t, 250*time.Millisecond, cfg.Cart.DebounceWindow)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format, "production defaults to json logs")
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("rejects non-url base", func(t *testing.T) {
		cfg := &Config{}
		cfg.applyDefaults()
		cfg.API.BaseURL = "not a url"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects refresh path without leading slash", func(t *testing.T) {
		cfg := &Config{}
		cfg.applyDefaults()
		cfg.Auth.RefreshPath = "auth/refresh"
		assert.Error(t, cfg.Validate())
	})

	t.Run("accepts defaults", func(t *testing.T) {
		cfg := &Config{}
		cfg.applyDefaults()
		assert.NoError(t, cfg.Validate())
	})
}
