package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all client configuration
type Config struct {
	App  AppConfig
	API  APIConfig
	Auth AuthConfig
	Cart CartConfig
	Log  LogConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// APIConfig holds backend endpoint settings
type APIConfig struct {
	BaseURL         string        `validate:"required,url"`
	Timeout         time.Duration `validate:"gt=0"`
	MaxBodySize     int64         `validate:"gt=0"`
	RequestIDHeader string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	RefreshPath      string `validate:"required,startswith=/"`
	MirrorCookieName string `validate:"required"`
	MirrorCookieTTL  time.Duration
	CSRFCookieName   string
	CSRFHeaderName   string
}

// CartConfig holds cart synchronization settings
type CartConfig struct {
	DebounceWindow time.Duration `validate:"gt=0"`
	SyncTimeout    time.Duration `validate:"gt=0"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration with the following precedence:
// Priority (highest to lowest):
// 1. Environment variables with SHOP_ prefix (e.g., SHOP_API_BASE_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("SHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		API: APIConfig{
			BaseURL:         v.GetString("api.base_url"),
			Timeout:         v.GetDuration("api.timeout"),
			MaxBodySize:     v.GetInt64("api.max_body_size"),
			RequestIDHeader: v.GetString("api.request_id_header"),
		},
		Auth: AuthConfig{
			RefreshPath:      v.GetString("auth.refresh_path"),
			MirrorCookieName: v.GetString("auth.mirror_cookie_name"),
			MirrorCookieTTL:  v.GetDuration("auth.mirror_cookie_ttl"),
			CSRFCookieName:   v.GetString("auth.csrf_cookie_name"),
			CSRFHeaderName:   v.GetString("auth.csrf_header_name"),
		},
		Cart: CartConfig{
			DebounceWindow: v.GetDuration("cart.debounce_window"),
			SyncTimeout:    v.GetDuration("cart.sync_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills in defaults for any unset values
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "storefront-client"
	}
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8080/api/v1"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.MaxBodySize <= 0 {
		c.API.MaxBodySize = 10 * 1024 * 1024
	}
	if c.API.RequestIDHeader == "" {
		c.API.RequestIDHeader = "X-Request-ID"
	}
	if c.Auth.RefreshPath == "" {
		c.Auth.RefreshPath = "/auth/refresh"
	}
	if c.Auth.MirrorCookieName == "" {
		c.Auth.MirrorCookieName = "access_token"
	}
	if c.Auth.MirrorCookieTTL <= 0 {
		c.Auth.MirrorCookieTTL = 24 * time.Hour
	}
	if c.Auth.CSRFCookieName == "" {
		c.Auth.CSRFCookieName = "csrf_token"
	}
	if c.Auth.CSRFHeaderName == "" {
		c.Auth.CSRFHeaderName = "X-CSRF-Token"
	}
	if c.Cart.DebounceWindow <= 0 {
		c.Cart.DebounceWindow = time.Second
	}
	if c.Cart.SyncTimeout <= 0 {
		c.Cart.SyncTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		if c.App.Env == "production" {
			c.Log.Format = "json"
		} else {
			c.Log.Format = "console"
		}
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if _, err := url.Parse(c.API.BaseURL); err != nil {
		return fmt.Errorf("invalid api.base_url: %w", err)
	}
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
