package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/utrack/statlens/internal/model"
	"gopkg.in/yaml.v3"
)

// Config contains runtime options for statlens.
type Config struct {
	HTTPAddress        string        `yaml:"http_addr"`
	MaxConcurrentViews int           `yaml:"max_concurrent_sessions"`
	SessionBufferSize  int           `yaml:"session_buffer_size"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
}

// UpstreamConfig describes the real-time statistics stream. RetryMaxElapsed bounds
// one outage; any negative value retries until shutdown.
type UpstreamConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	GranularityParam string        `yaml:"granularity_param"`
	Granularity      int           `yaml:"granularity"`
	RetryInitial     time.Duration `yaml:"retry_initial"`
	RetryMax         time.Duration `yaml:"retry_max"`
	RetryMaxElapsed  time.Duration `yaml:"retry_max_elapsed"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	NotifyInterval   time.Duration `yaml:"notify_interval"`
}

// AuthConfig selects the bearer credential: a static token or OAuth2 client credentials.
type AuthConfig struct {
	Token        string   `yaml:"token"`
	TokenFile    string   `yaml:"token_file"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// Load builds config from the optional YAML file named by STATLENS_CONFIG,
// then applies environment overrides.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("STATLENS_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddress = getString("STATLENS_HTTP_ADDR", c.HTTPAddress)
	c.MaxConcurrentViews = getInt("STATLENS_MAX_CONCURRENT_SESSIONS", c.MaxConcurrentViews)
	c.SessionBufferSize = getInt("STATLENS_SESSION_BUFFER_SIZE", c.SessionBufferSize)
	c.ShutdownTimeout = getDuration("STATLENS_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.Upstream.Endpoint = getString("STATLENS_UPSTREAM_ENDPOINT", c.Upstream.Endpoint)
	c.Upstream.GranularityParam = getString("STATLENS_GRANULARITY_PARAM", c.Upstream.GranularityParam)
	c.Upstream.Granularity = getInt("STATLENS_GRANULARITY", c.Upstream.Granularity)
	c.Upstream.RetryInitial = getDuration("STATLENS_RETRY_INITIAL", c.Upstream.RetryInitial)
	c.Upstream.RetryMax = getDuration("STATLENS_RETRY_MAX", c.Upstream.RetryMax)
	c.Upstream.RetryMaxElapsed = getDuration("STATLENS_RETRY_MAX_ELAPSED", c.Upstream.RetryMaxElapsed)
	c.Upstream.ReconnectDelay = getDuration("STATLENS_RECONNECT_DELAY", c.Upstream.ReconnectDelay)
	c.Upstream.NotifyInterval = getDuration("STATLENS_NOTIFY_INTERVAL", c.Upstream.NotifyInterval)

	c.Auth.Token = getString("STATLENS_UPSTREAM_TOKEN", c.Auth.Token)
	c.Auth.TokenFile = getString("STATLENS_UPSTREAM_TOKEN_FILE", c.Auth.TokenFile)
	c.Auth.ClientID = getString("STATLENS_OAUTH_CLIENT_ID", c.Auth.ClientID)
	c.Auth.ClientSecret = getString("STATLENS_OAUTH_CLIENT_SECRET", c.Auth.ClientSecret)
	c.Auth.TokenURL = getString("STATLENS_OAUTH_TOKEN_URL", c.Auth.TokenURL)
	if scopes := os.Getenv("STATLENS_OAUTH_SCOPES"); scopes != "" {
		c.Auth.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
	}
}

func (c *Config) applyDefaults() {
	if c.HTTPAddress == "" {
		c.HTTPAddress = ":18080"
	}
	if c.MaxConcurrentViews == 0 {
		c.MaxConcurrentViews = 256
	}
	if c.SessionBufferSize == 0 {
		c.SessionBufferSize = 64
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.Upstream.GranularityParam == "" {
		c.Upstream.GranularityParam = "granularity"
	}
	if c.Upstream.Granularity == 0 {
		c.Upstream.Granularity = 10
	}
	if c.Upstream.RetryInitial == 0 {
		c.Upstream.RetryInitial = 500 * time.Millisecond
	}
	if c.Upstream.RetryMax == 0 {
		c.Upstream.RetryMax = 30 * time.Second
	}
	switch {
	case c.Upstream.RetryMaxElapsed == 0:
		c.Upstream.RetryMaxElapsed = 5 * time.Minute
	case c.Upstream.RetryMaxElapsed < 0:
		c.Upstream.RetryMaxElapsed = 0
	}
	if c.Upstream.ReconnectDelay == 0 {
		c.Upstream.ReconnectDelay = time.Second
	}
	if c.Upstream.NotifyInterval == 0 {
		c.Upstream.NotifyInterval = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if c.MaxConcurrentViews <= 0 {
		return errors.New("max_concurrent_sessions must be > 0")
	}
	if c.SessionBufferSize <= 0 {
		return errors.New("session_buffer_size must be > 0")
	}
	if c.Upstream.Endpoint == "" {
		return errors.New("upstream.endpoint is required")
	}
	u, err := url.Parse(c.Upstream.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.endpoint must be an absolute http(s) URL, got %q", c.Upstream.Endpoint)
	}
	if !model.Granularity(c.Upstream.Granularity).Valid() {
		return fmt.Errorf("upstream.granularity: %w: %d", model.ErrInvalidGranularity, c.Upstream.Granularity)
	}
	if c.Upstream.RetryInitial < 0 || c.Upstream.RetryMax < 0 {
		return errors.New("upstream.retry_initial and upstream.retry_max must be > 0")
	}
	if c.Upstream.RetryMax < c.Upstream.RetryInitial {
		return errors.New("upstream.retry_max must be >= upstream.retry_initial")
	}
	if c.Upstream.ReconnectDelay < 0 || c.Upstream.NotifyInterval < 0 {
		return errors.New("upstream.reconnect_delay and upstream.notify_interval must be > 0")
	}
	if c.Auth.ClientID != "" && c.Auth.TokenURL == "" {
		return errors.New("auth.token_url is required with auth.client_id")
	}
	return nil
}

func getString(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
