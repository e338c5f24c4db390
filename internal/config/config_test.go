package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utrack/statlens/internal/model"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("STATLENS_UPSTREAM_ENDPOINT", "https://api.example.com/api/stats/realtime")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.HTTPAddress)
	assert.Equal(t, 256, cfg.MaxConcurrentViews)
	assert.Equal(t, 10, cfg.Upstream.Granularity)
	assert.Equal(t, "granularity", cfg.Upstream.GranularityParam)
	assert.Equal(t, 5*time.Minute, cfg.Upstream.RetryMaxElapsed)
}

func TestLoadFileWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
shutdown_timeout: 3s
upstream:
  endpoint: http://upstream:3000/api/stats/realtime
  granularity: 5
  retry_max_elapsed: 1m
auth:
  token: from-file
`), 0o600))

	t.Setenv("STATLENS_CONFIG", path)
	t.Setenv("STATLENS_GRANULARITY", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddress)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30, cfg.Upstream.Granularity)
	assert.Equal(t, time.Minute, cfg.Upstream.RetryMaxElapsed)
	assert.Equal(t, "from-file", cfg.Auth.Token)
}

func TestLoadUpstreamTuningFromEnv(t *testing.T) {
	t.Setenv("STATLENS_CONFIG", "")
	t.Setenv("STATLENS_UPSTREAM_ENDPOINT", "https://api.example.com/api/stats/realtime")
	t.Setenv("STATLENS_GRANULARITY_PARAM", "bucket")
	t.Setenv("STATLENS_RETRY_INITIAL", "250ms")
	t.Setenv("STATLENS_RETRY_MAX", "10s")
	t.Setenv("STATLENS_RECONNECT_DELAY", "2s")
	t.Setenv("STATLENS_NOTIFY_INTERVAL", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bucket", cfg.Upstream.GranularityParam)
	assert.Equal(t, 250*time.Millisecond, cfg.Upstream.RetryInitial)
	assert.Equal(t, 10*time.Second, cfg.Upstream.RetryMax)
	assert.Equal(t, 2*time.Second, cfg.Upstream.ReconnectDelay)
	assert.Equal(t, time.Minute, cfg.Upstream.NotifyInterval)
}

func TestLoadNegativeRetryBudgetRetriesForever(t *testing.T) {
	t.Setenv("STATLENS_CONFIG", "")
	t.Setenv("STATLENS_UPSTREAM_ENDPOINT", "https://api.example.com/api/stats/realtime")
	t.Setenv("STATLENS_RETRY_MAX_ELAPSED", "-1s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Upstream.RetryMaxElapsed)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("STATLENS_CONFIG", "")
	t.Setenv("STATLENS_UPSTREAM_ENDPOINT", "")
	_, err := Load()
	assert.ErrorContains(t, err, "upstream.endpoint is required")

	t.Setenv("STATLENS_UPSTREAM_ENDPOINT", "/relative")
	_, err = Load()
	assert.ErrorContains(t, err, "absolute http(s) URL")

	t.Setenv("STATLENS_UPSTREAM_ENDPOINT", "http://upstream/stats")
	t.Setenv("STATLENS_GRANULARITY", "7")
	_, err = Load()
	assert.ErrorIs(t, err, model.ErrInvalidGranularity)

	t.Setenv("STATLENS_GRANULARITY", "10")
	t.Setenv("STATLENS_RETRY_INITIAL", "1m")
	t.Setenv("STATLENS_RETRY_MAX", "1s")
	_, err = Load()
	assert.ErrorContains(t, err, "retry_max must be >= upstream.retry_initial")
}

func TestTokenSourceStaticAndFile(t *testing.T) {
	ts, err := AuthConfig{}.TokenSource(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = AuthConfig{Token: " opaque "}.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque", tok.AccessToken)
	assert.True(t, tok.Valid())

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("file-token\n"), 0o600))
	ts, err = AuthConfig{TokenFile: path}.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "file-token", tok.AccessToken)
}

func TestTokenSourceReadsJWTExpiry(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	ts, err := AuthConfig{Token: expired}.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.False(t, tok.Valid())

	fresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	ts, err = AuthConfig{Token: fresh}.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.True(t, tok.Valid())
}
