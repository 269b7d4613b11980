package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrops-br/price-cache-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"SERVER_HOST", "SERVER_PORT", "SECRET_KEY", "CACHE_BACKEND", "CACHE_EXPIRY",
	"DATA_FILE", "STORE_IO_TIMEOUT", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"REDIS_KEY_PREFIX", "NUM_PAGES", "RETRY_DELAY", "PROXY", "OTEL_ENABLED",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "OTEL_ENVIRONMENT", "LOG_LEVEL",
}

// clearEnv unsets every key for the test; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	c := LoadConfig()

	assert.Equal(t, "0.0.0.0", c.Server.Host)
	assert.Equal(t, "8080", c.Server.Port)
	assert.Equal(t, "", c.Auth.SecretToken)
	assert.Equal(t, CacheBackendRedis, c.Store.CacheBackend)
	assert.Equal(t, time.Hour, c.Store.CacheTTL)
	assert.Equal(t, "data/products.json", c.Store.DataFile)
	assert.Equal(t, 5*time.Second, c.Store.IOTimeout)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.Equal(t, 0, c.Redis.DB)
	assert.Equal(t, "price:", c.Redis.KeyPrefix)
	assert.Equal(t, 5, c.Scraper.NumPages)
	assert.Equal(t, 5*time.Second, c.Scraper.RetryDelay)
	assert.Equal(t, "", c.Scraper.Proxy)
	assert.False(t, c.OTLP.Enabled)
	assert.Equal(t, "price-cache-api", c.OTLP.ServiceName)
	assert.Equal(t, "info", c.OTLP.LogLevel)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("CACHE_EXPIRY", "60")
	t.Setenv("STORE_IO_TIMEOUT", "2")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NUM_PAGES", "9")
	t.Setenv("RETRY_DELAY", "1")
	t.Setenv("PROXY", "http://proxy:3128")
	t.Setenv("OTEL_ENABLED", "true")

	c := LoadConfig()

	assert.Equal(t, "s3cret", c.Auth.SecretToken)
	assert.Equal(t, CacheBackendMemory, c.Store.CacheBackend)
	assert.Equal(t, time.Minute, c.Store.CacheTTL)
	assert.Equal(t, 2*time.Second, c.Store.IOTimeout)
	assert.Equal(t, 3, c.Redis.DB)
	assert.Equal(t, 9, c.Scraper.NumPages)
	assert.Equal(t, time.Second, c.Scraper.RetryDelay)
	assert.Equal(t, "http://proxy:3128", c.Scraper.Proxy)
	assert.True(t, c.OTLP.Enabled)
	require.NoError(t, c.Validate())
}

func TestLoadConfig_BadNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_EXPIRY", "soon")
	t.Setenv("OTEL_ENABLED", "maybe")

	c := LoadConfig()
	assert.Equal(t, time.Hour, c.Store.CacheTTL)
	assert.False(t, c.OTLP.Enabled)
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("SECRET_KEY")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET_KEY=from-file\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("SECRET_KEY") })

	c := LoadConfig()
	assert.Equal(t, "from-file", c.Auth.SecretToken)
}

func TestLoadConfig_EmptyKeyPrefix(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_KEY_PREFIX", "")
	assert.Equal(t, "", LoadConfig().Redis.KeyPrefix)

	t.Setenv("REDIS_KEY_PREFIX", "shop:")
	assert.Equal(t, "shop:", LoadConfig().Redis.KeyPrefix)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	c := LoadConfig()
	assert.ErrorIs(t, c.Validate(), domain.ErrMissingSecret)

	c.Auth.SecretToken = "x"
	require.NoError(t, c.Validate())

	c.Store.CacheTTL = 0
	assert.ErrorIs(t, c.Validate(), domain.ErrInvalidConfig)

	c.Store.CacheTTL = time.Second
	c.Store.CacheBackend = "memcached"
	assert.ErrorIs(t, c.Validate(), domain.ErrInvalidConfig)
}
