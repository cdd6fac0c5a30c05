package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Equal(t, "climate:", cfg.CachePrefix)
	assert.Equal(t, 1, cfg.DataVersion)
	assert.Equal(t, 1, cfg.AlgoVersion)
	assert.Equal(t, 600*time.Second, cfg.CacheTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMinute)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "/tmp/climate.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DATA_VERSION", "10")
	t.Setenv("ALGO_VERSION", "3")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "/tmp/climate.db", cfg.DatabaseURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 10, cfg.DataVersion)
	assert.Equal(t, 3, cfg.AlgoVersion)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

func TestLoadDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ALGO_VERSION=7\n"), 0o644))
	t.Setenv("ALGO_VERSION", "")
	os.Unsetenv("ALGO_VERSION")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.AlgoVersion)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		env, value string
	}{
		{"DATA_VERSION", "0"},
		{"ALGO_VERSION", "-1"},
		{"DATABASE_DRIVER", "mysql"},
		{"PORT", "70000"},
		{"RATE_LIMIT_PER_MINUTE", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
