package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "gatelog", cfg.JWTIssuer)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.True(t, cfg.AlertSkip)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("ALERT_SKIP", "false")
	t.Setenv("QUEUE_BACKEND", "memory")

	cfg := Load()

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.False(t, cfg.AlertSkip)
	assert.Equal(t, "memory", cfg.QueueBackend)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("ALERT_SKIP", "maybe")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.True(t, cfg.AlertSkip)
}
