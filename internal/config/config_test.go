package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("JWT_ACCESS_TTL", "")
	t.Setenv("COOKIE_SECURE", "")

	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "@every 1h", cfg.SubscriptionSweepCron)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("PUBLIC_BASE_URL", "https://cards.example.com/")

	cfg := FromEnv()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, "https://cards.example.com", cfg.PublicBaseURL)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("JWT_REFRESH_TTL", "soon")
	t.Setenv("COOKIE_SECURE", "maybe")

	cfg := FromEnv()

	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.True(t, cfg.CookieSecure)
}
