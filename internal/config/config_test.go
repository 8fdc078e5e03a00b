package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRateLimitDefaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("RATE_LIMIT_BURST", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Server.RateLimitRPS)
	assert.Equal(t, 200, cfg.Server.RateLimitBurst)
}

func TestLoadRateLimitOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 9, cfg.Server.RateLimitBurst)
}

func TestLoadRejectsMalformedInt(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "plenty")

	_, err := Load()
	assert.Error(t, err)
}
