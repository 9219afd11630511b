package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, int64(DefaultTrialDays), cfg.TrialDays)
	assert.Equal(t, int64(DefaultTokenTTL), cfg.TokenTTLMinutes)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9999")
	t.Setenv("ENV", "production")
	t.Setenv("TRIAL_DAYS", "30")
	t.Setenv("RATE_LIMIT_RPM", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, int64(30), cfg.TrialDays)
	assert.Equal(t, 10, cfg.RateLimitRPM)
}

func TestValidate_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "too-short")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate_RejectsNonPositiveTrial(t *testing.T) {
	cfg := &Config{JWTSecret: testSecret, TrialDays: 0, TokenTTLMinutes: 60}
	assert.Error(t, cfg.Validate())
}
