package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_StagingDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 10*time.Minute, cfg.Staging.CodeTTL)
	assert.Equal(t, 60*time.Second, cfg.Staging.ResendCooldown)
	assert.Equal(t, 3, cfg.Staging.MaxCodeAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Staging.PendingSignupTTL)
	assert.Equal(t, 10*time.Minute, cfg.Staging.SweepInterval)
	assert.Equal(t, DefaultStaging(), cfg.Staging)
}

func TestLoad_StagingOverrides(t *testing.T) {
	t.Setenv("VERIFICATION_RESEND_COOLDOWN", "30s")
	t.Setenv("VERIFICATION_MAX_ATTEMPTS", "5")
	t.Setenv("LOGIN_APPROVAL_TTL", "2m")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.Staging.ResendCooldown)
	assert.Equal(t, 5, cfg.Staging.MaxCodeAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Staging.ApprovalTTL)
}

func TestGetEnvDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("STAGING_SWEEP_INTERVAL", "often")
	assert.Equal(t, 10*time.Minute, getEnvDuration("STAGING_SWEEP_INTERVAL", 10*time.Minute))

	t.Setenv("STAGING_SWEEP_INTERVAL", "-5s")
	assert.Equal(t, 10*time.Minute, getEnvDuration("STAGING_SWEEP_INTERVAL", 10*time.Minute))
}

func TestLoad_AllowedOriginsSplit(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	cfg := Load()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
