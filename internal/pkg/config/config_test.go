package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.AppPort)
	assert.Equal(t, "redis", cfg.CacheDriver)
	assert.Equal(t, 6*time.Hour, cfg.PlanCacheTTL)
	assert.Equal(t, 30, cfg.TrialDays)
	assert.Equal(t, 30, cfg.PlanDurationDays)
	assert.Equal(t, 4, cfg.SweepConcurrency)
	assert.Equal(t, 10*time.Second, cfg.NotifyTimeout)
	assert.False(t, cfg.IsDev())
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ENV":           "dev",
		"CACHE_DRIVER":      "memory",
		"PLAN_CACHE_TTL":    "15m",
		"SWEEP_CONCURRENCY": "0",
		"CRON_SECRET":       "s3cret",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "memory", cfg.CacheDriver)
	assert.Equal(t, 15*time.Minute, cfg.PlanCacheTTL)
	assert.Equal(t, 1, cfg.SweepConcurrency)
	assert.Equal(t, "s3cret", cfg.CronSecret)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"unknown cache driver", map[string]string{"CACHE_DRIVER": "memcached"}},
		{"non positive trial days", map[string]string{"TRIAL_DAYS": "0"}},
		{"malformed duration", map[string]string{"NOTIFY_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			assert.Error(t, err)
		})
	}
}
