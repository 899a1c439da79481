package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.AppPort)
	assert.Equal(t, "ollama", cfg.DefaultProvider)
	assert.Equal(t, 50, cfg.FlushIntervalMs)
	assert.Equal(t, 500, cfg.FlushSizeChars)
	assert.Equal(t, 60, cfg.StreamIdleTimeoutS)
	assert.Equal(t, 2*1024*1024, cfg.StreamMaxBytes)
	assert.Equal(t, 90, cfg.SessionMaxAgeS)
	assert.Equal(t, 30, cfg.AvailabilityTTLS)
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := &Config{
		FlushIntervalMs:    50,
		StreamIdleTimeoutS: 60,
		SessionMaxAgeS:     90,
		AvailabilityTTLS:   30,
	}
	assert.Equal(t, 50*time.Millisecond, cfg.FlushInterval())
	assert.Equal(t, time.Minute, cfg.StreamIdleTimeout())
	assert.Equal(t, 90*time.Second, cfg.SessionMaxAge())
	assert.Equal(t, 30*time.Second, cfg.AvailabilityTTL())
}
