package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/config"
)

type testConfig struct {
	Host     string        `env:"TEST_HOST" envDefault:"localhost"`
	Port     int           `env:"TEST_PORT" envDefault:"5432"`
	Interval time.Duration `env:"TEST_INTERVAL" envDefault:"15s"`
	Required string        `env:"TEST_REQUIRED,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults apply when variables are unset", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED", "present")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))

		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
		assert.Equal(t, 15*time.Second, cfg.Interval)
		assert.Equal(t, "present", cfg.Required)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("TEST_HOST", "db.internal")
		t.Setenv("TEST_PORT", "6432")
		t.Setenv("TEST_INTERVAL", "1m")
		t.Setenv("TEST_REQUIRED", "present")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))

		assert.Equal(t, "db.internal", cfg.Host)
		assert.Equal(t, 6432, cfg.Port)
		assert.Equal(t, time.Minute, cfg.Interval)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		var cfg testConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("unparsable value fails", func(t *testing.T) {
		t.Setenv("TEST_PORT", "not-a-number")
		t.Setenv("TEST_REQUIRED", "present")

		var cfg testConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer is rejected", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("returns on success", func(t *testing.T) {
		t.Setenv("TEST_REQUIRED", "present")

		var cfg testConfig
		assert.NotPanics(t, func() { config.MustLoad(&cfg) })
		assert.Equal(t, "present", cfg.Required)
	})

	t.Run("panics on failure", func(t *testing.T) {
		var cfg testConfig
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})
}
