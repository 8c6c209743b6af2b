package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfolio/entitlements/pkg/config"
)

type testConfig struct {
	Host    string        `env:"TEST_HOST" envDefault:"localhost"`
	Port    int           `env:"TEST_PORT" envDefault:"8080"`
	Timeout time.Duration `env:"TEST_TIMEOUT" envDefault:"5s"`
	Secret  string        `env:"TEST_SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults and reads the environment", func(t *testing.T) {
		t.Setenv("TEST_SECRET", "s3cret")
		t.Setenv("TEST_PORT", "9090")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))

		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.Equal(t, "s3cret", cfg.Secret)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg struct {
			Token string `env:"TEST_NEVER_SET_TOKEN,required"`
		}
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		err := config.LoadEnv("/nonexistent/.env")
		assert.ErrorIs(t, err, config.ErrLoadingEnvFiles)
	})
}
