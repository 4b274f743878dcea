package config

import (
	"testing"
	"time"

	"streamcore/models"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STREAMCORE_WINDOW", "9")
	t.Setenv("STREAMCORE_RETRY_ATTEMPTS", "5")
	t.Setenv("STREAMCORE_RETRY_DELAY", "250ms")
	t.Setenv("STREAMCORE_TIMEOUT", "45s")
	t.Setenv("STREAMCORE_LOG_LEVEL", "debug")
	t.Setenv("STREAMCORE_LOG_FILE", "/tmp/core.log")

	Env = GetDefaultEnv()
	LoadEnv()

	assert.Equal(t, 9, Env.Window)
	assert.Equal(t, 5, Env.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, Env.RetryDelay)
	assert.Equal(t, 45*time.Second, Env.Timeout)
	assert.Equal(t, "debug", Env.LogLevel)
	assert.Equal(t, "/tmp/core.log", Env.LogFile)

	config := ProcessConfig()
	assert.Equal(t, 9, config.Window)
	assert.Equal(t, 250*time.Millisecond, config.RetryDelay)
}

func TestProcessConfigDefaults(t *testing.T) {
	Env = GetDefaultEnv()

	config := ProcessConfig()
	defaults := models.DefaultProcessConfig()
	assert.Equal(t, defaults.Window, config.Window)
	assert.Equal(t, defaults.RetryAttempts, config.RetryAttempts)
	assert.Equal(t, defaults.RetryDelay, config.RetryDelay)
	assert.Equal(t, defaults.Timeout, config.Timeout)
}
