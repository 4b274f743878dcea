package config

import (
	"os"
	"strconv"
	"time"

	"streamcore/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Env holds the process-wide defaults applied to every ProcessConfig
// built through this package. Individual assemblers can still override
// any of these per call.
var Env = GetDefaultEnv()

type EnvConfig struct {
	Window        int
	RetryAttempts int
	RetryDelay    time.Duration
	Timeout       time.Duration
	LogLevel      string
	LogFile       string
}

func LoadEnv() {
	// .env is optional; the environment wins when both are present
	_ = godotenv.Load()

	if value := os.Getenv("STREAMCORE_WINDOW"); value != "" {
		if window, err := strconv.Atoi(value); err == nil {
			Env.Window = window
		} else {
			zap.S().Fatal("STREAMCORE_WINDOW env is not a valid integer")
		}
	}
	if value := os.Getenv("STREAMCORE_RETRY_ATTEMPTS"); value != "" {
		if attempts, err := strconv.Atoi(value); err == nil {
			Env.RetryAttempts = attempts
		} else {
			zap.S().Fatal("STREAMCORE_RETRY_ATTEMPTS env is not a valid integer")
		}
	}
	if value := os.Getenv("STREAMCORE_RETRY_DELAY"); value != "" {
		if delay, err := time.ParseDuration(value); err == nil {
			Env.RetryDelay = delay
		} else {
			zap.S().Fatalf("STREAMCORE_RETRY_DELAY env is not a valid duration: %v", err)
		}
	}
	if value := os.Getenv("STREAMCORE_TIMEOUT"); value != "" {
		if timeout, err := time.ParseDuration(value); err == nil {
			Env.Timeout = timeout
		} else {
			zap.S().Fatalf("STREAMCORE_TIMEOUT env is not a valid duration: %v", err)
		}
	}
	if value := os.Getenv("STREAMCORE_LOG_LEVEL"); value != "" {
		Env.LogLevel = value
	}
	if value := os.Getenv("STREAMCORE_LOG_FILE"); value != "" {
		Env.LogFile = value
	}
}

func GetDefaultEnv() *EnvConfig {
	defaults := models.DefaultProcessConfig()
	return &EnvConfig{
		Window:        defaults.Window,
		RetryAttempts: defaults.RetryAttempts,
		RetryDelay:    defaults.RetryDelay,
		Timeout:       defaults.Timeout,
		LogLevel:      "info",
	}
}

// ProcessConfig builds a ProcessConfig seeded from the environment.
func ProcessConfig() *models.ProcessConfig {
	config := models.DefaultProcessConfig()
	config.Window = Env.Window
	config.RetryAttempts = Env.RetryAttempts
	config.RetryDelay = Env.RetryDelay
	config.Timeout = Env.Timeout
	config.Ensure()
	return config
}
