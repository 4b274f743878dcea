package models

import (
	"net/http"
	"time"

	"streamcore/enums"
)

type ProcessConfig struct {
	Window        int                // maximum number of in-flight segment pipelines
	RetryAttempts int                // fetch retry attempts per segment
	RetryDelay    time.Duration      // delay between fetch retries
	Timeout       time.Duration      // timeout for individual fetches
	Headers       map[string]string  // custom HTTP headers for segment and key requests
	Cookies       []*http.Cookie     // cookies to send with requests
	Cipher        enums.CipherScheme // overrides the manifest-declared scheme; none skips decryption
	KeyCacheScope enums.KeyCacheScope
}

func DefaultProcessConfig() *ProcessConfig {
	return &ProcessConfig{
		Window:        4,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
		Timeout:       30 * time.Second,
		Headers:       make(map[string]string),
		Cookies:       make([]*http.Cookie, 0),
		Cipher:        enums.CipherSchemeManifest,
		KeyCacheScope: enums.KeyCacheScopeManifest,
	}
}

// GetProcessConfig returns the provided config with defaults filled in,
// or a fresh default config when nil.
func GetProcessConfig(config *ProcessConfig) *ProcessConfig {
	if config == nil {
		return DefaultProcessConfig()
	}
	config.Ensure()
	return config
}

func (cfg *ProcessConfig) Ensure() {
	defaultConfig := DefaultProcessConfig()

	if cfg.Window <= 0 {
		cfg.Window = defaultConfig.Window
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultConfig.RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultConfig.RetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultConfig.Timeout
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	if cfg.Cookies == nil {
		cfg.Cookies = make([]*http.Cookie, 0)
	}
	if cfg.Cipher == "" {
		cfg.Cipher = defaultConfig.Cipher
	}
	if cfg.KeyCacheScope == "" {
		cfg.KeyCacheScope = defaultConfig.KeyCacheScope
	}
}
