package config

import (
	"fmt"
	"os"
	"time"

	"streamcore/enums"
	"streamcore/models"

	"gopkg.in/yaml.v3"
)

// processing profiles let deployments tune the pipeline per platform
// without code changes, e.g. a wider window for a CDN that tolerates it

type Profile struct {
	Window        int               `yaml:"window"`
	RetryAttempts int               `yaml:"retry_attempts"`
	RetryDelay    string            `yaml:"retry_delay"` // duration string, e.g. 500ms
	Timeout       string            `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
	KeyCacheScope string            `yaml:"key_cache_scope"`
}

var profiles map[string]*Profile

func LoadProfiles(configPath string) error {
	profiles = make(map[string]*Profile)

	_, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read profiles file: %w", err)
	}

	var rawProfiles map[string]*Profile
	if err := yaml.Unmarshal(data, &rawProfiles); err != nil {
		return fmt.Errorf("failed to decode profiles file: %w", err)
	}
	for name, profile := range rawProfiles {
		if profile == nil {
			continue
		}
		if _, err := parseProfileDuration(profile.RetryDelay); err != nil {
			return fmt.Errorf("profile %s: invalid retry_delay: %w", name, err)
		}
		if _, err := parseProfileDuration(profile.Timeout); err != nil {
			return fmt.Errorf("profile %s: invalid timeout: %w", name, err)
		}
		profiles[name] = profile
	}
	return nil
}

func parseProfileDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

// GetProfile returns the named profile as a ProcessConfig, or nil when
// no such profile was loaded.
func GetProfile(name string) *models.ProcessConfig {
	profile, exists := profiles[name]
	if !exists {
		return nil
	}
	config := models.DefaultProcessConfig()
	if profile.Window > 0 {
		config.Window = profile.Window
	}
	if profile.RetryAttempts > 0 {
		config.RetryAttempts = profile.RetryAttempts
	}
	// durations were validated at load time
	if delay, _ := parseProfileDuration(profile.RetryDelay); delay > 0 {
		config.RetryDelay = delay
	}
	if timeout, _ := parseProfileDuration(profile.Timeout); timeout > 0 {
		config.Timeout = timeout
	}
	for key, value := range profile.Headers {
		config.Headers[key] = value
	}
	if profile.KeyCacheScope != "" {
		config.KeyCacheScope = enums.KeyCacheScope(profile.KeyCacheScope)
	}
	return config
}
