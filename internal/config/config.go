package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mapkeep/internal/browser"
	"mapkeep/internal/intercept"
	"mapkeep/internal/store"
)

// Config holds all mapkeep configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Storage   StorageConfig   `yaml:"storage"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Intercept InterceptConfig `yaml:"intercept"`
	Browser   browser.Config  `yaml:"browser"`
	Settings  SettingsConfig  `yaml:"settings"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig selects the persistence driver.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite, sqlite3, memory
	Path   string `yaml:"path"`
}

// ProxyConfig configures the intercepting reverse proxy.
type ProxyConfig struct {
	Listen   string `yaml:"listen"`
	Upstream string `yaml:"upstream"`
}

// InterceptConfig configures the interception pipeline.
type InterceptConfig struct {
	APIPrefix    string         `yaml:"api_prefix"`
	TrackedHosts []string       `yaml:"tracked_hosts"`
	EntitledUser map[string]any `yaml:"entitled_user,omitempty"`
}

// SettingsConfig locates the settings file answered over the bridge.
type SettingsConfig struct {
	File    string `yaml:"file"`
	Timeout string `yaml:"timeout"`
}

// Storage driver names accepted in StorageConfig.Driver.
const (
	DriverSQLite  = store.DriverModernC
	DriverSQLite3 = store.DriverMattn
	DriverMemory  = "memory"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "mapkeep",
		Version: "0.3.0",

		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "data/mapkeep.db",
		},

		Proxy: ProxyConfig{
			Listen:   "127.0.0.1:8910",
			Upstream: "https://mapgenie.io",
		},

		Intercept: InterceptConfig{
			APIPrefix:    intercept.DefaultAPIPrefix,
			TrackedHosts: []string{"mapgenie.io", "www.mapgenie.io"},
		},

		Browser: browser.DefaultConfig(),

		Settings: SettingsConfig{
			File:    "data/settings.yaml",
			Timeout: "2s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("MAPKEEP_DB"); path != "" {
		c.Storage.Path = path
	}
	if url := os.Getenv("MAPKEEP_UPSTREAM"); url != "" {
		c.Proxy.Upstream = url
	}
	if addr := os.Getenv("MAPKEEP_LISTEN"); addr != "" {
		c.Proxy.Listen = addr
	}
	if path := os.Getenv("MAPKEEP_SETTINGS"); path != "" {
		c.Settings.File = path
	}
}

// GetSettingsTimeout returns the settings bridge timeout as a duration.
func (c *Config) GetSettingsTimeout() time.Duration {
	d, err := time.ParseDuration(c.Settings.Timeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ValidDrivers lists the supported storage drivers.
var ValidDrivers = []string{DriverSQLite, DriverSQLite3, DriverMemory}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validDriver := false
	for _, d := range ValidDrivers {
		if c.Storage.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidDrivers)
	}
	if c.Storage.Driver != DriverMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage path not configured (set storage.path or MAPKEEP_DB)")
	}
	if c.Intercept.APIPrefix == "" {
		return fmt.Errorf("intercept.api_prefix must not be empty")
	}
	return nil
}

// PipelineOptions converts the intercept section into pipeline options.
func (c *Config) PipelineOptions() intercept.Options {
	return intercept.Options{
		APIPrefix:    c.Intercept.APIPrefix,
		TrackedHosts: c.Intercept.TrackedHosts,
		EntitledUser: c.Intercept.EntitledUser,
	}
}
