package config

import (
	"fmt"
	"os"
	"path/filepath"

	"remotefs/internal/core/types"

	"github.com/goccy/go-yaml"
)

// Config is the top-level YAML configuration.
type Config struct {
	Debug    bool                           `yaml:"debug"`
	Storage  StorageConfig                  `yaml:"storage"`
	Backends map[string]types.BackendConfig `yaml:"backends"`
}

// StorageConfig locates the shared on-disk content cache.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultStorageDir is used when no storage directory is configured.
func DefaultStorageDir() string {
	return filepath.Join(os.TempDir(), "remotefs-content-cache")
}

// Load reads configuration from a YAML file and applies defaults. A
// missing file yields the default configuration.
func Load(configFile string) (*Config, error) {
	config := &Config{
		Backends: make(map[string]types.BackendConfig),
	}

	if configFile != "" && fileExists(configFile) {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
	}

	config.Storage.Dir = coalesce(config.Storage.Dir, DefaultStorageDir())

	if err := validateBackends(config.Backends); err != nil {
		return nil, err
	}

	return config, nil
}

func coalesce[T comparable](loaded, defaultVal T) T {
	var zero T
	if loaded != zero {
		return loaded
	}
	return defaultVal
}

// validateBackends checks scheme support and fills per-backend defaults.
func validateBackends(backends map[string]types.BackendConfig) error {
	supportedSchemes := map[string]bool{
		"local": true,
		"file":  true,
		"s3":    true,
		"hf":    true,
	}

	for scheme, cfg := range backends {
		if cfg.Scheme == "" {
			cfg.Scheme = scheme
		}
		if !supportedSchemes[cfg.Scheme] {
			return fmt.Errorf("unsupported backend scheme %q for backend %q", cfg.Scheme, scheme)
		}
		if cfg.Scheme != scheme && scheme != "file" {
			return fmt.Errorf("backend scheme %q doesn't match key %q", cfg.Scheme, scheme)
		}
		if cfg.Transfer == nil {
			defaultTransfer := types.DefaultTransferConfig()
			cfg.Transfer = &defaultTransfer
		}
		backends[scheme] = cfg
	}

	return nil
}

// ResolvePath resolves a config file path, checking common locations.
func ResolvePath(configFile string) string {
	if configFile != "" {
		if filepath.IsAbs(configFile) || fileExists(configFile) {
			return configFile
		}
	}

	commonPaths := []string{
		"remotefs.yaml",
		"remotefs.yml",
		"/etc/remotefs/config.yaml",
		"/etc/remotefs/config.yml",
	}

	for _, path := range commonPaths {
		if fileExists(path) {
			return path
		}
	}

	return configFile
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
