package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// BackendConfig holds the hosted backend endpoint and its publishable API key.
type BackendConfig struct {
	URL     string `toml:"url"`
	AnonKey string `toml:"anon_key"`
}

// SessionConfig holds the persisted session token pair so sign-in survives
// restarts.
type SessionConfig struct {
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// Config holds all driftnote configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Session SessionConfig `toml:"session"`
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - DRIFTNOTE_URL           overrides backend.url
//   - DRIFTNOTE_ANON_KEY      overrides backend.anon_key
//   - DRIFTNOTE_ACCESS_TOKEN  overrides session.access_token
//   - DRIFTNOTE_REFRESH_TOKEN overrides session.refresh_token
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// DefaultConfigPath returns the default path for the driftnote config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.config/driftnote/config.toml"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRIFTNOTE_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("DRIFTNOTE_ANON_KEY"); v != "" {
		cfg.Backend.AnonKey = v
	}
	if v := os.Getenv("DRIFTNOTE_ACCESS_TOKEN"); v != "" {
		cfg.Session.AccessToken = v
	}
	if v := os.Getenv("DRIFTNOTE_REFRESH_TOKEN"); v != "" {
		cfg.Session.RefreshToken = v
	}
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
