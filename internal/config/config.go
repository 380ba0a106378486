// Package config manages the application configuration stored in
// config.yml inside the data directory. The file is created with
// defaults, including a freshly generated signing secret, on first
// load.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const fileName = "config.yml"

// Config holds all application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// SessionTTLHours bounds how long a durable session survives.
	SessionTTLHours int `yaml:"session_ttl_hours"`

	// LoginPerMin limits login attempts per username per minute.
	// 0 disables the limit.
	LoginPerMin int `yaml:"login_per_min"`

	// Secret signs the durable session pointer. Hex-encoded,
	// auto-generated on first load.
	Secret string `yaml:"secret"`
}

// Default returns the default configuration without a secret.
func Default() Config {
	return Config{
		LogLevel:        "info",
		SessionTTLHours: 24 * 30,
		LoginPerMin:     10,
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}
	if c.SessionTTLHours < 0 {
		return errors.New("session_ttl_hours must be non-negative")
	}
	if c.LoginPerMin < 0 {
		return errors.New("login_per_min must be non-negative")
	}
	if _, err := hex.DecodeString(c.Secret); err != nil {
		return fmt.Errorf("secret must be hex: %w", err)
	}
	return nil
}

// SecretBytes returns the decoded signing secret.
func (c *Config) SecretBytes() []byte {
	b, _ := hex.DecodeString(c.Secret)
	return b
}

// Load reads config.yml from dir, creating it with defaults (and a
// fresh secret) if missing.
func Load(dir string) (Config, error) {
	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		cfg := Default()
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return Config{}, fmt.Errorf("failed to generate secret: %w", err)
		}
		cfg.Secret = hex.EncodeToString(secret)
		if err := save(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	// A hand-edited file may have dropped the secret; regenerate and
	// persist so stored sessions stay verifiable from now on.
	if cfg.Secret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return Config{}, fmt.Errorf("failed to generate secret: %w", err)
		}
		cfg.Secret = hex.EncodeToString(secret)
		if err := save(path, cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
