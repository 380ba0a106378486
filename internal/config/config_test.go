package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("creates defaults with a secret", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if len(cfg.SecretBytes()) != 32 {
			t.Errorf("secret is %d bytes, want 32", len(cfg.SecretBytes()))
		}
		if _, err := os.Stat(filepath.Join(dir, fileName)); err != nil {
			t.Errorf("config file not created: %v", err)
		}
	})

	t.Run("secret is stable across loads", func(t *testing.T) {
		dir := t.TempDir()
		first, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		second, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if first.Secret != second.Secret {
			t.Error("secret changed between loads")
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		dir := t.TempDir()
		content := "log_level: debug\nlogin_per_min: 3\nsecret: \"00ff\"\n"
		if err := os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.LogLevel != "debug" || cfg.LoginPerMin != 3 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("rejects bad log level", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, fileName), []byte("log_level: loud\nsecret: \"00\"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(dir); err == nil {
			t.Error("Load accepted an unknown log level")
		}
	})
}
