package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := newDefaults()

	if cfg.Server.Port != 8090 {
		t.Errorf("Expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000/api" {
		t.Errorf("Unexpected default backend URL: %s", cfg.Backend.BaseURL)
	}
	if time.Duration(cfg.Session.MaxIdle) != 30*time.Minute {
		t.Errorf("Unexpected default max idle: %v", cfg.Session.MaxIdle)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected default logging: %+v", cfg.Log)
	}

	t.Setenv("VISADESK_DEV_MODE", "true")
	if err := cfg.validate(); err != nil {
		t.Errorf("Defaults must validate in dev mode, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("VISADESK_DEV_MODE", "true")

	path := filepath.Join(t.TempDir(), "visadesk.yaml")
	content := `
server:
  port: 9090
  read_timeout: 45s
backend:
  base_url: https://crm.itplus.kz/api
  timeout: 10s
session:
  max_idle: 1h
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if time.Duration(cfg.Server.ReadTimeout) != 45*time.Second {
		t.Errorf("Expected 45s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Backend.BaseURL != "https://crm.itplus.kz/api" {
		t.Errorf("Unexpected backend URL: %s", cfg.Backend.BaseURL)
	}
	if time.Duration(cfg.Session.MaxIdle) != time.Hour {
		t.Errorf("Expected 1h max idle, got %v", cfg.Session.MaxIdle)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Log.Level)
	}

	// Unset fields keep their defaults.
	if time.Duration(cfg.Server.WriteTimeout) != 30*time.Second {
		t.Errorf("Expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VISADESK_PORT", "7070")
	t.Setenv("VISADESK_API_KEY", "gateway-secret")
	t.Setenv("VISADESK_BACKEND_URL", "http://crm.internal:8000/api")
	t.Setenv("VISADESK_BACKEND_API_KEY", "backend-secret")
	t.Setenv("VISADESK_BACKEND_TIMEOUT", "5s")
	t.Setenv("VISADESK_SESSION_MAX_IDLE", "2h")
	t.Setenv("VISADESK_LOG_LEVEL", "warn")

	cfg := newDefaults()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "gateway-secret" {
		t.Error("Expected gateway API key from env")
	}
	if cfg.Backend.BaseURL != "http://crm.internal:8000/api" {
		t.Errorf("Expected backend URL override, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.APIKey != "backend-secret" {
		t.Error("Expected backend API key from env")
	}
	if time.Duration(cfg.Backend.Timeout) != 5*time.Second {
		t.Errorf("Expected 5s backend timeout, got %v", cfg.Backend.Timeout)
	}
	if time.Duration(cfg.Session.MaxIdle) != 2*time.Hour {
		t.Errorf("Expected 2h max idle, got %v", cfg.Session.MaxIdle)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected warn level, got %s", cfg.Log.Level)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("VISADESK_PORT", "not-a-port")
	t.Setenv("VISADESK_BACKEND_TIMEOUT", "soon")

	cfg := newDefaults()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 8090 {
		t.Errorf("Invalid port must keep default, got %d", cfg.Server.Port)
	}
	if time.Duration(cfg.Backend.Timeout) != 30*time.Second {
		t.Errorf("Invalid duration must keep default, got %v", cfg.Backend.Timeout)
	}
}

func TestValidate(t *testing.T) {
	cfg := newDefaults()
	if err := cfg.validate(); err == nil {
		t.Error("Expected error for missing API key outside dev mode")
	}

	cfg = newDefaults()
	cfg.Server.APIKey = "secret"
	if err := cfg.validate(); err != nil {
		t.Errorf("API key must satisfy validation, got %v", err)
	}

	t.Setenv("VISADESK_DEV_MODE", "true")

	cfg = newDefaults()
	cfg.Backend.BaseURL = ""
	if err := cfg.validate(); err == nil {
		t.Error("Expected error for empty backend URL")
	}

	cfg = newDefaults()
	cfg.Session.MaxIdle = 0
	if err := cfg.validate(); err == nil {
		t.Error("Expected error for zero max idle")
	}

	cfg = newDefaults()
	cfg.Session.SweepInterval = Duration(-time.Second)
	if err := cfg.validate(); err == nil {
		t.Error("Expected error for negative sweep interval")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visadesk.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VISADESK_CONFIG_PATH", path)
	t.Setenv("VISADESK_PORT", "7070")
	t.Setenv("VISADESK_DEV_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Env must win over YAML, got %d", cfg.Server.Port)
	}
}
