package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTP.Port != 4000 {
		t.Errorf("Expected default port 4000, got %d", cfg.HTTP.Port)
	}
	if cfg.Scope.Store != "memory" {
		t.Errorf("Expected default scope store memory, got %s", cfg.Scope.Store)
	}
	if cfg.Resolve.LibraryPollInterval != 100*time.Millisecond {
		t.Errorf("Expected library poll interval 100ms, got %v", cfg.Resolve.LibraryPollInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("BACKEND_BASE_URL", "http://agent:4000/")
	t.Setenv("SCOPE_TTL", "1h")
	t.Setenv("BACKEND_CIRCUIT_BREAKER_RATIO", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Backend.BaseURL != "http://agent:4000/" {
		t.Errorf("Expected backend base URL override, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Scope.TTL != time.Hour {
		t.Errorf("Expected scope TTL 1h, got %v", cfg.Scope.TTL)
	}
	if cfg.Backend.CircuitBreakerRatio != 0.75 {
		t.Errorf("Expected ratio 0.75, got %f", cfg.Backend.CircuitBreakerRatio)
	}
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg, _ := Load()
	if cfg.HTTP.Port != 4000 {
		t.Errorf("Expected default port on parse failure, got %d", cfg.HTTP.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.toml")
	content := `
[http]
port = 5000

[backend]
base_url = "http://backend:4001/"
timeout = "5s"

[backend.circuit_breaker]
enabled = false

[scope]
store = "redis"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}

	if cfg.HTTP.Port != 5000 {
		t.Errorf("Expected port 5000, got %d", cfg.HTTP.Port)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.CircuitBreakerEnabled {
		t.Error("Expected circuit breaker disabled by file")
	}
	if cfg.Scope.Store != "redis" {
		t.Errorf("Expected redis scope store, got %s", cfg.Scope.Store)
	}
	// Untouched values keep their defaults
	if cfg.Scope.CookieName != "console_scope" {
		t.Errorf("Expected default cookie name, got %s", cfg.Scope.CookieName)
	}
}

func TestLoadWithFile_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.toml")
	if err := os.WriteFile(path, []byte("[http]\nport = 5000\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("CONSOLE_CONFIG", path)
	t.Setenv("HTTP_PORT", "6000")

	cfg, err := LoadWithFile()
	if err != nil {
		t.Fatalf("LoadWithFile returned error: %v", err)
	}

	if cfg.HTTP.Port != 6000 {
		t.Errorf("Expected env port 6000 to win, got %d", cfg.HTTP.Port)
	}
}

func TestWriteExampleConfig_IsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "console.toml")

	if err := WriteExampleConfig(path); err != nil {
		t.Fatalf("WriteExampleConfig returned error: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Example config failed to load: %v", err)
	}
	if cfg.Resolve.LayoutRefreshInterval != 5*time.Minute {
		t.Errorf("Expected layout refresh 5m, got %v", cfg.Resolve.LayoutRefreshInterval)
	}
}
