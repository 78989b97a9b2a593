package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the TOML configuration file structure
type TOMLConfig struct {
	HTTP    TOMLHTTPConfig    `toml:"http"`
	Backend TOMLBackendConfig `toml:"backend"`
	Resolve TOMLResolveConfig `toml:"resolve"`
	Scope   TOMLScopeConfig   `toml:"scope"`
	Redis   TOMLRedisConfig   `toml:"redis"`
	DevMode bool              `toml:"dev_mode"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML
type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLBackendConfig represents backend client configuration in TOML
type TOMLBackendConfig struct {
	BaseURL         string                   `toml:"base_url"`
	Timeout         string                   `toml:"timeout"`
	HTTPVersion     string                   `toml:"http_version"`
	PreloadInterval string                   `toml:"preload_interval"`
	CircuitBreaker  TOMLCircuitBreakerConfig `toml:"circuit_breaker"`
}

// TOMLCircuitBreakerConfig represents circuit breaker configuration in TOML
type TOMLCircuitBreakerConfig struct {
	Enabled     *bool   `toml:"enabled"`
	Requests    uint32  `toml:"requests"`
	Interval    string  `toml:"interval"`
	Ratio       float64 `toml:"ratio"`
	Timeout     string  `toml:"timeout"`
	MinRequests uint32  `toml:"min_requests"`
}

// TOMLResolveConfig represents route precondition configuration in TOML
type TOMLResolveConfig struct {
	Timeout               string `toml:"timeout"`
	LayoutRetryInterval   string `toml:"layout_retry_interval"`
	LayoutRefreshInterval string `toml:"layout_refresh_interval"`
	FlameGraphLibraryURL  string `toml:"flame_graph_library_url"`
	LibraryPollInterval   string `toml:"library_poll_interval"`
}

// TOMLScopeConfig represents scope storage configuration in TOML
type TOMLScopeConfig struct {
	Store      string `toml:"store"`
	TTL        string `toml:"ttl"`
	CookieName string `toml:"cookie_name"`
}

// TOMLRedisConfig represents Redis configuration in TOML
type TOMLRedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// ConfigPaths lists the paths to search for config files
var ConfigPaths = []string{
	"console.toml",
	"config.toml",
	"./config/console.toml",
	"/etc/agentconsole/console.toml",
}

// LoadFromFile loads configuration from a TOML file.
// Values missing from the file keep the environment defaults.
func LoadFromFile(path string) (*Config, error) {
	base, err := Load()
	if err != nil {
		return nil, err
	}

	var tomlCfg TOMLConfig
	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyTOML(base, &tomlCfg), nil
}

// LoadWithFile loads configuration from file first, then overrides with env vars
func LoadWithFile() (*Config, error) {
	configPath := os.Getenv("CONSOLE_CONFIG")
	if configPath == "" {
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	envCfg, err := Load()
	if err != nil {
		return nil, err
	}

	if configPath == "" {
		return envCfg, nil
	}

	fileCfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	return mergeConfigs(fileCfg, envCfg), nil
}

// applyTOML overlays non-zero TOML values on top of cfg
func applyTOML(cfg *Config, tc *TOMLConfig) *Config {
	result := *cfg

	if tc.HTTP.Port != 0 {
		result.HTTP.Port = tc.HTTP.Port
	}
	if len(tc.HTTP.CORSOrigins) > 0 {
		result.HTTP.CORSOrigins = tc.HTTP.CORSOrigins
	}

	if tc.Backend.BaseURL != "" {
		result.Backend.BaseURL = tc.Backend.BaseURL
	}
	if tc.Backend.HTTPVersion != "" {
		result.Backend.HTTPVersion = tc.Backend.HTTPVersion
	}
	setDuration(&result.Backend.Timeout, tc.Backend.Timeout)
	setDuration(&result.Backend.PreloadInterval, tc.Backend.PreloadInterval)

	cb := tc.Backend.CircuitBreaker
	if cb.Enabled != nil {
		result.Backend.CircuitBreakerEnabled = *cb.Enabled
	}
	if cb.Requests != 0 {
		result.Backend.CircuitBreakerRequests = cb.Requests
	}
	if cb.Ratio != 0 {
		result.Backend.CircuitBreakerRatio = cb.Ratio
	}
	if cb.MinRequests != 0 {
		result.Backend.CircuitBreakerMinRequests = cb.MinRequests
	}
	setDuration(&result.Backend.CircuitBreakerInterval, cb.Interval)
	setDuration(&result.Backend.CircuitBreakerTimeout, cb.Timeout)

	setDuration(&result.Resolve.Timeout, tc.Resolve.Timeout)
	setDuration(&result.Resolve.LayoutRetryInterval, tc.Resolve.LayoutRetryInterval)
	setDuration(&result.Resolve.LayoutRefreshInterval, tc.Resolve.LayoutRefreshInterval)
	setDuration(&result.Resolve.LibraryPollInterval, tc.Resolve.LibraryPollInterval)
	if tc.Resolve.FlameGraphLibraryURL != "" {
		result.Resolve.FlameGraphLibraryURL = tc.Resolve.FlameGraphLibraryURL
	}

	if tc.Scope.Store != "" {
		result.Scope.Store = tc.Scope.Store
	}
	if tc.Scope.CookieName != "" {
		result.Scope.CookieName = tc.Scope.CookieName
	}
	setDuration(&result.Scope.TTL, tc.Scope.TTL)

	if tc.Redis.Addr != "" {
		result.Redis.Addr = tc.Redis.Addr
	}
	if tc.Redis.Password != "" {
		result.Redis.Password = tc.Redis.Password
	}
	if tc.Redis.DB != 0 {
		result.Redis.DB = tc.Redis.DB
	}
	if tc.Redis.Prefix != "" {
		result.Redis.Prefix = tc.Redis.Prefix
	}

	if tc.DevMode {
		result.DevMode = true
	}

	return &result
}

func setDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
	}
}

// mergeConfigs merges two configs: values whose environment variable is
// explicitly set take precedence over the file
func mergeConfigs(base, override *Config) *Config {
	result := *base

	// HTTP
	if envSet("HTTP_PORT") {
		result.HTTP.Port = override.HTTP.Port
	}
	if envSet("CORS_ORIGINS") {
		result.HTTP.CORSOrigins = override.HTTP.CORSOrigins
	}

	// Backend
	if envSet("BACKEND_BASE_URL") {
		result.Backend.BaseURL = override.Backend.BaseURL
	}
	if envSet("BACKEND_TIMEOUT") {
		result.Backend.Timeout = override.Backend.Timeout
	}
	if envSet("BACKEND_HTTP_VERSION") {
		result.Backend.HTTPVersion = override.Backend.HTTPVersion
	}
	if envSet("BACKEND_CIRCUIT_BREAKER_ENABLED") {
		result.Backend.CircuitBreakerEnabled = override.Backend.CircuitBreakerEnabled
	}
	if envSet("BACKEND_PRELOAD_INTERVAL") {
		result.Backend.PreloadInterval = override.Backend.PreloadInterval
	}

	// Resolve
	if envSet("RESOLVE_TIMEOUT") {
		result.Resolve.Timeout = override.Resolve.Timeout
	}
	if envSet("FLAME_GRAPH_LIBRARY_URL") {
		result.Resolve.FlameGraphLibraryURL = override.Resolve.FlameGraphLibraryURL
	}

	// Scope
	if envSet("SCOPE_STORE") {
		result.Scope.Store = override.Scope.Store
	}
	if envSet("SCOPE_TTL") {
		result.Scope.TTL = override.Scope.TTL
	}

	// Redis
	if envSet("REDIS_ADDR") {
		result.Redis.Addr = override.Redis.Addr
	}
	if envSet("REDIS_PASSWORD") {
		result.Redis.Password = override.Redis.Password
	}

	// General
	if override.DevMode {
		result.DevMode = true
	}

	return &result
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

// WriteExampleConfig writes an example configuration file
func WriteExampleConfig(path string) error {
	example := `# Agent console configuration
# Environment variables override these settings

dev_mode = false

[http]
port = 4000
cors_origins = ["http://localhost:4000"]

[backend]
base_url = "http://localhost:4001/"
timeout = "30s"
http_version = "HTTP_1_1"  # HTTP_1_1 or HTTP_2
# Minimum spacing between classpath cache warm-ups; 0 sends one per load
preload_interval = "0s"

[backend.circuit_breaker]
enabled = true
requests = 5
interval = "60s"
ratio = 0.5
timeout = "5s"
min_requests = 10

[resolve]
timeout = "10s"
layout_retry_interval = "2s"
layout_refresh_interval = "5m"
flame_graph_library_url = ""  # empty: serve the embedded copy
library_poll_interval = "100ms"

[scope]
store = "memory"  # memory or redis
ttl = "30m"
cookie_name = "console_scope"

[redis]
addr = "localhost:6379"
password = ""
db = 0
prefix = "agentconsole:scope:"
`

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}
