package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the console
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// Backend monitoring service configuration
	Backend BackendConfig

	// Route resolve configuration (layout and chart library readiness)
	Resolve ResolveConfig

	// Scope storage configuration
	Scope ScopeConfig

	// Redis configuration (used when Scope.Store is "redis")
	Redis RedisConfig

	// Development mode
	DevMode bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// BackendConfig holds the backend client configuration
type BackendConfig struct {
	// BaseURL is prepended to the relative "backend/..." paths
	BaseURL string
	Timeout time.Duration

	// HTTPVersion is "HTTP_2" or "HTTP_1_1"
	HTTPVersion string

	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32
	CircuitBreakerInterval    time.Duration
	CircuitBreakerRatio       float64
	CircuitBreakerTimeout     time.Duration
	CircuitBreakerMinRequests uint32

	// PreloadInterval is the minimum spacing between classpath cache warm-ups.
	// Zero sends a warm-up for every pointcut load.
	PreloadInterval time.Duration
}

// ResolveConfig holds route precondition configuration
type ResolveConfig struct {
	// Timeout bounds how long a navigation waits on its preconditions
	Timeout time.Duration

	// LayoutRetryInterval is how often the layout is re-fetched until the first success
	LayoutRetryInterval time.Duration

	// LayoutRefreshInterval is how often the layout is refreshed after the first success
	LayoutRefreshInterval time.Duration

	// FlameGraphLibraryURL is the remote charting library; empty means the embedded copy is used
	FlameGraphLibraryURL string

	// LibraryPollInterval is how often a remote library is probed
	LibraryPollInterval time.Duration
}

// ScopeConfig holds per-navigation scope storage configuration
type ScopeConfig struct {
	Store      string // "memory" or "redis"
	TTL        time.Duration
	CookieName string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        getEnvInt("HTTP_PORT", 4000),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:4000"}),
		},

		Backend: BackendConfig{
			BaseURL:                   getEnv("BACKEND_BASE_URL", "http://localhost:4001/"),
			Timeout:                   getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
			HTTPVersion:               getEnv("BACKEND_HTTP_VERSION", "HTTP_1_1"),
			CircuitBreakerEnabled:     getEnvBool("BACKEND_CIRCUIT_BREAKER_ENABLED", true),
			CircuitBreakerRequests:    uint32(getEnvInt("BACKEND_CIRCUIT_BREAKER_REQUESTS", 5)),
			CircuitBreakerInterval:    getEnvDuration("BACKEND_CIRCUIT_BREAKER_INTERVAL", 60*time.Second),
			CircuitBreakerRatio:       getEnvFloat("BACKEND_CIRCUIT_BREAKER_RATIO", 0.5),
			CircuitBreakerTimeout:     getEnvDuration("BACKEND_CIRCUIT_BREAKER_TIMEOUT", 5*time.Second),
			CircuitBreakerMinRequests: uint32(getEnvInt("BACKEND_CIRCUIT_BREAKER_MIN_REQUESTS", 10)),
			PreloadInterval:           getEnvDuration("BACKEND_PRELOAD_INTERVAL", 0),
		},

		Resolve: ResolveConfig{
			Timeout:               getEnvDuration("RESOLVE_TIMEOUT", 10*time.Second),
			LayoutRetryInterval:   getEnvDuration("LAYOUT_RETRY_INTERVAL", 2*time.Second),
			LayoutRefreshInterval: getEnvDuration("LAYOUT_REFRESH_INTERVAL", 5*time.Minute),
			FlameGraphLibraryURL:  getEnv("FLAME_GRAPH_LIBRARY_URL", ""),
			LibraryPollInterval:   getEnvDuration("LIBRARY_POLL_INTERVAL", 100*time.Millisecond),
		},

		Scope: ScopeConfig{
			Store:      getEnv("SCOPE_STORE", "memory"),
			TTL:        getEnvDuration("SCOPE_TTL", 30*time.Minute),
			CookieName: getEnv("SCOPE_COOKIE_NAME", "console_scope"),
		},

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "agentconsole:scope:"),
		},

		DevMode: getEnvBool("CONSOLE_DEV", false),
	}

	return cfg, nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return defaultValue
}
