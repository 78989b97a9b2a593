package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"go.agentconsole.tech/internal/config"
)

// App holds initialized infrastructure that is guaranteed to be connected.
// If you have an *App with a non-nil Redis client, Redis answered a ping.
//
// Console state (routes, gates, controllers) is wired in cmd/console, not here.
type App struct {
	Config *config.Config

	// Redis backs the shared scope store. Nil when scopes live in memory.
	Redis *redis.Client

	// Internal cleanup - call AddCleanup to register cleanup functions
	cleanupFuncs []func() error
}

// AppOptions configures which infrastructure to initialize.
type AppOptions struct {
	// Config overrides loading from file and environment
	Config *config.Config

	// NeedsRedis forces a Redis connection even when the scope store is "memory"
	NeedsRedis bool
}

// Initialize creates an App with connected infrastructure.
// Returns an error if any required connection fails.
//
// Usage:
//
//	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func Initialize(ctx context.Context, opts AppOptions) (*App, func(), error) {
	app := &App{Config: opts.Config}

	if app.Config == nil {
		cfg, err := config.LoadWithFile()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		app.Config = cfg
	}

	if opts.NeedsRedis || app.Config.Scope.Store == "redis" {
		if err := app.initRedis(ctx); err != nil {
			app.Cleanup()
			return nil, nil, err
		}
	}

	cleanup := func() {
		app.Cleanup()
	}

	return app, cleanup, nil
}

// AddCleanup registers a cleanup function to be called on shutdown.
// Functions are called in reverse order of registration.
func (app *App) AddCleanup(fn func() error) {
	app.cleanupFuncs = append(app.cleanupFuncs, fn)
}

// initRedis connects to Redis and verifies the connection with a ping.
func (app *App) initRedis(ctx context.Context) error {
	cfg := app.Config

	slog.Info("Connecting to Redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: 10 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	app.Redis = client

	app.AddCleanup(func() error {
		slog.Info("Closing Redis connection")
		return client.Close()
	})

	slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	return nil
}

// Cleanup runs all cleanup functions in reverse order.
func (app *App) Cleanup() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		if err := app.cleanupFuncs[i](); err != nil {
			slog.Error("Cleanup error", "error", err)
		}
	}
	app.cleanupFuncs = nil
}
