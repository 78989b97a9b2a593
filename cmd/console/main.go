// Agent Console
//
// Serves the monitoring console pages and their JSON endpoints, and proxies
// view data requests to the monitoring backend.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.agentconsole.tech/internal/backend"
	"go.agentconsole.tech/internal/common/health"
	"go.agentconsole.tech/internal/common/lifecycle"
	"go.agentconsole.tech/internal/config"
	"go.agentconsole.tech/internal/console/controller"
	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/layout"
	"go.agentconsole.tech/internal/console/readiness"
	"go.agentconsole.tech/internal/console/route"
	"go.agentconsole.tech/internal/console/scope"
	"go.agentconsole.tech/internal/console/server"
	"go.agentconsole.tech/internal/console/view"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Configure logging
	setupLogging()

	// console init-config [path] writes an example configuration file
	if len(os.Args) > 1 && os.Args[1] == "init-config" {
		path := config.ConfigPaths[0]
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		if err := config.WriteExampleConfig(path); err != nil {
			slog.Error("Failed to write example config", "path", path, "error", err)
			os.Exit(1)
		}
		slog.Info("Wrote example config", "path", path)
		return
	}

	slog.Info("Starting Agent Console",
		"version", version,
		"build_time", buildTime,
		"component", "console")

	ctx := context.Background()

	// ========================================
	// 1. INFRASTRUCTURE INITIALIZATION
	// ========================================
	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	cfg := app.Config

	if cfg.DevMode {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	client, err := backend.NewClient(backendConfig(cfg))
	if err != nil {
		slog.Error("Failed to create backend client", "error", err)
		os.Exit(1)
	}

	// ========================================
	// 2. READINESS GATES
	// ========================================
	gates := readiness.NewRegistry(readiness.Layout, readiness.FlameGraphLibrary)

	layoutLoader := layout.NewLoader(client, gates.Gate(readiness.Layout),
		cfg.Resolve.LayoutRetryInterval, cfg.Resolve.LayoutRefreshInterval)

	libraryProbe := readiness.NewLibraryProbe(gates.Gate(readiness.FlameGraphLibrary),
		cfg.Resolve.FlameGraphLibraryURL, cfg.Resolve.LibraryPollInterval)

	libraryURL := cfg.Resolve.FlameGraphLibraryURL
	if libraryURL == "" {
		libraryURL = "/static/" + view.FlameGraphLibraryPath
	}

	// ========================================
	// 3. COMPONENT WIRING
	// ========================================
	supervisor := lifecycle.NewSupervisor()

	store, storeService, storeCheck := setupScopeStore(app)
	if storeService != nil {
		supervisor.Add(storeService)
	}

	errorHandler := httperrors.NewHandler(httperrors.NewLog(0))
	scopes := controller.NewScopes(store, scope.Cookies{Name: cfg.Scope.CookieName, TTL: cfg.Scope.TTL}, client, errorHandler)

	renderer := view.NewRenderer()
	table := route.Default()
	if err := preloadViews(renderer, table); err != nil {
		slog.Error("Failed to parse views", "error", err)
		os.Exit(1)
	}

	// Health checker
	healthChecker := health.NewChecker()
	healthChecker.AddReadinessCheck(health.ReadinessGatesCheck(gates.Status))
	healthChecker.AddReadinessCheck(health.BackendCheck(func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(checkCtx)
	}, func() string { return client.State().String() }))
	healthChecker.AddReadinessCheck(health.ServicesCheck(supervisor.Health))
	if storeCheck != nil {
		healthChecker.AddReadinessCheck(storeCheck)
	}

	httpRouter, err := server.New(server.Options{
		Table: table,
		Binder: route.Binder{
			Gates: gates,
			Controllers: controller.Factories(controller.Deps{
				Config:    client,
				Errors:    errorHandler,
				Pointcuts: scopes,
			}),
			Renderer: renderer,
			Layout: func() map[string]interface{} {
				return layoutLoader.View(map[string]interface{}{"flameGraphLibraryUrl": libraryURL})
			},
			Nav:            route.DefaultNav(),
			ResolveTimeout: cfg.Resolve.Timeout,
		},
		Errors:      errorHandler,
		Pointcuts:   controller.NewPointcutAPI(scopes),
		Configs:     controller.NewConfigAPI(client, errorHandler),
		Health:      healthChecker,
		BackendURL:  cfg.Backend.BaseURL,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})
	if err != nil {
		slog.Error("Failed to create HTTP router", "error", err)
		os.Exit(1)
	}

	// HTTP Server. WriteTimeout covers the resolve wait and the backend call.
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Resolve.Timeout + cfg.Backend.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ========================================
	// 4. SERVICE STARTUP
	// ========================================
	supervisor.Add(
		layoutLoader,
		libraryProbe,
		lifecycle.NewHTTPService("http-server", httpServer),
	)

	slog.Info("Console ready",
		"port", cfg.HTTP.Port,
		"backend", cfg.Backend.BaseURL,
		"scopeStore", cfg.Scope.Store,
		"routes", len(table.Routes()))

	// ========================================
	// 5. RUN UNTIL SHUTDOWN
	// ========================================
	if err := lifecycle.Run(ctx, supervisor); err != nil {
		slog.Error("Service error", "error", err)
		os.Exit(1)
	}

	slog.Info("Agent Console stopped")
}

// setupLogging configures the slog default logger.
func setupLogging() {
	logLevel := slog.LevelInfo
	if os.Getenv("CONSOLE_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func backendConfig(cfg *config.Config) *backend.ClientConfig {
	return &backend.ClientConfig{
		BaseURL:                   cfg.Backend.BaseURL,
		Timeout:                   cfg.Backend.Timeout,
		HTTPVersion:               backend.HTTPVersion(cfg.Backend.HTTPVersion),
		CircuitBreakerEnabled:     cfg.Backend.CircuitBreakerEnabled,
		CircuitBreakerRequests:    cfg.Backend.CircuitBreakerRequests,
		CircuitBreakerInterval:    cfg.Backend.CircuitBreakerInterval,
		CircuitBreakerRatio:       cfg.Backend.CircuitBreakerRatio,
		CircuitBreakerTimeout:     cfg.Backend.CircuitBreakerTimeout,
		CircuitBreakerMinRequests: cfg.Backend.CircuitBreakerMinRequests,
		PreloadInterval:           cfg.Backend.PreloadInterval,
	}
}

// setupScopeStore picks the navigation scope store. The memory store runs a
// sweep service; the Redis store contributes a readiness check.
func setupScopeStore(app *lifecycle.App) (scope.Store, lifecycle.Service, health.CheckFunc) {
	cfg := app.Config

	if app.Redis != nil && cfg.Scope.Store == "redis" {
		store := scope.NewRedisStore(app.Redis, cfg.Redis.Prefix, cfg.Scope.TTL)
		// A retransform holds its scope for one backend call
		store.SetLockTTL(cfg.Backend.Timeout + 5*time.Second)
		check := health.RedisCheck(func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return store.Ping(checkCtx)
		})
		slog.Info("Using Redis scope store", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		return store, nil, check
	}

	store := scope.NewMemoryStore(cfg.Scope.TTL)
	sweeper := lifecycle.NewServiceFunc("scope-sweeper", store.Start, func(ctx context.Context) error {
		store.Clear()
		return nil
	})
	slog.Info("Using in-memory scope store", "ttl", cfg.Scope.TTL)
	return store, sweeper, nil
}

// preloadViews parses every route's view so template errors fail startup
func preloadViews(renderer *view.Renderer, table route.Table) error {
	views := map[string]string{route.UnavailableTemplate: ""}
	for _, rt := range table.Routes() {
		views[rt.Template] = table.ParentTemplate(rt)
	}
	return renderer.Preload(views)
}
