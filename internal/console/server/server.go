// Package server assembles the console's HTTP handler
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.agentconsole.tech/internal/common/health"
	"go.agentconsole.tech/internal/console/api"
	"go.agentconsole.tech/internal/console/controller"
	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/route"
	"go.agentconsole.tech/internal/console/view"
)

// Options are the components served by the console
type Options struct {
	Table  route.Table
	Binder route.Binder

	Errors    *httperrors.Handler
	Pointcuts *controller.PointcutAPI
	Configs   *controller.ConfigAPI
	Health    *health.Checker

	// BackendURL is the target of the /backend proxy
	BackendURL  string
	CORSOrigins []string
}

// New creates the console router
func New(opts Options) (http.Handler, error) {
	proxy, err := newBackendProxy(opts.BackendURL)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	if opts.Health != nil {
		r.Get("/q/health", opts.Health.HandleHealth)
		r.Get("/q/health/live", opts.Health.HandleLive)
		r.Get("/q/health/ready", opts.Health.HandleReady)
	}

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	r.Handle("/static/*", http.StripPrefix("/static", view.StaticHandler()))
	r.Handle("/backend/*", proxy)

	r.Route("/console/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			api.WriteNotFound(w, "Unknown API endpoint")
		})
		if opts.Pointcuts != nil {
			opts.Pointcuts.RegisterRoutes(r)
		}
		if opts.Configs != nil {
			opts.Configs.RegisterRoutes(r)
		}
		if opts.Errors != nil {
			opts.Errors.RegisterRoutes(r)
		}
	})

	route.Mount(r, opts.Table, opts.Binder)

	return r, nil
}

// newBackendProxy forwards view data requests to the backend unchanged
func newBackendProxy(baseURL string) (http.Handler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host required", baseURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Warn("Backend proxy request failed", "path", r.URL.Path, "error", err)
			api.WriteError(w, http.StatusBadGateway, "backend_unavailable", "Unable to reach backend")
		},
	}, nil
}
