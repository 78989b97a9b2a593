package route

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"go.agentconsole.tech/internal/common/metrics"
	"go.agentconsole.tech/internal/console/view"
)

// UnavailableTemplate is rendered when a route's preconditions do not resolve in time
const UnavailableTemplate = "views/unavailable.html"

// Navigation is one matched request handed to a route's controller
type Navigation struct {
	Route   Route
	Params  map[string]string
	Query   url.Values
	Writer  http.ResponseWriter
	Request *http.Request
}

// Param returns a URL parameter
func (n *Navigation) Param(name string) string {
	return n.Params[name]
}

// Local returns a fixed route value
func (n *Navigation) Local(name string) string {
	return n.Route.Locals[name]
}

// Controller prepares the view model for one navigation
type Controller interface {
	Load(ctx context.Context, nav *Navigation) (interface{}, error)
}

// ControllerFunc adapts a function to the Controller interface
type ControllerFunc func(ctx context.Context, nav *Navigation) (interface{}, error)

// Load calls f
func (f ControllerFunc) Load(ctx context.Context, nav *Navigation) (interface{}, error) {
	return f(ctx, nav)
}

// Factory creates a controller instance for one navigation
type Factory func() Controller

// Gates waits on named readiness gates
type Gates interface {
	WaitAll(ctx context.Context, names ...string) error
}

// Renderer renders a view nested in an optional parent view
type Renderer interface {
	Render(w io.Writer, parent, path string, page *view.Page) error
}

// Binder supplies everything Mount needs to serve a route
type Binder struct {
	Gates       Gates
	Controllers map[string]Factory
	Renderer    Renderer

	// Layout returns the current shared layout, nil before it is loaded
	Layout func() map[string]interface{}

	Nav            []view.NavItem
	ResolveTimeout time.Duration
}

// Mount registers every route of t on r. Unmatched paths are redirected to
// DefaultPath.
func Mount(r chi.Router, t Table, b Binder) {
	for _, rt := range t.Routes() {
		r.Get(rt.URL, b.handler(rt, t.ParentTemplate(rt)))
	}

	r.Get("/", redirectDefault)
	r.NotFound(redirectDefault)
}

func redirectDefault(w http.ResponseWriter, r *http.Request) {
	metrics.RouteFallbackRedirects.Inc()
	http.Redirect(w, r, DefaultPath, http.StatusFound)
}

func (b Binder) handler(rt Route, parent string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if len(rt.Resolve) > 0 && b.Gates != nil {
			start := time.Now()
			err := b.wait(ctx, rt.Resolve)
			metrics.RouteResolveDuration.WithLabelValues(rt.Name).Observe(time.Since(start).Seconds())
			if err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return
				}
				metrics.RouteNavigations.WithLabelValues(rt.Name, "resolve_timeout").Inc()
				slog.Warn("Route preconditions not ready", "route", rt.Name, "resolve", rt.Resolve, "error", err)
				b.render(w, http.StatusServiceUnavailable, rt, "", UnavailableTemplate, r, nil, "This page is waiting on "+strings.Join(rt.Resolve, ", ")+".")
				return
			}
		}

		nav := &Navigation{
			Route:   rt,
			Params:  urlParams(r),
			Query:   r.URL.Query(),
			Writer:  w,
			Request: r,
		}

		var data interface{}
		if factory, ok := b.Controllers[rt.Controller]; ok {
			var err error
			data, err = factory().Load(ctx, nav)
			if err != nil {
				metrics.RouteNavigations.WithLabelValues(rt.Name, "controller_error").Inc()
				slog.Error("Controller failed", "route", rt.Name, "controller", rt.Controller, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}

		if b.render(w, http.StatusOK, rt, parent, rt.Template, r, nav.Params, data) {
			metrics.RouteNavigations.WithLabelValues(rt.Name, "rendered").Inc()
		}
	}
}

func (b Binder) wait(ctx context.Context, gates []string) error {
	if b.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.ResolveTimeout)
		defer cancel()
	}
	return b.Gates.WaitAll(ctx, gates...)
}

func (b Binder) render(w http.ResponseWriter, status int, rt Route, parent, path string, r *http.Request, params map[string]string, data interface{}) bool {
	page := &view.Page{
		Title:     title(rt),
		Route:     rt.Name,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Params:    params,
		Nav:       activeNav(b.Nav, r.URL.Path),
		ScrollTop: true,
		Data:      data,
	}
	if b.Layout != nil {
		page.Layout = b.Layout()
	}

	var buf strings.Builder
	if err := b.Renderer.Render(&buf, parent, path, page); err != nil {
		metrics.RouteNavigations.WithLabelValues(rt.Name, "template_error").Inc()
		slog.Error("Failed to render view", "route", rt.Name, "template", path, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, buf.String()); err != nil {
		// Headers are out; all that is left is to note the dropped client
		slog.Debug("Failed to write view", "route", rt.Name, "error", err)
	}
	return true
}

func urlParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return map[string]string{}
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return params
}

func activeNav(items []view.NavItem, path string) []view.NavItem {
	out := make([]view.NavItem, len(items))
	for i, item := range items {
		item.Active = path == item.Href || strings.HasPrefix(path, item.Href+"/")
		out[i] = item
	}
	return out
}

// title derives a display title from the route name, "config.userRecording" -> "User Recording"
func title(rt Route) string {
	name := rt.Name
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for i, c := range name {
		switch {
		case c == '-':
			b.WriteByte(' ')
			continue
		case i == 0 || (i > 0 && name[i-1] == '-'):
			b.WriteString(strings.ToUpper(string(c)))
			continue
		case c >= 'A' && c <= 'Z':
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// DefaultNav is the top navigation bar
func DefaultNav() []view.NavItem {
	return []view.NavItem{
		{Label: "Performance", Href: "/performance"},
		{Label: "Errors", Href: "/errors"},
		{Label: "Traces", Href: "/traces"},
		{Label: "JVM", Href: "/jvm"},
		{Label: "Configuration", Href: "/config"},
	}
}
