// Package route declares the console's page routes and mounts them on chi.
package route

import (
	"fmt"
	"strings"

	"go.agentconsole.tech/internal/console/readiness"
)

// DefaultPath is where unmatched paths are redirected
const DefaultPath = "/performance"

// Route maps a URL pattern to a view template and its controller.
// Child routes name a Parent; their URL is appended to the parent's and
// their template renders inside the parent's template.
type Route struct {
	Name       string
	URL        string
	Template   string
	Controller string

	// Resolve lists readiness gates that must be published before rendering
	Resolve []string

	// Locals are fixed values handed to the controller
	Locals map[string]string

	Parent string

	// Query lists query parameters the view reads
	Query []string
}

// Table is the immutable list of routes
type Table struct {
	routes []Route
	byName map[string]int
}

// NewTable builds a table from routes. Child URLs are resolved against
// their parent, so the parent must come first.
func NewTable(routes []Route) (Table, error) {
	t := Table{
		routes: make([]Route, 0, len(routes)),
		byName: make(map[string]int, len(routes)),
	}

	for _, r := range routes {
		if r.Parent != "" {
			i, ok := t.byName[r.Parent]
			if !ok {
				return Table{}, fmt.Errorf("route %s: parent %s not declared before it", r.Name, r.Parent)
			}
			r.URL = strings.TrimSuffix(t.routes[i].URL, "/") + r.URL
		}
		if _, dup := t.byName[r.Name]; dup {
			return Table{}, fmt.Errorf("duplicate route name %s", r.Name)
		}
		t.byName[r.Name] = len(t.routes)
		t.routes = append(t.routes, copyRoute(r))
	}

	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Default returns the console route table
func Default() Table {
	t, err := NewTable(defaultRoutes())
	if err != nil {
		panic("invalid default route table: " + err.Error())
	}
	return t
}

func defaultRoutes() []Route {
	layout := []string{readiness.Layout}

	return []Route{
		{Name: "performance", URL: "/performance", Template: "views/performance.html", Controller: "PerformanceCtrl", Resolve: layout, Query: []string{"transaction-type"}},
		{Name: "performance-flame-graph", URL: "/performance/flame-graph", Template: "views/performance-flame-graph.html", Controller: "PerformanceFlameGraphCtrl", Resolve: []string{readiness.FlameGraphLibrary}},
		{Name: "errors", URL: "/errors", Template: "views/errors.html", Controller: "ErrorsCtrl", Resolve: layout, Query: []string{"transaction-type"}},
		{Name: "traces", URL: "/traces", Template: "views/traces.html", Controller: "TracesCtrl", Resolve: layout},

		{Name: "jvm", URL: "/jvm", Template: "views/jvm.html", Controller: "JvmCtrl"},
		{Name: "jvm.gauges", Parent: "jvm", URL: "/gauges", Template: "views/jvm/gauges.html", Controller: "JvmGaugesCtrl", Resolve: layout},
		{Name: "jvm.mbeanTree", Parent: "jvm", URL: "/mbean-tree", Template: "views/jvm/mbean-tree.html", Controller: "JvmMBeanTreeCtrl"},
		{Name: "jvm.threadDump", Parent: "jvm", URL: "/thread-dump", Template: "views/jvm/thread-dump.html", Controller: "JvmThreadDumpCtrl"},
		{Name: "jvm.heapDump", Parent: "jvm", URL: "/heap-dump", Template: "views/jvm/heap-dump.html", Controller: "JvmHeapDumpCtrl"},
		{Name: "jvm.processInfo", Parent: "jvm", URL: "/process-info", Template: "views/jvm/process-info.html", Controller: "JvmProcessInfoCtrl"},
		{Name: "jvm.systemProperties", Parent: "jvm", URL: "/system-properties", Template: "views/jvm/system-properties.html", Controller: "JvmSystemPropertiesCtrl"},
		{Name: "jvm.capabilities", Parent: "jvm", URL: "/capabilities", Template: "views/jvm/capabilities.html", Controller: "JvmCapabilitiesCtrl"},

		{Name: "config", URL: "/config", Template: "views/config.html", Controller: "ConfigCtrl"},
		{Name: "config.traces", Parent: "config", URL: "/traces", Template: "views/config/traces.html", Controller: "ConfigCommonCtrl", Locals: map[string]string{"backendUrl": "backend/config/trace"}},
		{Name: "config.profiling", Parent: "config", URL: "/profiling", Template: "views/config/profiling.html", Controller: "ConfigCommonCtrl", Locals: map[string]string{"backendUrl": "backend/config/profiling"}},
		{Name: "config.userRecording", Parent: "config", URL: "/user-recording", Template: "views/config/user-recording.html", Controller: "ConfigCommonCtrl", Locals: map[string]string{"backendUrl": "backend/config/user-recording"}},
		{Name: "config.pointcuts", Parent: "config", URL: "/pointcuts", Template: "views/config/pointcut-list.html", Controller: "ConfigPointcutListCtrl"},
		{Name: "config.gauges", Parent: "config", URL: "/gauges", Template: "views/config/gauge-list.html", Controller: "ConfigGaugeListCtrl"},
		{Name: "config.storage", Parent: "config", URL: "/storage", Template: "views/config/storage.html", Controller: "ConfigStorageCtrl"},
		{Name: "config.userInterface", Parent: "config", URL: "/user-interface", Template: "views/config/user-interface.html", Controller: "ConfigUserInterfaceCtrl"},
		{Name: "config.advanced", Parent: "config", URL: "/advanced", Template: "views/config/advanced.html", Controller: "ConfigCommonCtrl", Locals: map[string]string{"backendUrl": "backend/config/advanced"}},
		{Name: "config.plugin", Parent: "config", URL: "/plugin/{pluginId}", Template: "views/config/plugin.html", Controller: "ConfigPluginCtrl"},

		{Name: "login", URL: "/login", Template: "views/login.html", Controller: "LoginCtrl"},
	}
}

// Routes returns a copy of the routes in declaration order
func (t Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = copyRoute(r)
	}
	return out
}

// Find returns the named route
func (t Table) Find(name string) (Route, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Route{}, false
	}
	return copyRoute(t.routes[i]), true
}

// ParentTemplate returns the template of r's parent, or "" for a top-level route
func (t Table) ParentTemplate(r Route) string {
	if r.Parent == "" {
		return ""
	}
	if p, ok := t.Find(r.Parent); ok {
		return p.Template
	}
	return ""
}

// Locals returns every distinct value of the named local across the table
func (t Table) Locals(key string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.routes {
		if v, ok := r.Locals[key]; ok && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Validate checks that names and URLs are unique, parents exist and every
// route names a template and a controller
func (t Table) Validate() error {
	names := make(map[string]bool, len(t.routes))
	urls := make(map[string]string, len(t.routes))

	for _, r := range t.routes {
		if r.Name == "" {
			return fmt.Errorf("route with URL %s has no name", r.URL)
		}
		if names[r.Name] {
			return fmt.Errorf("duplicate route name %s", r.Name)
		}
		names[r.Name] = true

		if !strings.HasPrefix(r.URL, "/") {
			return fmt.Errorf("route %s: URL %q must start with /", r.Name, r.URL)
		}
		if other, dup := urls[r.URL]; dup {
			return fmt.Errorf("routes %s and %s share URL %s", other, r.Name, r.URL)
		}
		urls[r.URL] = r.Name

		if r.Template == "" {
			return fmt.Errorf("route %s has no template", r.Name)
		}
		if r.Controller == "" {
			return fmt.Errorf("route %s has no controller", r.Name)
		}
	}

	for _, r := range t.routes {
		if r.Parent != "" && !names[r.Parent] {
			return fmt.Errorf("route %s: unknown parent %s", r.Name, r.Parent)
		}
	}

	return nil
}

func copyRoute(r Route) Route {
	if r.Resolve != nil {
		r.Resolve = append([]string(nil), r.Resolve...)
	}
	if r.Query != nil {
		r.Query = append([]string(nil), r.Query...)
	}
	if r.Locals != nil {
		locals := make(map[string]string, len(r.Locals))
		for k, v := range r.Locals {
			locals[k] = v
		}
		r.Locals = locals
	}
	return r
}
