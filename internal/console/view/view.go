// Package view renders console pages from embedded html/template files.
//
// Every page is the base layout plus the route's view file. A child route
// renders inside its parent: the parent file defines "content" and calls
// {{template "view" .}}, the child file defines "view".
package view

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"sync"
)

//go:embed templates
var templateFS embed.FS

const baseTemplate = "templates/layout.html"

// NavItem is one entry of the top navigation bar
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

// Page is the data handed to every template
type Page struct {
	Title     string
	Route     string
	Path      string
	Query     url.Values
	Params    map[string]string
	Layout    map[string]interface{}
	Nav       []NavItem
	ScrollTop bool

	// Data is the controller's view model
	Data interface{}
}

// Renderer parses and caches page templates
type Renderer struct {
	fsys  fs.FS
	funcs template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewRenderer creates a renderer over the embedded templates
func NewRenderer() *Renderer {
	return NewRendererFS(templateFS)
}

// NewRendererFS creates a renderer over fsys, which must hold the same
// templates/ layout as the embedded files
func NewRendererFS(fsys fs.FS) *Renderer {
	return &Renderer{
		fsys:  fsys,
		funcs: funcMap(),
		cache: make(map[string]*template.Template),
	}
}

// Exists reports whether a view file exists for a route template path
// such as "views/config/pointcut-list.html"
func (r *Renderer) Exists(path string) bool {
	_, err := fs.Stat(r.fsys, "templates/"+path)
	return err == nil
}

// Render executes the page for view path, nested in parent when parent is
// not empty, and writes it to w. Nothing is written when execution fails.
func (r *Renderer) Render(w io.Writer, parent, path string, page *Page) error {
	tmpl, err := r.lookup(parent, path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// Preload parses every given view up front so template errors surface at startup
func (r *Renderer) Preload(views map[string]string) error {
	for path, parent := range views {
		if _, err := r.lookup(parent, path); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) lookup(parent, path string) (*template.Template, error) {
	key := parent + "|" + path

	r.mu.RLock()
	tmpl, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	files := []string{baseTemplate}
	if parent != "" {
		files = append(files, "templates/"+parent)
	}
	files = append(files, "templates/"+path)

	tmpl, err := template.New("layout.html").Funcs(r.funcs).ParseFS(r.fsys, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	r.mu.Lock()
	r.cache[key] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) (template.JS, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return template.JS(data), nil
		},
		"pretty": func(v interface{}) (string, error) {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		"param": func(p *Page, name string) string {
			if p == nil || p.Params == nil {
				return ""
			}
			return p.Params[name]
		},
		"query": func(p *Page, name string) string {
			if p == nil || p.Query == nil {
				return ""
			}
			return p.Query.Get(name)
		},
	}
}
