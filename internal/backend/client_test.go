package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func newTestClient(t *testing.T, server *httptest.Server, mutate func(*ClientConfig)) *Client {
	t.Helper()

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL
	cfg.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.BaseURL = "not a url"

	if _, err := NewClient(cfg); err == nil {
		t.Error("Expected error for base URL without scheme and host")
	}
}

func TestClient_Pointcuts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/backend/config/pointcut" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"configs": [
				{"adviceKind": "timer", "className": "com.example.Foo", "version": "abc"},
				{"adviceKind": "metric", "priority": 12345678901234567}
			],
			"jvmOutOfSync": true,
			"jvmRetransformClassesSupported": true
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	resp, err := client.Pointcuts(context.Background())
	if err != nil {
		t.Fatalf("Pointcuts returned error: %v", err)
	}

	if len(resp.Configs) != 2 {
		t.Fatalf("Expected 2 configs, got %d", len(resp.Configs))
	}
	if !resp.JVMOutOfSync || !resp.JVMRetransformClassesSupported {
		t.Errorf("Expected both flags true, got %+v", resp)
	}
	if resp.Configs[0]["className"] != "com.example.Foo" {
		t.Errorf("Expected className passed through, got %v", resp.Configs[0]["className"])
	}

	// Large integers survive the round trip untouched
	if n, ok := resp.Configs[1]["priority"].(json.Number); !ok || n.String() != "12345678901234567" {
		t.Errorf("Expected exact number, got %#v", resp.Configs[1]["priority"])
	}
}

func TestClient_ReweavePointcuts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/backend/admin/reweave-pointcuts" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Errorf("Expected empty body, got %q", body)
		}
		w.Write([]byte(`{"classes": 3}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	classes, err := client.ReweavePointcuts(context.Background())
	if err != nil {
		t.Fatalf("ReweavePointcuts returned error: %v", err)
	}
	if classes != 3 {
		t.Errorf("Expected 3 classes, got %d", classes)
	}
}

func TestClient_Non2xxReturnsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent not connected", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *ClientConfig) { c.CircuitBreakerEnabled = false })

	_, err := client.Pointcuts(context.Background())
	if err == nil {
		t.Fatal("Expected error for 503 response")
	}

	httpErr, ok := IsHTTPError(err)
	if !ok {
		t.Fatalf("Expected HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", httpErr.StatusCode)
	}
	if httpErr.Method != http.MethodGet || httpErr.Path != PathPointcutConfig {
		t.Errorf("Unexpected request identity %s %s", httpErr.Method, httpErr.Path)
	}
	if httpErr.Body != "agent not connected\n" {
		t.Errorf("Expected body preserved, got %q", httpErr.Body)
	}
}

func TestClient_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, server, func(c *ClientConfig) { c.CircuitBreakerEnabled = false })
	server.Close()

	err := client.Ping(context.Background())
	if err == nil {
		t.Fatal("Expected error for closed server")
	}
	if _, ok := IsHTTPError(err); ok {
		t.Error("Connection failure must not be reported as HTTPError")
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *ClientConfig) {
		c.CircuitBreakerMinRequests = 2
		c.CircuitBreakerRatio = 0.5
		c.CircuitBreakerTimeout = time.Minute
	})

	for i := 0; i < 2; i++ {
		client.Ping(context.Background())
	}

	if client.State() != gobreaker.StateOpen {
		t.Fatalf("Expected breaker open, got %s", client.State())
	}

	err := client.Ping(context.Background())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected wrapped gobreaker.ErrOpenState, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected open breaker to skip the request, got %d calls", calls)
	}
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *ClientConfig) { c.CircuitBreakerMinRequests = 1 })

	for i := 0; i < 5; i++ {
		client.PluginConfig(context.Background(), "missing")
	}

	if client.State() != gobreaker.StateClosed {
		t.Errorf("Expected breaker closed after 404s, got %s", client.State())
	}
}

func TestClient_SaveConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/backend/config/trace" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		var doc map[string]interface{}
		json.NewDecoder(r.Body).Decode(&doc)
		doc["version"] = "next"
		json.NewEncoder(w).Encode(doc)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	updated, err := client.SaveConfig(context.Background(), PathTraceConfig, Document{"storeThresholdMillis": 500})
	if err != nil {
		t.Fatalf("SaveConfig returned error: %v", err)
	}
	if updated["version"] != "next" {
		t.Errorf("Expected updated document, got %v", updated)
	}
}

func TestPluginConfigPath_Escapes(t *testing.T) {
	if got := PluginConfigPath("jdbc"); got != "backend/config/plugin/jdbc" {
		t.Errorf("Unexpected path %s", got)
	}
	if got := PluginConfigPath("a/b"); got != "backend/config/plugin/a%2Fb" {
		t.Errorf("Expected escaped plugin id, got %s", got)
	}
}

func TestClient_BaseURLWithPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent/backend/layout" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"footerMessage": "ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *ClientConfig) { c.BaseURL = server.URL + "/agent" })

	layout, err := client.Layout(context.Background())
	if err != nil {
		t.Fatalf("Layout returned error: %v", err)
	}
	if layout["footerMessage"] != "ok" {
		t.Errorf("Unexpected layout %v", layout)
	}
}

func TestClient_WarmClasspathCache_DetachedAndThrottled(t *testing.T) {
	hits := make(chan struct{}, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/backend/config/preload-classpath-cache" {
			hits <- struct{}{}
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *ClientConfig) { c.PreloadInterval = time.Hour })

	// The triggering request is already gone by the time the preload runs
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client.WarmClasspathCache(ctx)
	client.WarmClasspathCache(context.Background())

	select {
	case <-hits:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected preload request despite cancelled caller context")
	}

	select {
	case <-hits:
		t.Error("Expected second preload within the interval to be skipped")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestIsConfigPath(t *testing.T) {
	tests := map[string]bool{
		PathTraceConfig:                  true,
		PathProfilingConfig:              true,
		PathUserRecordingConfig:          true,
		PathAdvancedConfig:               true,
		PluginConfigPath("jdbc"):         true,
		PluginConfigPath("a/b"):          true,
		"backend/config/plugin/":         false,
		"backend/config/plugin/a/b":      false,
		PathPointcutConfig:               false,
		PathReweavePointcuts:             false,
		"http://elsewhere/backend/trace": false,
	}

	for path, want := range tests {
		if got := IsConfigPath(path); got != want {
			t.Errorf("IsConfigPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestClient_WarmClasspathCache_UnthrottledByDefault(t *testing.T) {
	hits := make(chan struct{}, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/backend/config/preload-classpath-cache" {
			hits <- struct{}{}
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	client.WarmClasspathCache(context.Background())
	client.WarmClasspathCache(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-hits:
		case <-time.After(5 * time.Second):
			t.Fatalf("Expected a preload per call, got %d", i)
		}
	}
}
