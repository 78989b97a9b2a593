package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"go.agentconsole.tech/internal/backend"
	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/pointcut"
	"go.agentconsole.tech/internal/console/route"
	"go.agentconsole.tech/internal/console/scope"
)

// MockConfigBackend is a mock implementation of ConfigBackend for testing
type MockConfigBackend struct {
	mu sync.Mutex

	Docs    map[string]backend.Document
	Err     error
	SaveErr error

	Requested []string
	Saved     map[string]backend.Document
}

func (m *MockConfigBackend) Config(ctx context.Context, path string) (backend.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requested = append(m.Requested, path)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Docs[path], nil
}

func (m *MockConfigBackend) PluginConfig(ctx context.Context, pluginID string) (backend.Document, error) {
	return m.Config(ctx, backend.PluginConfigPath(pluginID))
}

func (m *MockConfigBackend) SaveConfig(ctx context.Context, path string, doc backend.Document) (backend.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	if m.Saved == nil {
		m.Saved = make(map[string]backend.Document)
	}
	m.Saved[path] = doc
	return doc, nil
}

// MockPointcutBackend is a mock implementation of pointcut.Backend for testing
type MockPointcutBackend struct {
	mu sync.Mutex

	Resp       *backend.PointcutConfigs
	Err        error
	Classes    int
	ReweaveErr error

	ReweaveCalls int
}

func (m *MockPointcutBackend) Pointcuts(ctx context.Context) (*backend.PointcutConfigs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Resp, nil
}

func (m *MockPointcutBackend) ReweavePointcuts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReweaveCalls++
	return m.Classes, m.ReweaveErr
}

func (m *MockPointcutBackend) WarmClasspathCache(ctx context.Context) {}

func twoPointcuts(outOfSync bool) *backend.PointcutConfigs {
	return &backend.PointcutConfigs{
		Configs: []backend.Document{
			{"adviceKind": "timer", "className": "com.example.A"},
			{"adviceKind": "metric", "className": "com.example.B"},
		},
		JVMOutOfSync:                   outOfSync,
		JVMRetransformClassesSupported: true,
	}
}

func serverError(path string) error {
	return &backend.HTTPError{Method: http.MethodGet, Path: path, StatusCode: http.StatusInternalServerError}
}

func newNavigation(t *testing.T, name string, params map[string]string) *route.Navigation {
	t.Helper()
	rt, ok := route.Default().Find(name)
	if !ok {
		t.Fatalf("Route %s not found", name)
	}
	return &route.Navigation{
		Route:   rt,
		Params:  params,
		Writer:  httptest.NewRecorder(),
		Request: httptest.NewRequest(http.MethodGet, "/", nil),
	}
}

// === Factory Tests ===

func TestFactories_CoverDefaultRoutes(t *testing.T) {
	factories := Factories(Deps{})

	for _, rt := range route.Default().Routes() {
		factory, ok := factories[rt.Controller]
		if !ok {
			t.Errorf("Route %s: no factory for %s", rt.Name, rt.Controller)
			continue
		}
		if factory() == nil {
			t.Errorf("Route %s: factory returned nil", rt.Name)
		}
	}
}

func TestFactories_NewInstancePerCall(t *testing.T) {
	factory := Factories(Deps{})["ConfigPointcutListCtrl"]

	if factory() == factory() {
		t.Error("Expected a new controller instance per call")
	}
}

// === Config Controller Tests ===

func TestConfigCommonCtrl_LoadsRouteDocument(t *testing.T) {
	mock := &MockConfigBackend{Docs: map[string]backend.Document{
		backend.PathProfilingConfig: {"intervalMillis": json.Number("1000")},
	}}
	ctrl := Factories(Deps{Config: mock, Errors: httperrors.NewHandler(nil)})["ConfigCommonCtrl"]()

	data, err := ctrl.Load(context.Background(), newNavigation(t, "config.profiling", nil))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	v := data.(*ConfigView)
	if v.BackendURL != backend.PathProfilingConfig {
		t.Errorf("Expected backend URL %s, got %s", backend.PathProfilingConfig, v.BackendURL)
	}
	if v.Config["intervalMillis"] != json.Number("1000") {
		t.Errorf("Expected document passed through, got %v", v.Config)
	}
	if v.Error != nil {
		t.Errorf("Expected no error, got %+v", v.Error)
	}
}

func TestConfigCommonCtrl_FailureIsShown(t *testing.T) {
	handler := httperrors.NewHandler(nil)
	mock := &MockConfigBackend{Err: serverError(backend.PathTraceConfig)}
	ctrl := &ConfigCommonCtrl{backend: mock, errors: handler}

	data, err := ctrl.Load(context.Background(), newNavigation(t, "config.traces", nil))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	v := data.(*ConfigView)
	if v.Error == nil || v.Error.Kind != httperrors.KindStatus {
		t.Fatalf("Expected status failure, got %+v", v.Error)
	}
	if len(handler.Log().Recent(false)) != 1 {
		t.Error("Expected failure recorded by the shared handler")
	}
}

func TestConfigCommonCtrl_RequiresBackendURL(t *testing.T) {
	ctrl := &ConfigCommonCtrl{backend: &MockConfigBackend{}, errors: httperrors.NewHandler(nil)}

	if _, err := ctrl.Load(context.Background(), newNavigation(t, "config.storage", nil)); err == nil {
		t.Error("Expected error for route without backendUrl")
	}
}

func TestConfigPluginCtrl_UsesPluginPath(t *testing.T) {
	mock := &MockConfigBackend{Docs: map[string]backend.Document{
		"backend/config/plugin/abc": {"properties": []interface{}{}},
	}}
	ctrl := &ConfigPluginCtrl{backend: mock, errors: httperrors.NewHandler(nil)}

	data, err := ctrl.Load(context.Background(), newNavigation(t, "config.plugin", map[string]string{"pluginId": "abc"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	v := data.(*ConfigView)
	if v.BackendURL != "backend/config/plugin/abc" {
		t.Errorf("Expected plugin backend URL, got %s", v.BackendURL)
	}
	if len(mock.Requested) != 1 || mock.Requested[0] != "backend/config/plugin/abc" {
		t.Errorf("Expected plugin document requested, got %v", mock.Requested)
	}
}

// === Pointcut List Controller Tests ===

func newScopes(b pointcut.Backend) (*Scopes, *scope.MemoryStore) {
	store := scope.NewMemoryStore(time.Minute)
	return NewScopes(store, scope.Cookies{}, b, httperrors.NewHandler(nil)), store
}

func TestConfigPointcutListCtrl_LoadsAndSavesScope(t *testing.T) {
	scopes, store := newScopes(&MockPointcutBackend{Resp: twoPointcuts(true)})
	ctrl := &ConfigPointcutListCtrl{scopes: scopes}
	nav := newNavigation(t, "config.pointcuts", nil)

	data, err := ctrl.Load(context.Background(), nav)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	v := data.(*PointcutListView)
	if v.ScopeID == "" {
		t.Fatal("Expected a scope ID")
	}
	if !v.State.Loaded || !v.State.Dirty || !v.State.RetransformSupported {
		t.Errorf("Expected loaded, dirty and retransform supported, got %+v", v.State)
	}
	if len(v.State.Pointcuts) != 2 {
		t.Errorf("Expected 2 pointcuts, got %d", len(v.State.Pointcuts))
	}

	if cookie := nav.Writer.(*httptest.ResponseRecorder).Header().Get("Set-Cookie"); !strings.Contains(cookie, v.ScopeID) {
		t.Errorf("Expected scope cookie to be issued, got %q", cookie)
	}

	snap, err := store.Get(context.Background(), v.ScopeID)
	if err != nil || snap == nil {
		t.Fatalf("Expected saved scope, got %v, %v", snap, err)
	}
	if len(snap.Pointcuts.Pointcuts) != 2 {
		t.Errorf("Expected 2 saved pointcuts, got %d", len(snap.Pointcuts.Pointcuts))
	}
}

func TestConfigPointcutListCtrl_LoadFailure(t *testing.T) {
	scopes, store := newScopes(&MockPointcutBackend{Err: serverError(backend.PathPointcutConfig)})
	ctrl := &ConfigPointcutListCtrl{scopes: scopes}

	data, err := ctrl.Load(context.Background(), newNavigation(t, "config.pointcuts", nil))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	v := data.(*PointcutListView)
	if v.State.Loaded {
		t.Error("Expected list to stay unloaded")
	}
	if v.Error == nil || v.Error.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected recorded failure, got %+v", v.Error)
	}

	snap, _ := store.Get(context.Background(), v.ScopeID)
	if snap == nil || snap.LastError == nil {
		t.Error("Expected failure saved with the scope")
	}
}

// === Pointcut API Tests ===

type apiClient struct {
	t      *testing.T
	router http.Handler
	cookie *http.Cookie
}

func newAPIClient(t *testing.T, b pointcut.Backend) *apiClient {
	scopes, _ := newScopes(b)
	r := chi.NewRouter()
	NewPointcutAPI(scopes).RegisterRoutes(r)
	return &apiClient{t: t, router: r}
}

func (c *apiClient) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == scope.DefaultCookieName {
			c.cookie = cookie
		}
	}
	return rec
}

func (c *apiClient) state() PointcutListView {
	c.t.Helper()
	rec := c.do(http.MethodGet, "/pointcuts")
	if rec.Code != http.StatusOK {
		c.t.Fatalf("GET /pointcuts: expected 200, got %d", rec.Code)
	}
	var v PointcutListView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		c.t.Fatalf("Failed to decode state: %v", err)
	}
	return v
}

func TestPointcutAPI_ReloadAddRemove(t *testing.T) {
	client := newAPIClient(t, &MockPointcutBackend{Resp: twoPointcuts(false)})

	if rec := client.do(http.MethodPost, "/pointcuts/reload"); rec.Code != http.StatusOK {
		t.Fatalf("Reload: expected 200, got %d", rec.Code)
	}

	rec := client.do(http.MethodPost, "/pointcuts")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Add: expected 201, got %d", rec.Code)
	}
	var added pointcut.Pointcut
	if err := json.NewDecoder(rec.Body).Decode(&added); err != nil {
		t.Fatalf("Failed to decode added pointcut: %v", err)
	}
	if added.Config.AdviceKind() != pointcut.AdviceKindMetric {
		t.Errorf("Expected metric pointcut, got %v", added.Config)
	}

	v := client.state()
	if len(v.State.Pointcuts) != 3 {
		t.Fatalf("Expected 3 pointcuts after add, got %d", len(v.State.Pointcuts))
	}
	if v.State.Pointcuts[2].ID != added.ID {
		t.Error("Expected added pointcut at the end")
	}

	first := v.State.Pointcuts[0].ID
	if rec := client.do(http.MethodDelete, "/pointcuts/"+first.String()); rec.Code != http.StatusNoContent {
		t.Fatalf("Remove: expected 204, got %d", rec.Code)
	}

	v = client.state()
	if len(v.State.Pointcuts) != 2 {
		t.Fatalf("Expected 2 pointcuts after remove, got %d", len(v.State.Pointcuts))
	}
	for _, p := range v.State.Pointcuts {
		if p.ID == first {
			t.Error("Expected removed pointcut to be gone")
		}
	}
}

func TestPointcutAPI_RemoveUnknownIsNoOp(t *testing.T) {
	client := newAPIClient(t, &MockPointcutBackend{Resp: twoPointcuts(false)})
	client.do(http.MethodPost, "/pointcuts/reload")

	rec := client.do(http.MethodDelete, "/pointcuts/6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if n := len(client.state().State.Pointcuts); n != 2 {
		t.Errorf("Expected list unchanged, got %d pointcuts", n)
	}
}

func TestPointcutAPI_RemoveInvalidID(t *testing.T) {
	client := newAPIClient(t, &MockPointcutBackend{})

	if rec := client.do(http.MethodDelete, "/pointcuts/not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestPointcutAPI_ReloadFailure(t *testing.T) {
	client := newAPIClient(t, &MockPointcutBackend{Err: serverError(backend.PathPointcutConfig)})

	rec := client.do(http.MethodPost, "/pointcuts/reload")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}

	v := client.state()
	if v.State.Loaded {
		t.Error("Expected list to stay unloaded")
	}
	if v.Error == nil {
		t.Error("Expected failure kept with the scope")
	}
}

func TestPointcutAPI_RetransformSuccess(t *testing.T) {
	mock := &MockPointcutBackend{Resp: twoPointcuts(true), Classes: 3}
	client := newAPIClient(t, mock)
	client.do(http.MethodPost, "/pointcuts/reload")

	rec := client.do(http.MethodPost, "/pointcuts/retransform")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Message string `json:"message"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Message != "Success (re-transformed 3 classes)" {
		t.Errorf("Unexpected message %q", resp.Message)
	}
	if client.state().State.Dirty {
		t.Error("Expected page to be clean after re-transform")
	}
}

func TestPointcutAPI_RetransformFailure(t *testing.T) {
	mock := &MockPointcutBackend{Resp: twoPointcuts(true)}
	client := newAPIClient(t, mock)
	client.do(http.MethodPost, "/pointcuts/reload")

	mock.ReweaveErr = &backend.HTTPError{Method: http.MethodPost, Path: backend.PathReweavePointcuts, StatusCode: http.StatusConflict}

	rec := client.do(http.MethodPost, "/pointcuts/retransform")
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}
	if mock.ReweaveCalls != 1 {
		t.Errorf("Expected a single reweave attempt, got %d", mock.ReweaveCalls)
	}

	v := client.state()
	if !v.State.Dirty {
		t.Error("Expected dirty flag left set")
	}
	if v.Error == nil || v.Error.StatusCode != http.StatusConflict {
		t.Errorf("Expected failure kept with the scope, got %+v", v.Error)
	}
}

func TestPointcutAPI_ScopesAreIndependent(t *testing.T) {
	scopes, _ := newScopes(&MockPointcutBackend{Resp: twoPointcuts(false)})
	r := chi.NewRouter()
	NewPointcutAPI(scopes).RegisterRoutes(r)

	first := &apiClient{t: t, router: r}
	second := &apiClient{t: t, router: r}

	first.do(http.MethodPost, "/pointcuts/reload")
	second.do(http.MethodPost, "/pointcuts/reload")
	first.do(http.MethodPost, "/pointcuts")

	if n := len(first.state().State.Pointcuts); n != 3 {
		t.Errorf("Expected 3 pointcuts in first scope, got %d", n)
	}
	if n := len(second.state().State.Pointcuts); n != 2 {
		t.Errorf("Expected 2 pointcuts in second scope, got %d", n)
	}
}

func TestPointcutAPI_ConcurrentAddsKeepEveryPointcut(t *testing.T) {
	client := newAPIClient(t, &MockPointcutBackend{Resp: twoPointcuts(false)})
	client.do(http.MethodPost, "/pointcuts/reload")
	cookie := client.cookie

	const adds = 50
	var wg sync.WaitGroup
	codes := make(chan int, adds)
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/pointcuts", nil)
			req.AddCookie(cookie)
			rec := httptest.NewRecorder()
			client.router.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusCreated {
			t.Errorf("Add: expected 201, got %d", code)
		}
	}
	if n := len(client.state().State.Pointcuts); n != adds+2 {
		t.Errorf("Expected %d pointcuts after concurrent adds, got %d", adds+2, n)
	}
}

func TestPointcutAPI_SuccessClearsEarlierFailure(t *testing.T) {
	mock := &MockPointcutBackend{Resp: twoPointcuts(true), Classes: 1}
	client := newAPIClient(t, mock)
	client.do(http.MethodPost, "/pointcuts/reload")

	mock.mu.Lock()
	mock.ReweaveErr = &backend.HTTPError{Method: http.MethodPost, Path: backend.PathReweavePointcuts, StatusCode: http.StatusInternalServerError}
	mock.mu.Unlock()
	client.do(http.MethodPost, "/pointcuts/retransform")
	if client.state().Error == nil {
		t.Fatal("Expected failure kept with the scope")
	}

	mock.mu.Lock()
	mock.ReweaveErr = nil
	mock.mu.Unlock()
	if rec := client.do(http.MethodPost, "/pointcuts/retransform"); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if v := client.state(); v.Error != nil {
		t.Errorf("Expected failure cleared after a successful re-transform, got %+v", v.Error)
	}
}

// === Config API Tests ===

func newConfigRouter(mock *MockConfigBackend) http.Handler {
	r := chi.NewRouter()
	NewConfigAPI(mock, httperrors.NewHandler(nil)).RegisterRoutes(r)
	return r
}

func TestConfigAPI_Save(t *testing.T) {
	mock := &MockConfigBackend{}
	router := newConfigRouter(mock)

	req := httptest.NewRequest(http.MethodPost, "/config?backendUrl=backend/config/trace", strings.NewReader(`{"slowThresholdMillis":2000}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	saved := mock.Saved[backend.PathTraceConfig]
	if saved["slowThresholdMillis"] != json.Number("2000") {
		t.Errorf("Expected document saved unchanged, got %v", saved)
	}
}

func TestConfigAPI_RejectsUnknownPath(t *testing.T) {
	mock := &MockConfigBackend{}
	router := newConfigRouter(mock)

	for _, path := range []string{"backend/admin/reweave-pointcuts", "", "backend/config/pointcut"} {
		req := httptest.NewRequest(http.MethodPost, "/config?backendUrl="+path, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", path, rec.Code)
		}
	}
	if len(mock.Saved) != 0 {
		t.Error("Expected nothing saved")
	}
}

func TestConfigAPI_BackendFailure(t *testing.T) {
	mock := &MockConfigBackend{SaveErr: &backend.HTTPError{Method: http.MethodPost, Path: backend.PathAdvancedConfig, StatusCode: http.StatusPreconditionFailed}}
	router := newConfigRouter(mock)

	req := httptest.NewRequest(http.MethodPost, "/config?backendUrl=backend/config/advanced", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("Expected 412 passed through, got %d", rec.Code)
	}
}

func TestConfigAPI_Get(t *testing.T) {
	mock := &MockConfigBackend{Err: errors.New("connection refused")}
	router := newConfigRouter(mock)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config?backendUrl=backend/config/plugin/jdbc", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for connection failure, got %d", rec.Code)
	}
	if len(mock.Requested) != 1 || mock.Requested[0] != "backend/config/plugin/jdbc" {
		t.Errorf("Expected plugin document requested, got %v", mock.Requested)
	}
}
