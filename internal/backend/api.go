package backend

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.agentconsole.tech/internal/common/metrics"
)

// Backend paths, relative to the configured base URL
const (
	PathPointcutConfig        = "backend/config/pointcut"
	PathPreloadClasspathCache = "backend/config/preload-classpath-cache"
	PathReweavePointcuts      = "backend/admin/reweave-pointcuts"
	PathLayout                = "backend/layout"
	PathTraceConfig           = "backend/config/trace"
	PathProfilingConfig       = "backend/config/profiling"
	PathUserRecordingConfig   = "backend/config/user-recording"
	PathAdvancedConfig        = "backend/config/advanced"
	pathPluginConfigPrefix    = "backend/config/plugin/"
)

// Document is an opaque JSON object passed through to views unchanged
type Document map[string]interface{}

// PointcutConfigs is the response of GET backend/config/pointcut
type PointcutConfigs struct {
	Configs                        []Document `json:"configs"`
	JVMOutOfSync                   bool       `json:"jvmOutOfSync"`
	JVMRetransformClassesSupported bool       `json:"jvmRetransformClassesSupported"`
}

// ReweaveResult is the response of POST backend/admin/reweave-pointcuts
type ReweaveResult struct {
	Classes int `json:"classes"`
}

// Pointcuts fetches the pointcut configuration collection
func (c *Client) Pointcuts(ctx context.Context) (*PointcutConfigs, error) {
	var resp PointcutConfigs
	if err := c.Get(ctx, PathPointcutConfig, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PreloadClasspathCache asks the backend to warm its classpath cache.
// The response body is ignored.
func (c *Client) PreloadClasspathCache(ctx context.Context) error {
	return c.Get(ctx, PathPreloadClasspathCache, nil)
}

// ReweavePointcuts asks the backend to re-transform instrumented classes
// and returns how many classes were re-transformed
func (c *Client) ReweavePointcuts(ctx context.Context) (int, error) {
	var resp ReweaveResult
	if err := c.Post(ctx, PathReweavePointcuts, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Classes, nil
}

// Layout fetches the shared layout object
func (c *Client) Layout(ctx context.Context) (Document, error) {
	var doc Document
	if err := c.Get(ctx, PathLayout, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Config fetches the configuration document at path
func (c *Client) Config(ctx context.Context, path string) (Document, error) {
	var doc Document
	if err := c.Get(ctx, path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveConfig posts an edited configuration document to path and returns
// the backend's updated copy
func (c *Client) SaveConfig(ctx context.Context, path string, doc Document) (Document, error) {
	var updated Document
	if err := c.Post(ctx, path, doc, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// PluginConfig fetches the configuration document for one plugin
func (c *Client) PluginConfig(ctx context.Context, pluginID string) (Document, error) {
	return c.Config(ctx, PluginConfigPath(pluginID))
}

// PluginConfigPath returns the backend path of a plugin's configuration
func PluginConfigPath(pluginID string) string {
	return pathPluginConfigPrefix + url.PathEscape(pluginID)
}

// IsConfigPath reports whether path names a configuration document the
// console may read and save
func IsConfigPath(path string) bool {
	switch path {
	case PathTraceConfig, PathProfilingConfig, PathUserRecordingConfig, PathAdvancedConfig:
		return true
	}
	id, ok := strings.CutPrefix(path, pathPluginConfigPrefix)
	return ok && id != "" && !strings.Contains(id, "/")
}

// Ping checks that the backend answers the layout endpoint
func (c *Client) Ping(ctx context.Context) error {
	return c.Get(ctx, PathLayout, nil)
}

// WarmClasspathCache fires a classpath cache preload in the background.
// The request is detached from ctx cancellation so it outlives the page
// request that triggered it. When a preload interval is configured, calls
// closer together than it are dropped.
func (c *Client) WarmClasspathCache(ctx context.Context) {
	if !c.preloadLimiter.Allow() {
		metrics.BackendPreloadsSkipped.Inc()
		slog.Debug("Classpath cache preload skipped by throttle")
		return
	}

	detached := context.WithoutCancel(ctx)
	timeout := c.preloadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	go func() {
		ctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()

		if err := c.PreloadClasspathCache(ctx); err != nil {
			slog.Debug("Classpath cache preload failed", "error", err)
		}
	}()
}
