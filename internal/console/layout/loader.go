// Package layout loads the shared layout object from the backend and
// publishes the layout readiness gate once it is available.
package layout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.agentconsole.tech/internal/backend"
	"go.agentconsole.tech/internal/console/readiness"
)

// Fetcher fetches the layout document
type Fetcher interface {
	Layout(ctx context.Context) (backend.Document, error)
}

// Loader keeps the latest layout and publishes the gate on first success
type Loader struct {
	fetcher         Fetcher
	gate            *readiness.Gate
	retryInterval   time.Duration
	refreshInterval time.Duration

	mu      sync.RWMutex
	layout  backend.Document
	lastErr error
	loaded  time.Time
}

// NewLoader creates a layout loader
func NewLoader(fetcher Fetcher, gate *readiness.Gate, retryInterval, refreshInterval time.Duration) *Loader {
	if retryInterval <= 0 {
		retryInterval = 2 * time.Second
	}
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	return &Loader{
		fetcher:         fetcher,
		gate:            gate,
		retryInterval:   retryInterval,
		refreshInterval: refreshInterval,
	}
}

// Current returns the most recently loaded layout, or nil before the first load
func (l *Loader) Current() backend.Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.layout
}

// View returns a copy of the current layout with extra merged over it.
// Before the first load only extra is returned.
func (l *Loader) View(extra map[string]interface{}) map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]interface{}, len(l.layout)+len(extra))
	for k, v := range l.layout {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Refresh fetches the layout once. On success the layout is stored and
// the gate published.
func (l *Loader) Refresh(ctx context.Context) error {
	doc, err := l.fetcher.Layout(ctx)

	l.mu.Lock()
	l.lastErr = err
	if err == nil {
		l.layout = doc
		l.loaded = time.Now()
	}
	l.mu.Unlock()

	if err != nil {
		return err
	}
	l.gate.Publish()
	return nil
}

func (l *Loader) Name() string { return "layout-loader" }

// Start retries until the first successful load, then refreshes on an interval
func (l *Loader) Start(ctx context.Context) error {
	interval := l.retryInterval
	for {
		if err := l.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Failed to load layout", "error", err, "retryIn", l.retryInterval)
			interval = l.retryInterval
			if l.gate.IsPublished() {
				interval = l.refreshInterval
			}
		} else {
			slog.Debug("Layout loaded")
			interval = l.refreshInterval
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (l *Loader) Stop(ctx context.Context) error { return nil }

// Health reports an error until the layout has been loaded once
func (l *Loader) Health() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.layout != nil {
		return nil
	}
	if l.lastErr != nil {
		return l.lastErr
	}
	return errors.New("layout not loaded")
}
