// Package readiness provides named one-shot gates that route handlers wait on
// before rendering a view.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.agentconsole.tech/internal/common/metrics"
)

// Gate names used by the route table
const (
	Layout            = "layout"
	FlameGraphLibrary = "flame-graph-library"
)

// Gate is published exactly once and observed by any number of waiters
type Gate struct {
	name      string
	once      sync.Once
	done      chan struct{}
	published time.Time
	mu        sync.RWMutex
}

// NewGate creates an unpublished gate
func NewGate(name string) *Gate {
	metrics.ReadinessGateState.WithLabelValues(name).Set(0)
	return &Gate{
		name: name,
		done: make(chan struct{}),
	}
}

// Name returns the gate name
func (g *Gate) Name() string { return g.name }

// Publish opens the gate. Calls after the first are no-ops.
func (g *Gate) Publish() {
	g.once.Do(func() {
		g.mu.Lock()
		g.published = time.Now()
		g.mu.Unlock()

		close(g.done)
		metrics.ReadinessGateState.WithLabelValues(g.name).Set(1)
		slog.Info("Readiness gate published", "gate", g.name)
	})
}

// Done returns a channel that is closed once the gate is published
func (g *Gate) Done() <-chan struct{} { return g.done }

// IsPublished reports whether the gate has been published
func (g *Gate) IsPublished() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// PublishedAt returns when the gate was published, or the zero time
func (g *Gate) PublishedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.published
}

// Wait blocks until the gate is published or ctx is done
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	default:
	}

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", g.name, ctx.Err())
	}
}

// Registry holds the named gates of one console instance
type Registry struct {
	mu    sync.RWMutex
	gates map[string]*Gate
}

// NewRegistry creates a registry with the given gates pre-created
func NewRegistry(names ...string) *Registry {
	r := &Registry{gates: make(map[string]*Gate)}
	for _, name := range names {
		r.Gate(name)
	}
	return r
}

// Gate returns the named gate, creating it on first use
func (r *Registry) Gate(name string) *Gate {
	r.mu.RLock()
	g, ok := r.gates[name]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gates[name]; ok {
		return g
	}
	g = NewGate(name)
	r.gates[name] = g
	return g
}

// Lookup returns the named gate without creating it
func (r *Registry) Lookup(name string) (*Gate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[name]
	return g, ok
}

// WaitAll waits on every named gate in order. Unknown names are an error.
func (r *Registry) WaitAll(ctx context.Context, names ...string) error {
	for _, name := range names {
		g, ok := r.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown readiness gate %q", name)
		}
		if err := g.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Status returns when each gate was published, zero for pending gates
func (r *Registry) Status() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := make(map[string]time.Time, len(r.gates))
	for name, g := range r.gates {
		status[name] = g.PublishedAt()
	}
	return status
}
