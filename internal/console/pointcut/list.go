package pointcut

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"go.agentconsole.tech/internal/backend"
	"go.agentconsole.tech/internal/common/metrics"
)

// Backend is the subset of the backend client used by the list
type Backend interface {
	Pointcuts(ctx context.Context) (*backend.PointcutConfigs, error)
	ReweavePointcuts(ctx context.Context) (int, error)
	WarmClasspathCache(ctx context.Context)
}

// List is the pointcut list controller for one navigation
type List struct {
	backend Backend
	errors  ErrorHandler
	page    *Page

	mu                   sync.RWMutex
	pointcuts            []*Pointcut
	loaded               bool
	retransformSupported bool
}

// NewList creates an empty, unloaded list. A nil page creates a fresh one.
func NewList(b Backend, h ErrorHandler, page *Page) *List {
	if page == nil {
		page = NewPage()
	}
	return &List{
		backend: b,
		errors:  h,
		page:    page,
	}
}

// Page returns the page state shared with detail units
func (l *List) Page() *Page { return l.page }

// Load fetches the pointcut configurations and replaces the list contents.
// Failures are passed to the error handler and returned.
func (l *List) Load(ctx context.Context) error {
	resp, err := l.backend.Pointcuts(ctx)
	if err != nil {
		metrics.PointcutOperations.WithLabelValues("load", "error").Inc()
		l.errors.Handle(ctx, err, nil)
		return err
	}

	pointcuts := make([]*Pointcut, 0, len(resp.Configs))
	for _, doc := range resp.Configs {
		pointcuts = append(pointcuts, Wrap(doc))
	}

	l.mu.Lock()
	l.pointcuts = pointcuts
	l.loaded = true
	l.retransformSupported = resp.JVMRetransformClassesSupported
	l.mu.Unlock()

	l.page.SetDirty(resp.JVMOutOfSync)

	metrics.PointcutOperations.WithLabelValues("load", "success").Inc()
	slog.Debug("Pointcuts loaded",
		"count", len(pointcuts),
		"jvmOutOfSync", resp.JVMOutOfSync,
		"retransformSupported", resp.JVMRetransformClassesSupported)

	// The classpath cache is warmed so that class name completion is fast
	// once a pointcut is edited. Its outcome is not observed.
	l.backend.WarmClasspathCache(ctx)

	return nil
}

// Add appends a new metric pointcut. Nothing is sent to the backend.
func (l *List) Add() *Pointcut {
	p := &Pointcut{
		ID:     uuid.New(),
		Config: Config{"adviceKind": AdviceKindMetric},
	}

	l.mu.Lock()
	l.pointcuts = append(l.pointcuts, p)
	l.mu.Unlock()

	metrics.PointcutOperations.WithLabelValues("add", "success").Inc()
	return p
}

// Remove deletes p from the list by identity. It reports whether p was present.
func (l *List) Remove(p *Pointcut) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, candidate := range l.pointcuts {
		if candidate == p {
			l.pointcuts = append(l.pointcuts[:i], l.pointcuts[i+1:]...)
			metrics.PointcutOperations.WithLabelValues("remove", "success").Inc()
			return true
		}
	}

	metrics.PointcutOperations.WithLabelValues("remove", "absent").Inc()
	return false
}

// Find returns the wrapper with the given ID, or nil
func (l *List) Find(id uuid.UUID) *Pointcut {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, p := range l.pointcuts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Pointcuts returns the wrappers in display order
func (l *List) Pointcuts() []*Pointcut {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Pointcut, len(l.pointcuts))
	copy(out, l.pointcuts)
	return out
}

// Loaded reports whether a load has succeeded
func (l *List) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// RetransformSupported reports whether the JVM can re-transform classes
func (l *List) RetransformSupported() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.retransformSupported
}

// Retransform asks the backend to reweave pointcuts. On success the page is
// marked clean and done resolves with a summary message. On failure the dirty
// flag is left as is and the error handler settles done.
func (l *List) Retransform(ctx context.Context, done Completion) {
	classes, err := l.backend.ReweavePointcuts(ctx)
	if err != nil {
		metrics.PointcutOperations.WithLabelValues("retransform", "error").Inc()
		l.errors.Handle(ctx, err, done)
		return
	}

	l.page.SetDirty(false)

	metrics.PointcutOperations.WithLabelValues("retransform", "success").Inc()
	metrics.PointcutClassesRetransformed.Add(float64(classes))
	slog.Info("Pointcuts re-woven", "classes", classes)

	done.Resolve(RetransformMessage(classes))
}

// RetransformMessage formats the result of a reweave for display
func RetransformMessage(classes int) string {
	if classes == 0 {
		return "Success (no classes needed re-transforming)"
	}
	if classes > 1 {
		return fmt.Sprintf("Success (re-transformed %d classes)", classes)
	}
	return fmt.Sprintf("Success (re-transformed %d class)", classes)
}

// State is the serializable state of a list and its page
type State struct {
	Loaded               bool       `json:"loaded"`
	Pointcuts            []Pointcut `json:"pointcuts"`
	Dirty                bool       `json:"dirty"`
	RetransformSupported bool       `json:"retransformSupported"`
}

// State captures the list so it can be stored between requests
func (l *List) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pointcuts := make([]Pointcut, 0, len(l.pointcuts))
	for _, p := range l.pointcuts {
		pointcuts = append(pointcuts, *p)
	}

	return State{
		Loaded:               l.loaded,
		Pointcuts:            pointcuts,
		Dirty:                l.page.Dirty(),
		RetransformSupported: l.retransformSupported,
	}
}

// Restore rebuilds a list from a stored state
func Restore(state State, b Backend, h ErrorHandler) *List {
	page := NewPage()
	page.SetDirty(state.Dirty)

	l := NewList(b, h, page)
	l.loaded = state.Loaded
	l.retransformSupported = state.RetransformSupported
	l.pointcuts = make([]*Pointcut, 0, len(state.Pointcuts))
	for i := range state.Pointcuts {
		p := state.Pointcuts[i]
		l.pointcuts = append(l.pointcuts, &p)
	}
	return l
}
