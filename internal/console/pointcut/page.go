package pointcut

import "sync"

// Page holds state shared between the list and its detail units.
// Dirty means the running JVM does not reflect the saved pointcuts.
type Page struct {
	mu        sync.RWMutex
	dirty     bool
	listeners []func(dirty bool)
}

// NewPage creates a clean page
func NewPage() *Page {
	return &Page{}
}

// Dirty returns the dirty flag
func (p *Page) Dirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

// SetDirty updates the dirty flag and notifies listeners when it changes
func (p *Page) SetDirty(dirty bool) {
	p.mu.Lock()
	if p.dirty == dirty {
		p.mu.Unlock()
		return
	}
	p.dirty = dirty
	listeners := make([]func(bool), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(dirty)
	}
}

// OnChange registers a listener for dirty flag changes
func (p *Page) OnChange(fn func(dirty bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}
