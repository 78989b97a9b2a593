package pointcut

import (
	"context"
	"sync"
)

// Completion receives the outcome of an asynchronous page action
type Completion interface {
	Resolve(message string)
	Reject(err error)
}

// ErrorHandler is the shared handler for failed backend requests.
// done may be nil when no completion is waiting on the request.
type ErrorHandler interface {
	Handle(ctx context.Context, err error, done Completion)
}

// Deferred is a Completion that can be waited on. Only the first
// Resolve or Reject takes effect.
type Deferred struct {
	once    sync.Once
	done    chan struct{}
	message string
	err     error
}

// NewDeferred creates a pending completion
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

func (d *Deferred) Resolve(message string) {
	d.once.Do(func() {
		d.message = message
		close(d.done)
	})
}

func (d *Deferred) Reject(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// Done returns a channel closed once the completion settles
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Wait blocks until the completion settles or ctx is done
func (d *Deferred) Wait(ctx context.Context) (string, error) {
	select {
	case <-d.done:
		return d.message, d.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
