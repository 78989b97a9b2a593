package httperrors

import (
	"context"
	"sync"
)

type recorderKey struct{}

// Recorder captures the last failure handled during one request so the
// caller can attach it to the navigation scope
type Recorder struct {
	mu      sync.Mutex
	failure *Failure
}

// WithRecorder returns a context carrying a new recorder
func WithRecorder(ctx context.Context) (context.Context, *Recorder) {
	rec := &Recorder{}
	return context.WithValue(ctx, recorderKey{}, rec), rec
}

func recorderFrom(ctx context.Context) *Recorder {
	if ctx == nil {
		return nil
	}
	rec, _ := ctx.Value(recorderKey{}).(*Recorder)
	return rec
}

func (r *Recorder) set(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = &f
}

// Last returns the last recorded failure, if any
func (r *Recorder) Last() (Failure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure == nil {
		return Failure{}, false
	}
	return *r.failure, true
}
