package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/pointcut"
	"go.agentconsole.tech/internal/console/route"
	"go.agentconsole.tech/internal/console/scope"
)

// Scopes opens and saves the pointcut list of a navigation scope
type Scopes struct {
	store   scope.Store
	cookies scope.Cookies
	backend pointcut.Backend
	errors  pointcut.ErrorHandler
}

// NewScopes creates a scope manager
func NewScopes(store scope.Store, cookies scope.Cookies, b pointcut.Backend, h pointcut.ErrorHandler) *Scopes {
	return &Scopes{
		store:   store,
		cookies: cookies,
		backend: b,
		errors:  h,
	}
}

// Session is the pointcut list of one navigation scope during a request.
// A session from Begin or Resume holds the scope lock until Release.
type Session struct {
	ID        string
	List      *pointcut.List
	LastError *httperrors.Failure

	recorder *httperrors.Recorder
	unlock   func()
}

// Release unlocks the scope
func (sess *Session) Release() {
	if sess.unlock != nil {
		sess.unlock()
		sess.unlock = nil
	}
}

// Begin locks r's scope and starts a fresh list for a new navigation. The
// returned context records failures handled while it is in use.
func (s *Scopes) Begin(ctx context.Context, w http.ResponseWriter, r *http.Request) (context.Context, *Session, error) {
	id := s.cookies.Ensure(w, r)

	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to lock scope %s: %w", id, err)
	}

	ctx, rec := httperrors.WithRecorder(ctx)
	return ctx, &Session{
		ID:       id,
		List:     pointcut.NewList(s.backend, s.errors, nil),
		recorder: rec,
		unlock:   unlock,
	}, nil
}

// Resume locks r's scope and restores the list saved for it. A scope with
// nothing saved starts empty and unloaded.
func (s *Scopes) Resume(ctx context.Context, w http.ResponseWriter, r *http.Request) (context.Context, *Session, error) {
	ctx, sess, err := s.Begin(ctx, w, r)
	if err != nil {
		return ctx, nil, err
	}

	if err := s.restore(ctx, sess); err != nil {
		sess.Release()
		return ctx, nil, err
	}
	return ctx, sess, nil
}

// Current reads the list saved for r's scope without locking it
func (s *Scopes) Current(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	sess := &Session{
		ID:   s.cookies.Ensure(w, r),
		List: pointcut.NewList(s.backend, s.errors, nil),
	}
	if err := s.restore(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Scopes) restore(ctx context.Context, sess *Session) error {
	snap, err := s.store.Get(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load scope %s: %w", sess.ID, err)
	}
	if snap != nil {
		sess.List = pointcut.Restore(snap.Pointcuts, s.backend, s.errors)
		sess.LastError = snap.LastError
	}
	return nil
}

// Save stores the session's list. The saved error is the last failure
// recorded during this request, so a request that succeeds clears it.
func (s *Scopes) Save(ctx context.Context, sess *Session) error {
	sess.LastError = nil
	if f, ok := sess.recorder.Last(); ok {
		sess.LastError = &f
	}

	snap := &scope.Snapshot{
		ID:        sess.ID,
		Pointcuts: sess.List.State(),
		LastError: sess.LastError,
		UpdatedAt: time.Now(),
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save scope %s: %w", sess.ID, err)
	}
	return nil
}

// PointcutListView is the view model of the pointcut list page
type PointcutListView struct {
	ScopeID string
	State   pointcut.State
	Error   *httperrors.Failure
}

func newPointcutListView(sess *Session) *PointcutListView {
	return &PointcutListView{
		ScopeID: sess.ID,
		State:   sess.List.State(),
		Error:   sess.LastError,
	}
}

// ConfigPointcutListCtrl loads the pointcut list for a new navigation
type ConfigPointcutListCtrl struct {
	scopes *Scopes
}

// Load fetches the pointcuts into a fresh list and saves it to the scope.
// A failed fetch leaves the list unloaded and shows the failure.
func (c *ConfigPointcutListCtrl) Load(ctx context.Context, nav *route.Navigation) (interface{}, error) {
	ctx, sess, err := c.scopes.Begin(ctx, nav.Writer, nav.Request)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	// Load reports failures through the error handler
	_ = sess.List.Load(ctx)

	if err := c.scopes.Save(ctx, sess); err != nil {
		slog.Warn("Failed to save pointcut scope", "scope", sess.ID, "error", err)
	}
	return newPointcutListView(sess), nil
}
