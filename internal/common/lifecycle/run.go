package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Run runs the supervisor until SIGINT or SIGTERM, or until a service
// fails. Shutdown waits for every service's Stop, bounded by the
// supervisor's stop timeout.
func Run(ctx context.Context, sup *Supervisor) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sup.Run(sigCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		slog.Info("Shutdown signal received")
	}

	grace := sup.StopTimeout + 5*time.Second
	select {
	case err := <-errCh:
		return err
	case <-time.After(grace):
		slog.Error("Shutdown timed out", "after", grace)
		os.Exit(1)
		return nil
	}
}

// HTTPService serves an http.Server as a Service. The listener is bound
// before Start waits, so a taken port fails startup.
type HTTPService struct {
	name   string
	server *http.Server

	mu       sync.RWMutex
	serveErr error
}

// NewHTTPService creates a Service from an http.Server
func NewHTTPService(name string, server *http.Server) *HTTPService {
	return &HTTPService{name: name, server: server}
}

func (s *HTTPService) Name() string { return s.name }

// Start listens on the server address and serves until ctx is cancelled
func (s *HTTPService) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	slog.Info("HTTP server listening", "addr", ln.Addr().String())

	done := make(chan error, 1)
	go func() {
		err := s.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.mu.Lock()
		s.serveErr = err
		s.mu.Unlock()
		done <- err
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		return err
	}
}

func (s *HTTPService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Health reports the error the server stopped serving with, if any
func (s *HTTPService) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serveErr
}
