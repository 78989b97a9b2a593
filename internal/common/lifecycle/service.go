// Package lifecycle runs the console's long-lived services under one
// supervisor: the HTTP server, the layout loader, the flame graph library
// probe and the memory scope sweeper.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service is a component started once and stopped on shutdown
type Service interface {
	// Name identifies the service in logs and health output
	Name() string

	// Start runs the service until ctx is cancelled. An error returned
	// before that stops the whole console.
	Start(ctx context.Context) error

	// Stop shuts the service down within ctx's deadline
	Stop(ctx context.Context) error

	// Health returns nil while the service is doing its job
	Health() error
}

// DefaultStopTimeout bounds each service's Stop call
const DefaultStopTimeout = 30 * time.Second

// startupGrace is how long a service has to fail fast before the
// supervisor moves on to the next one
const startupGrace = 100 * time.Millisecond

type exit struct {
	name string
	err  error
}

// Supervisor starts services in order and stops them in reverse order
type Supervisor struct {
	mu       sync.RWMutex
	services []Service
	running  bool

	// StopTimeout bounds each service's Stop call
	StopTimeout time.Duration
}

// NewSupervisor creates a supervisor for the given services
func NewSupervisor(services ...Service) *Supervisor {
	return &Supervisor{
		services:    services,
		StopTimeout: DefaultStopTimeout,
	}
}

// Add appends services to start after the ones already registered.
// It has no effect once Run has been called.
func (s *Supervisor) Add(services ...Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		slog.Warn("Ignoring services added to a running supervisor", "count", len(services))
		return
	}
	s.services = append(s.services, services...)
}

// Run starts every service and blocks until ctx is cancelled or a service
// fails. Started services are stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}
	s.running = true
	services := append([]Service(nil), s.services...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan exit, len(services))
	var started []Service

	for _, svc := range services {
		slog.Info("Starting service", "service", svc.Name())

		go func(svc Service) {
			exits <- exit{name: svc.Name(), err: svc.Start(runCtx)}
		}(svc)

		select {
		case e := <-exits:
			if e.err != nil {
				s.stop(started)
				return fmt.Errorf("service %s failed to start: %w", e.name, e.err)
			}
			slog.Debug("Service finished during startup", "service", e.name)
		case <-time.After(startupGrace):
		}

		started = append(started, svc)
	}

	var failure error
	for failure == nil {
		select {
		case <-ctx.Done():
			slog.Info("Stopping services")
			s.stop(started)
			return nil
		case e := <-exits:
			if e.err != nil {
				failure = fmt.Errorf("service %s failed: %w", e.name, e.err)
			}
		}
	}

	slog.Error("Service failed, stopping console", "error", failure)
	cancel()
	s.stop(started)
	return failure
}

func (s *Supervisor) stop(services []Service) {
	timeout := s.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := svc.Stop(ctx); err != nil {
			slog.Error("Service stop error", "service", svc.Name(), "error", err)
		} else {
			slog.Info("Service stopped", "service", svc.Name())
		}
		cancel()
	}
}

// Health joins the errors of every unhealthy service
func (s *Supervisor) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	for _, svc := range s.services {
		if err := svc.Health(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ServiceFunc adapts start and stop functions to Service
type ServiceFunc struct {
	name     string
	start    func(ctx context.Context) error
	stop     func(ctx context.Context) error
	healthFn func() error
}

// NewServiceFunc creates a Service from functions
func NewServiceFunc(name string, start func(ctx context.Context) error, stop func(ctx context.Context) error) *ServiceFunc {
	return &ServiceFunc{
		name:     name,
		start:    start,
		stop:     stop,
		healthFn: func() error { return nil },
	}
}

func (s *ServiceFunc) Name() string                    { return s.name }
func (s *ServiceFunc) Start(ctx context.Context) error { return s.start(ctx) }
func (s *ServiceFunc) Stop(ctx context.Context) error  { return s.stop(ctx) }
func (s *ServiceFunc) Health() error                   { return s.healthFn() }

// WithHealth sets the function reported by Health
func (s *ServiceFunc) WithHealth(fn func() error) *ServiceFunc {
	s.healthFn = fn
	return s
}
