// Package supervisor starts and stops the embedded data service.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/dataservice"
	"github.com/openbio/openbio/internal/metrics"
)

var (
	// ErrStartupTimeout is returned when the service does not listen in time
	ErrStartupTimeout = errors.New("data service did not start in time")
	// ErrExitedEarly is returned when the service stops before listening
	ErrExitedEarly = errors.New("data service exited before it was ready")
)

// Options describes one data service instance
type Options struct {
	Host            string
	Port            uint16
	StorageLocator  string
	ApplyMigrations bool
}

// Service is a runnable data service
type Service interface {
	// Run blocks until ctx is done or the service fails
	Run(ctx context.Context) error
	// Ready is closed once the service accepts connections
	Ready() <-chan struct{}
}

// ServiceFactory builds a Service for the given options
type ServiceFactory func(opts Options) (Service, error)

// DataServiceFactory returns a factory that builds the embedded data service
func DataServiceFactory(allowedOrigins []string, logger *zap.Logger) ServiceFactory {
	return func(opts Options) (Service, error) {
		return dataservice.New(dataservice.Options{
			Host:            opts.Host,
			Port:            opts.Port,
			StorageLocator:  opts.StorageLocator,
			ApplyMigrations: opts.ApplyMigrations,
			AllowedOrigins:  allowedOrigins,
		}, logger), nil
	}
}

// Supervisor owns at most one running service
type Supervisor struct {
	factory        ServiceFactory
	startupTimeout time.Duration
	logger         *zap.Logger

	mu      sync.Mutex
	current *Handle
}

// New creates a supervisor
func New(factory ServiceFactory, startupTimeout time.Duration, logger *zap.Logger) *Supervisor {
	if startupTimeout <= 0 {
		startupTimeout = 10 * time.Second
	}
	return &Supervisor{
		factory:        factory,
		startupTimeout: startupTimeout,
		logger:         logger.Named("supervisor"),
	}
}

// Spawn starts a service for opts and waits until it is listening.
//
// If a service with the same options is already running its handle is
// returned. A running service with different options is stopped first.
// The service runs on its own context; ctx only bounds the wait.
func (s *Supervisor) Spawn(ctx context.Context, opts Options) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.current; h != nil {
		if h.opts == opts && !h.stopped() {
			s.logger.Debug("data service already running", zap.Uint16("port", opts.Port))
			return h, nil
		}
		if err := h.Stop(ctx); err != nil {
			s.logger.Warn("previous data service stopped with error", zap.Error(err))
		}
		s.current = nil
	}

	h, err := s.start(ctx, opts)
	metrics.RecordServiceStart(err)
	if err != nil {
		s.logger.Error("data service failed to start",
			zap.Uint16("port", opts.Port),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("data service started",
		zap.String("host", opts.Host),
		zap.Uint16("port", opts.Port),
		zap.String("storage", opts.StorageLocator))
	s.current = h
	return h, nil
}

func (s *Supervisor) start(ctx context.Context, opts Options) (*Handle, error) {
	svc, err := s.factory(opts)
	if err != nil {
		return nil, fmt.Errorf("create data service: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		err := svc.Run(runCtx)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	}()

	timer := time.NewTimer(s.startupTimeout)
	defer timer.Stop()

	select {
	case <-svc.Ready():
		return h, nil
	case <-h.done:
		cancel()
		if err := h.Err(); err != nil {
			return nil, err
		}
		return nil, ErrExitedEarly
	case <-timer.C:
		cancel()
		<-h.done
		return nil, ErrStartupTimeout
	case <-ctx.Done():
		cancel()
		<-h.done
		return nil, ctx.Err()
	}
}

// Current returns the running handle, or nil
func (s *Supervisor) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.stopped() {
		return nil
	}
	return s.current
}

// Stop stops the running service, if any
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	s.logger.Info("stopping data service", zap.Uint16("port", h.opts.Port))
	return h.Stop(ctx)
}

// Handle controls one running service
type Handle struct {
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Options returns the options the service was started with
func (h *Handle) Options() Options {
	return h.opts
}

// Done is closed when the service has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the exit error, valid after Done is closed
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stop cancels the service and waits for it to exit or for ctx to end
func (h *Handle) Stop(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
