// Package orchestrator owns the deployment state of an instance: it applies
// the saved configuration at startup, handles setup requests and keeps the
// data service and hub advertisement in line with the active mode.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/discovery"
	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/internal/license"
	"github.com/openbio/openbio/internal/metrics"
	"github.com/openbio/openbio/internal/modes"
	"github.com/openbio/openbio/internal/supervisor"
)

// Setup failure classes. Errors returned by Setup wrap exactly one of these.
var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrLicenseRequired = errors.New("license check failed")
	ErrPersist         = errors.New("failed to save configuration")
	ErrActivation      = errors.New("failed to activate configuration")
)

const (
	localServiceHost = "127.0.0.1"
	hubServiceHost   = "0.0.0.0"
)

// ConfigStore persists the deployment config
type ConfigStore interface {
	Load() domain.DeploymentConfig
	Save(cfg domain.DeploymentConfig) error
	Exists() bool
}

// LicenseGate checks entitlement for a mode
type LicenseGate interface {
	Ensure(ctx context.Context, mode modes.Mode, key string) (*domain.License, error)
}

// LicenseSource returns the cached license
type LicenseSource interface {
	Load() (*domain.License, error)
}

// TrialStarter provisions trial licenses
type TrialStarter interface {
	StartTrial(ctx context.Context, email string, tier domain.Tier) (string, error)
}

// Broadcaster advertises a hub on the local network
type Broadcaster interface {
	Start(labName string, port uint16) (*discovery.Advertisement, error)
	Stop()
}

// Scanner finds hubs on the local network
type Scanner interface {
	Scan(ctx context.Context) ([]domain.DiscoveredPeer, error)
}

// Notifier delivers config events to the UI
type Notifier interface {
	Emit(evt domain.ConfigEvent)
}

// PortFinder picks a bindable port starting at preferred
type PortFinder func(preferred uint16, span int) uint16

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Store       ConfigStore
	Gate        LicenseGate
	Licenses    LicenseSource
	Trials      TrialStarter
	Supervisor  *supervisor.Supervisor
	Broadcaster Broadcaster
	Scanner     Scanner
	Notifier    Notifier
	FindPort    PortFinder
}

// Options tune how local services are started
type Options struct {
	// StorageLocator is the database path handed to the data service
	StorageLocator  string
	DefaultPort     uint16
	PortRange       int
	ApplyMigrations bool
}

// SetupRequest is a configuration submitted by the UI
type SetupRequest struct {
	Config     domain.DeploymentConfig
	LicenseKey string
}

// Orchestrator serialises all state transitions behind one mutex
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	// mu is held for a whole transition, including license checks and
	// service startup
	mu sync.Mutex

	// stateMu guards st. Writers also hold mu, so transition code may read
	// st without it.
	stateMu sync.RWMutex
	st      state
}

// state is what the accessors report
type state struct {
	cfg       domain.DeploymentConfig
	active    bool
	license   *domain.License
	lastEvent domain.ConfigEvent
}

func (o *Orchestrator) update(fn func(s *state)) {
	o.stateMu.Lock()
	fn(&o.st)
	o.stateMu.Unlock()
}

func (o *Orchestrator) snapshot() state {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.st
}

// New creates an orchestrator. Nothing runs until Start.
func New(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.DefaultPort == 0 {
		opts.DefaultPort = 3000
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.Named("orchestrator"),
		st:     state{cfg: domain.DefaultDeploymentConfig()},
	}
}

// Start applies the saved configuration using the cached license only and
// emits the resulting event. When the mode cannot be activated the event
// carries the error and an empty API URL, and the error is also returned.
func (o *Orchestrator) Start(ctx context.Context) (domain.ConfigEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cfg := o.deps.Store.Load()
	o.update(func(s *state) { s.cfg = cfg })
	o.logger.Info("applying saved configuration", zap.String("mode", string(cfg.Mode)))

	lic, err := o.deps.Gate.Ensure(ctx, cfg.Mode, "")
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrLicenseRequired, err)
		return o.failLocked(cfg, err), err
	}

	active, err := o.activateLocked(ctx, cfg)
	if err != nil {
		return o.failLocked(cfg, err), err
	}

	o.update(func(s *state) { s.license = lic })
	evt := domain.NewConfigEvent(active)
	o.emitLocked(evt)
	return evt, nil
}

// Setup validates, licenses, saves and activates a new configuration.
// Validation, license and save failures leave the running state untouched.
func (o *Orchestrator) Setup(ctx context.Context, req SetupRequest) (domain.ConfigEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cfg := req.Config
	if cfg.Mode.RunsLocalService() && cfg.ServerPort == 0 {
		cfg.ServerPort = o.opts.DefaultPort
	}
	if err := cfg.Validate(); err != nil {
		return domain.ConfigEvent{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	lic, err := o.deps.Gate.Ensure(ctx, cfg.Mode, req.LicenseKey)
	if err != nil {
		o.logger.Warn("setup rejected by license gate",
			zap.String("mode", string(cfg.Mode)),
			zap.Error(err))
		return domain.ConfigEvent{}, fmt.Errorf("%w: %w", ErrLicenseRequired, err)
	}

	if err := o.deps.Store.Save(cfg); err != nil {
		return domain.ConfigEvent{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	o.logger.Info("configuration saved",
		zap.String("from", string(o.st.cfg.Mode)),
		zap.String("to", string(cfg.Mode)))

	o.teardownLocked(ctx, cfg.Mode)
	o.update(func(s *state) { s.cfg = cfg })

	active, err := o.activateLocked(ctx, cfg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrActivation, err)
		o.failLocked(cfg, err)
		return domain.ConfigEvent{}, err
	}

	o.update(func(s *state) { s.license = lic })
	evt := domain.NewConfigEvent(active)
	o.emitLocked(evt)
	return evt, nil
}

// activateLocked starts what the mode needs and returns the config actually
// in effect, which differs from cfg when the preferred port was taken.
func (o *Orchestrator) activateLocked(ctx context.Context, cfg domain.DeploymentConfig) (domain.DeploymentConfig, error) {
	o.update(func(s *state) { s.active = false })

	if !cfg.Mode.RunsLocalService() {
		o.update(func(s *state) { s.active = cfg.Mode != modes.ModeUnconfigured })
		return cfg, nil
	}

	preferred := cfg.ServerPort
	if preferred == 0 {
		preferred = o.opts.DefaultPort
	}

	port := preferred
	if h := o.deps.Supervisor.Current(); h == nil || h.Options().Port != preferred {
		port = o.deps.FindPort(preferred, o.opts.PortRange)
	}

	if port != cfg.ServerPort {
		o.logger.Info("service port adjusted",
			zap.Uint16("preferred", cfg.ServerPort),
			zap.Uint16("port", port))
		cfg.ServerPort = port
		if err := o.deps.Store.Save(cfg); err != nil {
			o.logger.Warn("failed to persist adjusted port", zap.Error(err))
		}
	}
	o.update(func(s *state) { s.cfg = cfg })

	host := localServiceHost
	if cfg.Mode == modes.ModeHub {
		host = hubServiceHost
	}

	if _, err := o.deps.Supervisor.Spawn(ctx, supervisor.Options{
		Host:            host,
		Port:            port,
		StorageLocator:  o.opts.StorageLocator,
		ApplyMigrations: o.opts.ApplyMigrations,
	}); err != nil {
		return cfg, err
	}

	if cfg.Mode.Advertises() {
		if _, err := o.deps.Broadcaster.Start(cfg.LabName, port); err != nil {
			// the hub stays reachable by address
			o.logger.Warn("hub advertisement failed", zap.Error(err))
		}
	}

	o.update(func(s *state) { s.active = true })
	return cfg, nil
}

// teardownLocked stops the components next no longer needs
func (o *Orchestrator) teardownLocked(ctx context.Context, next modes.Mode) {
	o.deps.Broadcaster.Stop()

	if !next.RunsLocalService() {
		if err := o.deps.Supervisor.Stop(ctx); err != nil {
			o.logger.Warn("data service stopped with error", zap.Error(err))
		}
	}
	o.update(func(s *state) {
		s.active = false
		s.license = nil
	})
}

func (o *Orchestrator) failLocked(cfg domain.DeploymentConfig, err error) domain.ConfigEvent {
	o.logger.Error("configuration could not be activated",
		zap.String("mode", string(cfg.Mode)),
		zap.Error(err))
	o.update(func(s *state) { s.active = false })
	evt := domain.ConfigEvent{
		Mode:  cfg.Mode,
		Error: license.Reason(err),
	}
	o.emitLocked(evt)
	return evt
}

func (o *Orchestrator) emitLocked(evt domain.ConfigEvent) {
	o.update(func(s *state) { s.lastEvent = evt })
	all := make([]string, len(modes.ValidModes))
	for i, m := range modes.ValidModes {
		all[i] = string(m)
	}
	active := ""
	if o.st.active {
		active = string(evt.Mode)
	}
	metrics.SetActiveMode(active, all)

	if o.deps.Notifier != nil {
		o.deps.Notifier.Emit(evt)
	}
}

// Shutdown withdraws the advertisement and stops the data service
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.deps.Broadcaster.Stop()
	err := o.deps.Supervisor.Stop(ctx)
	o.update(func(s *state) { s.active = false })
	return err
}

// Config returns the configuration in effect. It does not wait for a
// transition in progress.
func (o *Orchestrator) Config() domain.DeploymentConfig {
	return o.snapshot().cfg
}

// LastEvent returns the most recently emitted event
func (o *Orchestrator) LastEvent() domain.ConfigEvent {
	return o.snapshot().lastEvent
}

// Active reports whether the configured mode is running
func (o *Orchestrator) Active() bool {
	return o.snapshot().active
}

// NeedsSetup reports whether the user still has to choose a mode
func (o *Orchestrator) NeedsSetup() bool {
	return !o.deps.Store.Exists() || o.snapshot().cfg.Mode == modes.ModeUnconfigured
}

// Scan looks for hubs on the local network
func (o *Orchestrator) Scan(ctx context.Context) ([]domain.DiscoveredPeer, error) {
	return o.deps.Scanner.Scan(ctx)
}

// StartTrial requests a trial license for tier
func (o *Orchestrator) StartTrial(ctx context.Context, email string, tier domain.Tier) (string, error) {
	return o.deps.Trials.StartTrial(ctx, email, tier)
}

// License returns the license backing the active mode, or the cached one
func (o *Orchestrator) License() (*domain.License, error) {
	if lic := o.snapshot().license; lic != nil {
		return lic, nil
	}
	return o.deps.Licenses.Load()
}
