package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/api"
	"github.com/openbio/openbio/internal/configstore"
	"github.com/openbio/openbio/internal/dataservice"
	"github.com/openbio/openbio/internal/discovery"
	"github.com/openbio/openbio/internal/events"
	"github.com/openbio/openbio/internal/license"
	"github.com/openbio/openbio/internal/metrics"
	"github.com/openbio/openbio/internal/orchestrator"
	"github.com/openbio/openbio/internal/ports"
	"github.com/openbio/openbio/internal/server"
	"github.com/openbio/openbio/internal/supervisor"
	"github.com/openbio/openbio/pkg/config"
	"github.com/openbio/openbio/pkg/logging"
	"github.com/openbio/openbio/pkg/middleware"
)

var (
	configFile     = flag.String("config", "", "Path to configuration file")
	standaloneData = flag.Bool("standalone-data", false, "Run only the data service, without the control plane")
	dataHost       = flag.String("data-host", "0.0.0.0", "Bind host for -standalone-data")
	dataStorage    = flag.String("data-storage", "", "Database path for -standalone-data (default: <data dir>/data/openbio.db)")
	version        = "dev"
	buildTime      = "unknown"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.RegisterMetrics()
	dataservice.Version = version

	logger.Info("Starting OpenBio",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("data_dir", cfg.DataDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *standaloneData {
		if err := runStandaloneData(ctx, cfg, logger); err != nil {
			logger.Error("Data service failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	store := configstore.New(cfg.DeploymentConfigPath(), logger)
	validator := license.NewValidator(&cfg.License, logger)
	cache := license.NewCache(cfg.License.KeyringService, logger)
	gate := license.NewGate(validator, cache, cfg.License.GracePeriod, logger)
	hub := events.NewHub(cfg.Control.AllowedOrigins, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Store:       store,
		Gate:        gate,
		Licenses:    cache,
		Trials:      validator,
		Supervisor:  supervisor.New(supervisor.DataServiceFactory(cfg.Control.AllowedOrigins, logger), cfg.Service.StartupTimeout, logger),
		Broadcaster: discovery.NewBroadcaster(&cfg.Discovery, logger),
		Scanner:     discovery.NewScanner(&cfg.Discovery, logger),
		Notifier:    hub,
		FindPort:    ports.FindAvailablePort,
	}, orchestrator.Options{
		StorageLocator:  cfg.DatabasePath(),
		DefaultPort:     uint16(cfg.Service.DefaultPort),
		PortRange:       cfg.Service.PortRange,
		ApplyMigrations: cfg.Service.ApplyMigrations,
	}, logger)

	limiter := middleware.NewRateLimiter(cfg.Control.RateLimit, logger)
	defer limiter.Stop()

	mgr := server.NewManager(&server.ServerConfig{
		Address:        cfg.Control.Address(),
		AllowedOrigins: cfg.Control.AllowedOrigins,
		LoggingLevel:   cfg.Logging.Level,
	}, logger)
	mgr.AddProvider(api.NewHandlers(orch, hub, limiter, logger))

	if err := mgr.Start(ctx); err != nil {
		logger.Error("Failed to start control server", zap.Error(err))
		os.Exit(1)
	}

	// A saved mode that cannot be activated is reported to the UI, which
	// can then run setup again; the process keeps serving.
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	evt, err := orch.Start(startCtx)
	cancel()
	if err != nil {
		logger.Warn("Saved configuration not active", zap.Error(err))
	} else {
		logger.Info("Configuration active",
			zap.String("mode", string(evt.Mode)),
			zap.String("api_url", evt.APIURL))
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("Control server forced to shutdown", zap.Error(err))
	}
	hub.Close()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("Data service forced to shutdown", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// runStandaloneData serves only the data service until ctx is done
func runStandaloneData(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	locator := *dataStorage
	if locator == "" {
		locator = cfg.DatabasePath()
	}

	svc := dataservice.New(dataservice.Options{
		Host:            *dataHost,
		Port:            uint16(cfg.Service.DefaultPort),
		StorageLocator:  locator,
		ApplyMigrations: cfg.Service.ApplyMigrations,
		AllowedOrigins:  cfg.Control.AllowedOrigins,
	}, logger)
	return svc.Run(ctx)
}
