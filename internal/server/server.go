// Package server runs the local control HTTP server. Route providers
// contribute routes; the Manager owns the router, middleware and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openbio/openbio/pkg/middleware"
)

// RouteProvider contributes routes to the control server
type RouteProvider interface {
	// RegisterRoutes adds the provider's routes to the router
	RegisterRoutes(router *gin.Engine)

	// Name returns the provider name for logging
	Name() string
}

// ServerConfig holds control server configuration
type ServerConfig struct {
	Address        string
	AllowedOrigins []string
	LoggingLevel   string
}

// Manager serves the route providers on one HTTP server
type Manager struct {
	cfg    *ServerConfig
	logger *zap.Logger

	providers []RouteProvider

	listener   net.Listener
	httpServer *http.Server
	router     *gin.Engine
}

// NewManager creates a new server manager
func NewManager(cfg *ServerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger.Named("server"),
		providers: make([]RouteProvider, 0),
	}
}

// AddProvider adds a RouteProvider. Call before Start.
func (m *Manager) AddProvider(p RouteProvider) {
	m.providers = append(m.providers, p)
	m.logger.Debug("Added route provider", zap.String("name", p.Name()))
}

// Start builds the router, binds the address and serves in the background.
// A bind failure is returned.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.LoggingLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	m.router = m.buildRouter()
	for _, p := range m.providers {
		m.logger.Info("Registering routes", zap.String("provider", p.Name()))
		p.RegisterRoutes(m.router)
	}
	m.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", m.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to bind control server on %s: %w", m.cfg.Address, err)
	}
	m.listener = ln

	m.httpServer = &http.Server{
		Handler:      m.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		m.logger.Info("Control server listening", zap.String("address", ln.Addr().String()))
		if err := m.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Control server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, valid after Start
func (m *Manager) Addr() string {
	if m.listener == nil {
		return m.cfg.Address
	}
	return m.listener.Addr().String()
}

// Shutdown gracefully shuts down the server
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.httpServer == nil {
		return nil
	}
	if err := m.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	return nil
}

// Router returns the router, valid after Start
func (m *Manager) Router() *gin.Engine {
	return m.router
}

// buildRouter creates a new router with common middleware
func (m *Manager) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger("control", m.logger))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(m.cfg.AllowedOrigins) == 0 || contains(m.cfg.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = m.cfg.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))
	return router
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
