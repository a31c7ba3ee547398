// Package dataservice is the embedded backing service started in local and
// hub modes. It serves a small HTTP API over a SQLite database.
package dataservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openbio/openbio/pkg/middleware"
)

// Version is reported by GET /health
var Version = "0.1.0"

// Options configures a data service instance
type Options struct {
	Host            string
	Port            uint16
	StorageLocator  string
	ApplyMigrations bool
	AllowedOrigins  []string
}

// Address returns host:port
func (o Options) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// Service is one run of the data service. It is not restartable.
type Service struct {
	opts   Options
	logger *zap.Logger

	db         *sql.DB
	instanceID string
	started    time.Time
	listener   net.Listener
	srv        *http.Server
	ready      chan struct{}
}

// New creates a data service; nothing is opened until Run
func New(opts Options, logger *zap.Logger) *Service {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	return &Service{
		opts:   opts,
		logger: logger.Named("dataservice"),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the service is listening
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, valid after Ready
func (s *Service) Addr() string {
	if s.listener == nil {
		return s.opts.Address()
	}
	return s.listener.Addr().String()
}

// Run opens storage, binds the listener and serves until ctx is done.
// Storage and bind failures are returned before Ready is closed.
func (s *Service) Run(ctx context.Context) error {
	db, err := openDB(s.opts.StorageLocator, s.opts.ApplyMigrations)
	if err != nil {
		return err
	}
	s.db = db
	defer s.db.Close()

	s.instanceID, err = instanceID(db)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.opts.Address())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.opts.Address(), err)
	}
	s.listener = ln

	s.srv = &http.Server{
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// handlers read started, so it is set before Serve runs
	s.started = time.Now()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.srv.Serve(ln)
	}()

	s.logger.Info("Data service listening",
		zap.String("address", s.Addr()),
		zap.String("storage", s.opts.StorageLocator),
		zap.String("instance_id", s.instanceID))
	close(s.ready)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("data service: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Data service forced to shutdown", zap.Error(err))
	}
	s.logger.Info("Data service stopped")
	return nil
}

func (s *Service) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger("data", s.logger))

	if len(s.opts.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = s.opts.AllowedOrigins
		if len(s.opts.AllowedOrigins) == 1 && s.opts.AllowedOrigins[0] == "*" {
			corsCfg.AllowOrigins = nil
			corsCfg.AllowAllOrigins = true
		}
		router.Use(cors.New(corsCfg))
	}

	h := &handler{svc: s}
	router.GET("/health", h.health)
	router.GET("/status", h.status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/records", h.listRecords)
	api.POST("/records", h.createRecord)
	api.GET("/records/:id", h.getRecord)

	return router
}
