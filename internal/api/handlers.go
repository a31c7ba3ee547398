package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/internal/license"
	"github.com/openbio/openbio/internal/modes"
	"github.com/openbio/openbio/internal/orchestrator"
	"github.com/openbio/openbio/pkg/middleware"
)

// Controller is the orchestrator surface the handlers drive
type Controller interface {
	Setup(ctx context.Context, req orchestrator.SetupRequest) (domain.ConfigEvent, error)
	Config() domain.DeploymentConfig
	LastEvent() domain.ConfigEvent
	Active() bool
	NeedsSetup() bool
	Scan(ctx context.Context) ([]domain.DiscoveredPeer, error)
	StartTrial(ctx context.Context, email string, tier domain.Tier) (string, error)
	License() (*domain.License, error)
}

// EventStream serves the UI event WebSocket
type EventStream interface {
	HandleConnection(w http.ResponseWriter, r *http.Request)
}

// Handlers aggregates all control API handlers
type Handlers struct {
	ctl     Controller
	events  EventStream
	limiter *middleware.RateLimiter
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance. limiter may be nil.
func NewHandlers(ctl Controller, events EventStream, limiter *middleware.RateLimiter, logger *zap.Logger) *Handlers {
	return &Handlers{
		ctl:     ctl,
		events:  events,
		limiter: limiter,
		logger:  logger.Named("handlers"),
	}
}

// Name identifies the route provider
func (h *Handlers) Name() string {
	return "control"
}

// RegisterRoutes adds the control API routes to router
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/status", h.Status)
	router.GET("/setup", h.NeedsSetup)
	router.GET("/config", h.GetConfig)
	router.POST("/config", h.SetConfig)
	router.GET("/license", h.GetLicense)
	router.GET("/events", h.Events)

	limited := router.Group("/")
	if h.limiter != nil {
		limited.Use(middleware.RateLimitMiddleware(h.limiter, h.logger))
	}
	limited.POST("/discovery/scan", h.Scan)
	limited.POST("/license/trial", h.StartTrial)
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	evt := h.ctl.LastEvent()
	c.JSON(http.StatusOK, StatusResponse{
		Status:       "ok",
		Service:      "openbio",
		Mode:         string(h.ctl.Config().Mode),
		APIURL:       evt.APIURL,
		Active:       h.ctl.Active(),
		Error:        evt.Error,
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	})
}

// NeedsSetup reports whether the first-run setup is still pending
func (h *Handlers) NeedsSetup(c *gin.Context) {
	c.JSON(http.StatusOK, SetupStatusResponse{NeedsSetup: h.ctl.NeedsSetup()})
}

// GetConfig returns the deployment config in effect
func (h *Handlers) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Config())
}

// SetConfig applies a new deployment config and returns the resulting event
func (h *Handlers) SetConfig(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode, err := modes.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	evt, err := h.ctl.Setup(c.Request.Context(), orchestrator.SetupRequest{
		Config: domain.DeploymentConfig{
			Mode:       mode,
			LabName:    req.LabName,
			APIURL:     req.APIURL,
			ServerPort: req.ServerPort,
		},
		LicenseKey: req.LicenseKey,
	})
	if err != nil {
		h.setupError(c, err)
		return
	}

	c.JSON(http.StatusOK, evt)
}

func (h *Handlers) setupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrLicenseRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": license.Reason(err)})
	default:
		h.logger.Error("setup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Scan looks for hubs on the local network
func (h *Handlers) Scan(c *gin.Context) {
	found, err := h.ctl.Scan(c.Request.Context())
	if err != nil {
		h.logger.Warn("scan failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	peers := make([]Peer, 0, len(found))
	for _, p := range found {
		peers = append(peers, Peer{Name: p.Name, Address: p.Address, URL: p.URL()})
	}
	c.JSON(http.StatusOK, ScanResponse{Peers: peers})
}

// StartTrial requests a trial license
func (h *Handlers) StartTrial(c *gin.Context) {
	var req TrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier := domain.TierHub
	if req.Tier != "" {
		t, err := domain.ParseTier(req.Tier)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tier = t
	}

	key, err := h.ctl.StartTrial(c.Request.Context(), req.Email, tier)
	if err != nil {
		var ve *license.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadGateway, gin.H{"error": ve.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, TrialResponse{TrialLicense: key})
}

// GetLicense returns the active or cached license
func (h *Handlers) GetLicense(c *gin.Context) {
	lic, err := h.ctl.License()
	if err != nil {
		if errors.Is(err, license.ErrNoCachedLicense) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no license"})
			return
		}
		h.logger.Error("failed to read license", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	masked := *lic
	masked.Key = maskKey(lic.Key)
	c.JSON(http.StatusOK, masked)
}

// maskKey keeps the last four characters of a license key
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// Events upgrades to a WebSocket streaming config events
func (h *Handlers) Events(c *gin.Context) {
	h.events.HandleConnection(c.Writer, c.Request)
}
