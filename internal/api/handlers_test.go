package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/internal/license"
	"github.com/openbio/openbio/internal/modes"
	"github.com/openbio/openbio/internal/orchestrator"
	"github.com/openbio/openbio/pkg/config"
	"github.com/openbio/openbio/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	cfg        domain.DeploymentConfig
	last       domain.ConfigEvent
	active     bool
	needsSetup bool
	setupReq   *orchestrator.SetupRequest
	setupErr   error
	peers      []domain.DiscoveredPeer
	scanErr    error
	trialEmail string
	trialTier  domain.Tier
	trialErr   error
	license    *domain.License
	licenseErr error
}

func (f *fakeController) Setup(_ context.Context, req orchestrator.SetupRequest) (domain.ConfigEvent, error) {
	f.setupReq = &req
	if f.setupErr != nil {
		return domain.ConfigEvent{}, f.setupErr
	}
	f.cfg = req.Config
	return domain.NewConfigEvent(req.Config), nil
}

func (f *fakeController) Config() domain.DeploymentConfig { return f.cfg }
func (f *fakeController) LastEvent() domain.ConfigEvent   { return f.last }
func (f *fakeController) Active() bool                    { return f.active }
func (f *fakeController) NeedsSetup() bool                { return f.needsSetup }

func (f *fakeController) Scan(context.Context) ([]domain.DiscoveredPeer, error) {
	return f.peers, f.scanErr
}

func (f *fakeController) StartTrial(_ context.Context, email string, tier domain.Tier) (string, error) {
	f.trialEmail, f.trialTier = email, tier
	if f.trialErr != nil {
		return "", f.trialErr
	}
	return "TRIAL-KEY", nil
}

func (f *fakeController) License() (*domain.License, error) {
	return f.license, f.licenseErr
}

type nopEvents struct{}

func (nopEvents) HandleConnection(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func setupRouter(ctl Controller, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	NewHandlers(ctl, nopEvents{}, limiter, zap.NewNop()).RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	ctl := &fakeController{
		cfg:    domain.DeploymentConfig{Mode: modes.ModeLocal, ServerPort: 3000},
		last:   domain.ConfigEvent{APIURL: "http://localhost:3000", Mode: modes.ModeLocal},
		active: true,
	}
	w := doJSON(setupRouter(ctl, nil), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "openbio", resp.Service)
	assert.Equal(t, "local", resp.Mode)
	assert.Equal(t, "http://localhost:3000", resp.APIURL)
	assert.True(t, resp.Active)
	assert.Equal(t, CurrentAPIVersion, resp.APIVersion)
}

func TestNeedsSetupAndGetConfig(t *testing.T) {
	ctl := &fakeController{needsSetup: true, cfg: domain.DefaultDeploymentConfig()}
	router := setupRouter(ctl, nil)

	w := doJSON(router, http.MethodGet, "/setup", nil)
	assert.JSONEq(t, `{"needs_setup":true}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mode":"unconfigured","serverPort":0}`, w.Body.String())
}

func TestSetConfig(t *testing.T) {
	ctl := &fakeController{}
	w := doJSON(setupRouter(ctl, nil), http.MethodPost, "/config", SetupRequest{
		Mode:       "Hub",
		LabName:    "Smith Lab",
		ServerPort: 3000,
		LicenseKey: "KEY",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"apiUrl":"http://localhost:3000","mode":"hub"}`, w.Body.String())

	require.NotNil(t, ctl.setupReq)
	assert.Equal(t, modes.ModeHub, ctl.setupReq.Config.Mode)
	assert.Equal(t, "Smith Lab", ctl.setupReq.Config.LabName)
	assert.Equal(t, "KEY", ctl.setupReq.LicenseKey)
}

func TestSetConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		setupErr error
		want     int
		wantBody string
	}{
		{"missing mode", map[string]string{}, nil, http.StatusBadRequest, ""},
		{"unknown mode", SetupRequest{Mode: "satellite"}, nil, http.StatusBadRequest, ""},
		{"invalid config", SetupRequest{Mode: "hub"}, orchestratorErr(orchestrator.ErrInvalidConfig, domain.ErrLabNameRequired), http.StatusBadRequest, ""},
		{
			"license rejected",
			SetupRequest{Mode: "hub", LabName: "Lab"},
			orchestratorErr(orchestrator.ErrLicenseRequired, &license.ValidationError{Kind: license.ErrLicenseInvalid, Reason: "License not found"}),
			http.StatusPaymentRequired,
			`{"error":"License not found"}`,
		},
		{"save failed", SetupRequest{Mode: "local"}, orchestratorErr(orchestrator.ErrPersist, errors.New("disk full")), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeController{setupErr: tt.setupErr}
			w := doJSON(setupRouter(ctl, nil), http.MethodPost, "/config", tt.body)
			assert.Equal(t, tt.want, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func orchestratorErr(kind, cause error) error {
	return errors.Join(kind, cause)
}

func TestScan(t *testing.T) {
	ctl := &fakeController{peers: []domain.DiscoveredPeer{{Name: "Alpha", Address: "192.168.1.10:3000"}}}
	w := doJSON(setupRouter(ctl, nil), http.MethodPost, "/discovery/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"peers":[{"name":"Alpha","address":"192.168.1.10:3000","url":"http://192.168.1.10:3000"}]}`, w.Body.String())

	ctl = &fakeController{}
	w = doJSON(setupRouter(ctl, nil), http.MethodPost, "/discovery/scan", nil)
	assert.JSONEq(t, `{"peers":[]}`, w.Body.String())

	ctl = &fakeController{scanErr: errors.New("no multicast")}
	w = doJSON(setupRouter(ctl, nil), http.MethodPost, "/discovery/scan", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestScan_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 1,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	}, zap.NewNop())
	defer limiter.Stop()
	router := setupRouter(&fakeController{}, limiter)

	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodPost, "/discovery/scan", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doJSON(router, http.MethodPost, "/discovery/scan", nil).Code)
	// unlimited routes are unaffected
	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/status", nil).Code)
}

func TestStartTrial(t *testing.T) {
	ctl := &fakeController{}
	router := setupRouter(ctl, nil)

	w := doJSON(router, http.MethodPost, "/license/trial", TrialRequest{Email: "lab@example.org"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trial_license":"TRIAL-KEY"}`, w.Body.String())
	assert.Equal(t, domain.TierHub, ctl.trialTier)

	w = doJSON(router, http.MethodPost, "/license/trial", TrialRequest{Email: "lab@example.org", Tier: "enterprise"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.TierEnterprise, ctl.trialTier)

	w = doJSON(router, http.MethodPost, "/license/trial", TrialRequest{Email: "lab@example.org", Tier: "gold"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/license/trial", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ctl.trialErr = &license.ValidationError{Kind: license.ErrNetwork, Reason: "Network error"}
	w = doJSON(router, http.MethodPost, "/license/trial", TrialRequest{Email: "lab@example.org"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetLicense(t *testing.T) {
	ctl := &fakeController{license: &domain.License{Key: "ABCD-EFGH-1234", Tier: domain.TierHub, ExpiresAt: "2030-01-01T00:00:00Z"}}
	w := doJSON(setupRouter(ctl, nil), http.MethodGet, "/license", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var lic domain.License
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lic))
	assert.Equal(t, "**********1234", lic.Key)
	assert.Equal(t, domain.TierHub, lic.Tier)

	ctl = &fakeController{licenseErr: &license.ValidationError{Kind: license.ErrNoCachedLicense}}
	w = doJSON(setupRouter(ctl, nil), http.MethodGet, "/license", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ctl = &fakeController{licenseErr: errors.New("keyring locked")}
	w = doJSON(setupRouter(ctl, nil), http.MethodGet, "/license", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", maskKey("abc"))
	assert.Equal(t, "****5678", maskKey("12345678"))
	assert.Equal(t, "", maskKey(""))
}
