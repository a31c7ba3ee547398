// Package license validates Hub and Enterprise entitlement.
// Licenses are tied to an instance (via a best-effort machine fingerprint),
// not to user accounts.
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/internal/metrics"
	"github.com/openbio/openbio/pkg/config"
)

// maxResponseBytes caps how much of a license server response is read
const maxResponseBytes = 1 << 20

// ValidationRequest is the body of POST /validate
type ValidationRequest struct {
	LicenseKey string `json:"license_key"`
	ServerID   string `json:"server_id,omitempty"`
}

// ValidationResponse is the body returned by POST /validate
type ValidationResponse struct {
	Valid            bool   `json:"valid"`
	Tier             string `json:"tier,omitempty"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// TrialRequest is the body of POST /purchase for a trial
type TrialRequest struct {
	Action string `json:"action"`
	Email  string `json:"email"`
	Tier   string `json:"tier"`
}

// TrialResponse is the body returned by POST /purchase
type TrialResponse struct {
	TrialLicense string `json:"trial_license,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Validator talks to the remote license endpoints
type Validator struct {
	validateURL string
	purchaseURL string
	grace       time.Duration
	client      *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// NewValidator creates a new license validator
func NewValidator(cfg *config.LicenseConfig, logger *zap.Logger) *Validator {
	return &Validator{
		validateURL: cfg.ValidateURL,
		purchaseURL: cfg.ResolvedPurchaseURL(),
		grace:       cfg.GracePeriod,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("license"),
		now:    time.Now,
	}
}

// ValidateOnline asks the license server whether key is valid for serverID.
// A License is returned only when the request succeeded, the server answered
// with a 2xx status and the response declares the key valid.
func (v *Validator) ValidateOnline(ctx context.Context, key, serverID string) (*domain.License, error) {
	lic, err := v.validateOnline(ctx, key, serverID)
	if err != nil {
		metrics.RecordLicenseValidation("online", outcome(err))
		v.logger.Warn("online license validation failed", zap.Error(err))
		return nil, err
	}
	metrics.RecordLicenseValidation("online", outcome(nil))
	v.logger.Info("license validated",
		zap.String("tier", string(lic.Tier)),
		zap.String("expires_at", lic.ExpiresAt))
	return lic, nil
}

func (v *Validator) validateOnline(ctx context.Context, key, serverID string) (*domain.License, error) {
	status, body, err := v.post(ctx, v.validateURL, ValidationRequest{
		LicenseKey: key,
		ServerID:   serverID,
	})
	if err != nil {
		return nil, err
	}

	var resp ValidationResponse
	decodeErr := json.Unmarshal(body, &resp)

	if status < 200 || status > 299 {
		reason := fmt.Sprintf("Failed to validate license (status %d)", status)
		if decodeErr == nil && resp.Reason != "" {
			reason = fmt.Sprintf("%s: %s", reason, resp.Reason)
		}
		return nil, &ValidationError{Kind: ErrUnsuccessfulStatus, Reason: reason, StatusCode: status}
	}

	if decodeErr != nil {
		return nil, &ValidationError{Kind: ErrMalformedResponse, Reason: "Invalid response", Err: decodeErr}
	}

	if !resp.Valid {
		reason := resp.Reason
		if reason == "" {
			reason = "License invalid"
		}
		return nil, &ValidationError{Kind: ErrLicenseInvalid, Reason: reason}
	}

	tier, err := domain.ParseTier(resp.Tier)
	if err != nil {
		return nil, &ValidationError{Kind: ErrMalformedResponse, Reason: "Invalid response", Err: err}
	}

	if _, err := time.Parse(time.RFC3339, resp.ExpiresAt); err != nil {
		return nil, &ValidationError{Kind: ErrMalformedResponse, Reason: "Invalid response", Err: err}
	}

	return &domain.License{
		Key:              key,
		Tier:             tier,
		ExpiresAt:        resp.ExpiresAt,
		OrganizationName: resp.OrganizationName,
	}, nil
}

// ValidateOffline checks a cached license against the wall clock and the
// configured grace period. It never touches the network.
func (v *Validator) ValidateOffline(cached *domain.License) error {
	err := ValidateOffline(cached, v.now(), v.grace)
	metrics.RecordLicenseValidation("offline", outcome(err))
	return err
}

// StartTrial provisions a time-limited trial license and returns its key
func (v *Validator) StartTrial(ctx context.Context, email string, tier domain.Tier) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("email is required to start a trial")
	}

	status, body, err := v.post(ctx, v.purchaseURL, TrialRequest{
		Action: "start-trial",
		Email:  email,
		Tier:   string(tier),
	})
	if err != nil {
		return "", err
	}

	var resp TrialResponse
	decodeErr := json.Unmarshal(body, &resp)

	if status < 200 || status > 299 {
		reason := fmt.Sprintf("Failed to start trial (status %d)", status)
		if decodeErr == nil && resp.Error != "" {
			reason = fmt.Sprintf("%s: %s", reason, resp.Error)
		}
		return "", &ValidationError{Kind: ErrUnsuccessfulStatus, Reason: reason, StatusCode: status}
	}

	if decodeErr != nil {
		return "", &ValidationError{Kind: ErrMalformedResponse, Reason: "Invalid response", Err: decodeErr}
	}

	if resp.TrialLicense == "" {
		return "", &ValidationError{Kind: ErrMalformedResponse, Reason: "No trial license generated"}
	}

	v.logger.Info("trial license issued", zap.String("tier", string(tier)))
	return resp.TrialLicense, nil
}

// post sends a JSON body and returns the status code and raw response body
func (v *Validator) post(ctx context.Context, url string, payload interface{}) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "openbio/1.0")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, nil, &ValidationError{Kind: ErrNetwork, Reason: "Network error", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &ValidationError{Kind: ErrNetwork, Reason: "Network error", Err: err}
	}

	return resp.StatusCode, body, nil
}
