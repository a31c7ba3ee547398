package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openbio/openbio/internal/api"
	"github.com/openbio/openbio/internal/domain"
)

// APIError is a non-2xx answer from the control API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control API returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the control API of a running openbio daemon
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// NewClient parses baseURL, which must be an absolute http(s) URL
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid control API URL %q", baseURL)
	}
	// a scan listens for several seconds before answering
	hc := &http.Client{Timeout: 30 * time.Second}
	return &Client{base: u, httpClient: hc}, nil
}

// Status returns the daemon status
func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.call(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// Config returns the deployment config in effect
func (c *Client) Config(ctx context.Context) (domain.DeploymentConfig, error) {
	var out domain.DeploymentConfig
	err := c.call(ctx, http.MethodGet, "/config", nil, &out)
	return out, err
}

// Setup applies a deployment config and returns the resulting event
func (c *Client) Setup(ctx context.Context, req api.SetupRequest) (domain.ConfigEvent, error) {
	var out domain.ConfigEvent
	err := c.call(ctx, http.MethodPost, "/config", req, &out)
	return out, err
}

// Scan asks the daemon to look for hubs
func (c *Client) Scan(ctx context.Context) ([]api.Peer, error) {
	var out api.ScanResponse
	if err := c.call(ctx, http.MethodPost, "/discovery/scan", nil, &out); err != nil {
		return nil, err
	}
	return out.Peers, nil
}

// License returns the active or cached license with its key masked
func (c *Client) License(ctx context.Context) (domain.License, error) {
	var out domain.License
	err := c.call(ctx, http.MethodGet, "/license", nil, &out)
	return out, err
}

// StartTrial requests a trial license key
func (c *Client) StartTrial(ctx context.Context, req api.TrialRequest) (string, error) {
	var out api.TrialResponse
	if err := c.call(ctx, http.MethodPost, "/license/trial", req, &out); err != nil {
		return "", err
	}
	return out.TrialLicense, nil
}

// call sends in as JSON (when non-nil) and decodes a 2xx body into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
