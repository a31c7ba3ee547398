// Package api provides the local control API used by the UI and the admin CLI.
package api

// APIVersion1 is the first control API version
const (
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"setup",
		"discovery",
		"license",
		"events",
	},
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	Mode         string   `json:"mode"`
	APIURL       string   `json:"api_url"`
	Active       bool     `json:"active"`
	Error        string   `json:"error,omitempty"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// SetupStatusResponse is the response from GET /setup
type SetupStatusResponse struct {
	NeedsSetup bool `json:"needs_setup"`
}

// SetupRequest is the body of POST /config
type SetupRequest struct {
	Mode       string `json:"mode" binding:"required"`
	LabName    string `json:"labName,omitempty"`
	APIURL     string `json:"apiUrl,omitempty"`
	ServerPort uint16 `json:"serverPort,omitempty"`
	LicenseKey string `json:"licenseKey,omitempty"`
}

// Peer is a discovered hub as returned by POST /discovery/scan
type Peer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	URL     string `json:"url"`
}

// ScanResponse is the response from POST /discovery/scan
type ScanResponse struct {
	Peers []Peer `json:"peers"`
}

// TrialRequest is the body of POST /license/trial
type TrialRequest struct {
	Email string `json:"email" binding:"required"`
	Tier  string `json:"tier"`
}

// TrialResponse is the response from POST /license/trial
type TrialResponse struct {
	TrialLicense string `json:"trial_license"`
}
