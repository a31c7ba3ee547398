package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/openbio/openbio/internal/api"
)

var (
	setupMode       string
	setupLabName    string
	setupAPIURL     string
	setupPort       uint16
	setupLicenseKey string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Choose the deployment mode",
	Long: `Apply a deployment configuration.

Modes:
  local       embedded data service on this machine only
  hub         embedded data service shared on the lab network (license required)
  spoke       use a hub's API (--api-url)
  enterprise  use a hosted deployment (--api-url, license required)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return applySetup(cmd, api.SetupRequest{
			Mode:       setupMode,
			LabName:    setupLabName,
			APIURL:     setupAPIURL,
			ServerPort: setupPort,
			LicenseKey: setupLicenseKey,
		})
	},
}

func applySetup(cmd *cobra.Command, req api.SetupRequest) error {
	c, err := client()
	if err != nil {
		return err
	}
	evt, err := c.Setup(cmd.Context(), req)
	if IsStatus(err, http.StatusPaymentRequired) {
		return fmt.Errorf("%w (start a trial with: openbio-admin license trial --email <address>)", err)
	}
	if err != nil {
		return err
	}

	return render(cmd, evt, func(w io.Writer) {
		fmt.Fprintf(w, "Mode set to %s. API URL: %s\n", evt.Mode, evt.APIURL)
	})
}

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().StringVar(&setupMode, "mode", "", "Deployment mode: local, hub, spoke, enterprise")
	setupCmd.Flags().StringVar(&setupLabName, "lab-name", "", "Lab name advertised in hub mode")
	setupCmd.Flags().StringVar(&setupAPIURL, "api-url", "", "Remote API URL for spoke and enterprise modes")
	setupCmd.Flags().Uint16Var(&setupPort, "port", 3000, "Preferred data service port for local and hub modes")
	setupCmd.Flags().StringVar(&setupLicenseKey, "license-key", "", "License key for hub and enterprise modes")
	_ = setupCmd.MarkFlagRequired("mode")
}
