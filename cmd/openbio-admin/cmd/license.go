package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/openbio/openbio/internal/api"
)

var (
	trialEmail string
	trialTier  string
)

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Inspect the license or start a trial",
}

var licenseShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active or cached license",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		lic, err := c.License(cmd.Context())
		if IsStatus(err, http.StatusNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No license on this machine.")
			return nil
		}
		if err != nil {
			return err
		}

		return render(cmd, lic, func(w io.Writer) {
			writeFields(w, [][2]string{
				{"Key", lic.Key},
				{"Tier", string(lic.Tier)},
				{"Expires", lic.ExpiresAt},
				{"Organization", lic.OrganizationName},
			})
		})
	},
}

var licenseTrialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Start a trial license",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		key, err := c.StartTrial(cmd.Context(), api.TrialRequest{Email: trialEmail, Tier: trialTier})
		if err != nil {
			return err
		}

		return render(cmd, api.TrialResponse{TrialLicense: key}, func(w io.Writer) {
			fmt.Fprintf(w, "Trial license: %s\n", key)
			fmt.Fprintln(w, "Use it with: openbio-admin setup --license-key <key> ...")
		})
	},
}

func init() {
	rootCmd.AddCommand(licenseCmd)
	licenseCmd.AddCommand(licenseShowCmd)
	licenseCmd.AddCommand(licenseTrialCmd)

	licenseTrialCmd.Flags().StringVar(&trialEmail, "email", "", "Contact email for the trial")
	licenseTrialCmd.Flags().StringVar(&trialTier, "tier", "hub", "Tier: hub, enterprise")
	_ = licenseTrialCmd.MarkFlagRequired("email")
}
