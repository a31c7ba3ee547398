package cmd

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active mode and API endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}

		apiURL := st.APIURL
		if apiURL == "" {
			apiURL = "-"
		}
		return render(cmd, st, func(w io.Writer) {
			writeFields(w, [][2]string{
				{"Mode", st.Mode},
				{"Active", strconv.FormatBool(st.Active)},
				{"API URL", apiURL},
				{"Error", st.Error},
			})
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the deployment configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the deployment configuration in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		cfg, err := c.Config(cmd.Context())
		if err != nil {
			return err
		}

		port := ""
		if cfg.ServerPort != 0 {
			port = strconv.Itoa(int(cfg.ServerPort))
		}
		return render(cmd, cfg, func(w io.Writer) {
			writeFields(w, [][2]string{
				{"Mode", string(cfg.Mode)},
				{"Lab name", cfg.LabName},
				{"API URL", cfg.APIURL},
				{"Server port", port},
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
}
