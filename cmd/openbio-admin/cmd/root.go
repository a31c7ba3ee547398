// Package cmd contains all CLI commands for openbio-admin.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	controlURL string
	output     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "openbio-admin",
	Short: "CLI tool for managing a local OpenBio instance",
	Long: `openbio-admin talks to the control API of a running openbio process.

It provides commands to:
  - Show the active deployment mode and API endpoint
  - Run setup (local, hub, spoke or enterprise)
  - Scan the lab network for hubs
  - Inspect the license and start a trial

Examples:
  # Show status
  openbio-admin status

  # Become a hub
  openbio-admin setup --mode hub --lab-name "Smith Lab" --license-key XXXX

  # Find a hub and join it as a spoke
  openbio-admin scan --use 1

Environment Variables:
  OPENBIO_ADMIN_URL  Base URL of the control API (default: http://127.0.0.1:4873)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if output != "table" && output != "json" {
			return fmt.Errorf("unknown output format %q (want table or json)", output)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&controlURL, "url", "u", getEnvOrDefault("OPENBIO_ADMIN_URL", "http://127.0.0.1:4873"), "Control API base URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func client() (*Client, error) {
	return NewClient(controlURL)
}

// render writes v as indented JSON with -o json, otherwise calls table
func render(cmd *cobra.Command, v interface{}, table func(w io.Writer)) error {
	if output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// writeRows writes a header, an underline and the rows as tab separated cells
func writeRows(w io.Writer, headers []string, rows [][]string) {
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	under := make([]string, len(headers))
	for i, h := range headers {
		under[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(under, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}

// writeFields writes "Key:\tvalue" lines, skipping empty values
func writeFields(w io.Writer, fields [][2]string) {
	for _, f := range fields {
		if f[1] != "" {
			fmt.Fprintf(w, "%s:\t%s\n", f[0], f[1])
		}
	}
}
