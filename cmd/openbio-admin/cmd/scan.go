package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openbio/openbio/internal/api"
)

var scanUse int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the lab network for hubs",
	Long: `Scan the local network for OpenBio hubs.

With --use N the N-th hub of the listing is configured as this instance's
API endpoint (spoke mode).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		peers, err := c.Scan(cmd.Context())
		if err != nil {
			return err
		}

		if scanUse > 0 {
			if scanUse > len(peers) {
				return fmt.Errorf("no hub number %d (found %d)", scanUse, len(peers))
			}
			return applySetup(cmd, api.SetupRequest{Mode: "spoke", APIURL: peers[scanUse-1].URL})
		}

		return render(cmd, api.ScanResponse{Peers: peers}, func(w io.Writer) {
			if len(peers) == 0 {
				fmt.Fprintln(w, "No hubs found.")
				return
			}
			rows := make([][]string, len(peers))
			for i, p := range peers {
				rows[i] = []string{strconv.Itoa(i + 1), p.Name, p.URL}
			}
			writeRows(w, []string{"#", "NAME", "URL"}, rows)
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanUse, "use", 0, "Join the N-th hub found as a spoke")
}
