// Package main provides the openbio-admin CLI for inspecting and configuring
// a running openbio instance through its control API.
package main

import (
	"os"

	"github.com/openbio/openbio/cmd/openbio-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
