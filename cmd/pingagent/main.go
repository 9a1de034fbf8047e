// Package main is the entry point for the pingagent CLI.
//
// The agent can be embedded as a library or run as this standalone binary
// with a YAML configuration file and plain-text device and proxy lists.
//
// Usage:
//
//	pingagent run                          # devices.txt and proxy.txt in the working directory
//	pingagent run -c pingagent.yaml        # settings from a config file
//	pingagent run --proxy                  # rotate through proxy.txt
//	pingagent run --prompt                 # ask for the proxy mode on stdin
//	pingagent validate -c pingagent.yaml   # check config and lists, then exit
//	pingagent version                      # show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree. Commands are built per call so flag
// state never leaks between executions.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pingagent",
		Short: "Keep devices marked online with periodic heartbeat pings",
		Long: `pingagent keeps remote devices marked as online by sending an
authenticated heartbeat ping for each device on a randomized schedule,
optionally rotating through HTTP or SOCKS proxies.

Quick start:
  1. Create devices.txt with one "deviceId|authToken|label" per line
  2. Optionally create proxy.txt with one proxy URI per line
  3. Run: pingagent run

Example config:
  base_url: https://api.hivello.services
  use_proxy: true
  cycle_interval:
    min: 6m
    max: 7m`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newValidateCmd(), newVersionCmd())
	return root
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this pingagent binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pingagent %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
