package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pingagent/config"
	"github.com/jpalmerr/pingagent/internal/proxy"
)

// newValidateCmd validates configuration and list files without pinging.
func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file and its device and proxy lists",
		Long: `Validate a pingagent configuration without sending any pings.

This command parses the YAML, expands environment variables, loads the
device list and checks every proxy URI. It's useful for CI/CD pipelines
or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pingagent validate -c config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(out io.Writer, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	devices, err := loadDevices(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	proxyCount, unsupported := 0, 0
	if cfg.ProxiesFile != "" {
		proxies, err := config.LoadProxies(cfg.ProxiesFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("invalid config: %w", err)
		}
		proxyCount = len(proxies)
		for _, raw := range proxies {
			if !proxy.ParseEndpoint(raw).Usable() {
				unsupported++
				fmt.Fprintf(out, "warning: unsupported proxy %s is kept in rotation but pinged direct\n", proxy.MaskCredentials(raw))
			}
		}
	}

	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Base URL:       %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Devices:        %d\n", len(devices))
	fmt.Fprintf(out, "  Proxies:        %d (%d unsupported), use_proxy=%t\n", proxyCount, unsupported, cfg.UseProxy)
	fmt.Fprintf(out, "  Cycle interval: %s - %s\n", cfg.CycleInterval.Min.Duration(), cfg.CycleInterval.Max.Duration())
	fmt.Fprintf(out, "  Pacing:         %s\n", cfg.Pacing.Duration())

	return nil
}
