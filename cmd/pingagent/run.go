package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pingagent"
	"github.com/jpalmerr/pingagent/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// runFlags holds the command-line overrides for the run command.
type runFlags struct {
	configFile  string
	devicesFile string
	proxiesFile string
	useProxy    bool
	prompt      bool
	debug       bool
	statusPort  int
}

// newRunCmd starts the polling loop.
func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start pinging devices",
		Long: `Start the ping agent.

The agent will:
  - Load settings from the config file, or use the defaults
  - Load devices from the devices file (required) and proxies from the
    proxies file (optional)
  - Ping every device once per cycle, one at a time, then sleep a random
    interval and repeat

The agent runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pingagent run
  pingagent run -c /etc/pingagent/config.yaml --proxy
  pingagent run --devices rigs.txt --prompt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configFile, "config", "c", "", "path to config file (defaults apply when omitted)")
	f.StringVar(&flags.devicesFile, "devices", "", "device list file, overrides devices_file")
	f.StringVar(&flags.proxiesFile, "proxies", "", "proxy list file, overrides proxies_file")
	f.BoolVar(&flags.useProxy, "proxy", false, "rotate through the proxy list, overrides use_proxy")
	f.BoolVar(&flags.prompt, "prompt", false, "ask for the proxy mode on stdin")
	f.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	f.IntVar(&flags.statusPort, "status-port", 0, "serve the status API on this port, overrides status_port")

	return cmd
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runAgent(cmd *cobra.Command, flags runFlags) error {
	cfg, err := loadConfig(flags.configFile)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("devices") {
		cfg.DevicesFile = flags.devicesFile
	}
	if f.Changed("proxies") {
		cfg.ProxiesFile = flags.proxiesFile
	}
	if f.Changed("proxy") {
		cfg.UseProxy = flags.useProxy
	}
	if f.Changed("status-port") {
		cfg.StatusPort = flags.statusPort
	}
	if flags.debug {
		cfg.LogLevel = "debug"
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	devices, err := loadDevices(cfg, logger)
	if err != nil {
		return err
	}

	if flags.prompt {
		cfg.UseProxy = promptProxyMode(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.ProxiesFile)
	}

	var proxies []string
	if cfg.UseProxy {
		proxies = loadProxies(cfg.ProxiesFile, logger)
	}

	logger.Info("devices loaded", "count", len(devices))
	for _, d := range devices {
		logger.Info("device", "label", d.Label(), "device_id", d.ID())
	}

	opts := append(config.BuildOptions(cfg, devices, proxies), pingagent.WithLogger(logger))
	agent, err := pingagent.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- agent.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("agent error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// loadDevices combines inline devices with the devices file. A configured
// file that is missing or malformed is fatal, as is ending up with no
// devices at all.
func loadDevices(cfg *config.Config, logger *slog.Logger) ([]pingagent.Device, error) {
	devices, err := config.BuildDevices(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid inline devices: %w", err)
	}

	if cfg.DevicesFile != "" {
		fromFile, err := config.LoadDevices(cfg.DevicesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load devices: %w", err)
		}
		before := len(devices) + len(fromFile)
		devices = config.MergeDevices(devices, fromFile)
		if skipped := before - len(devices); skipped > 0 {
			logger.Warn("skipped devices already defined inline", "file", cfg.DevicesFile, "count", skipped)
		}
	}

	if len(devices) == 0 {
		return nil, errors.New("no devices configured")
	}
	return devices, nil
}

// loadProxies reads the proxy list. Problems are logged and yield an empty
// list, which sends every ping direct.
func loadProxies(path string, logger *slog.Logger) []string {
	if path == "" {
		logger.Warn("proxy mode enabled without a proxies file, pinging direct")
		return nil
	}

	proxies, err := config.LoadProxies(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("proxies file not found, pinging direct", "file", path)
		return nil
	}
	if err != nil {
		logger.Error("failed to load proxies, pinging direct", "file", path, "error", err)
		return nil
	}

	logger.Info("proxies loaded", "file", path, "count", len(proxies))
	return proxies
}
