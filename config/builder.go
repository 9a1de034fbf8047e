package config

import (
	"fmt"

	"github.com/jpalmerr/pingagent"
)

// BuildDevices converts the inline devices of cfg into SDK devices.
func BuildDevices(cfg *Config) ([]pingagent.Device, error) {
	devices := make([]pingagent.Device, 0, len(cfg.Devices))
	for i, dc := range cfg.Devices {
		d, err := pingagent.NewDevice(dc.ID, dc.Token, dc.Label)
		if err != nil {
			return nil, fmt.Errorf("devices[%d]: %w", i, err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// MergeDevices appends extra to base, skipping devices whose ID is already
// present. Earlier entries win.
func MergeDevices(base, extra []pingagent.Device) []pingagent.Device {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]pingagent.Device, 0, len(base)+len(extra))
	for _, list := range [][]pingagent.Device{base, extra} {
		for _, d := range list {
			if _, dup := seen[d.ID()]; dup {
				continue
			}
			seen[d.ID()] = struct{}{}
			merged = append(merged, d)
		}
	}
	return merged
}

// BuildOptions converts parsed configuration into agent options.
//
// devices and proxies come from the list files (or elsewhere); the caller
// adds a logger and callbacks as needed.
func BuildOptions(cfg *Config, devices []pingagent.Device, proxies []string) []pingagent.Option {
	opts := []pingagent.Option{
		pingagent.WithDevices(devices...),
		pingagent.WithProxies(proxies...),
		pingagent.WithProxyMode(cfg.UseProxy),
		pingagent.WithBaseURL(cfg.BaseURL),
		pingagent.WithRequestTimeout(cfg.RequestTimeout.Duration()),
		pingagent.WithPacing(cfg.Pacing.Duration()),
		pingagent.WithCycleInterval(cfg.CycleInterval.Min.Duration(), cfg.CycleInterval.Max.Duration()),
		pingagent.WithStatusPort(cfg.StatusPort),
	}

	if cfg.UserAgent != "" {
		opts = append(opts, pingagent.WithUserAgent(cfg.UserAgent))
	}

	return opts
}
