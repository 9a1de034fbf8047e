// Package config provides YAML configuration and list-file parsing for the
// ping agent.
//
// This package backs the pingagent binary, as an alternative to configuring
// the library with options in code.
//
// Example configuration:
//
//	base_url: https://api.hivello.services
//	devices_file: devices.txt
//	proxies_file: proxy.txt
//	use_proxy: true
//	request_timeout: 10s
//	pacing: 2s
//	cycle_interval:
//	  min: 6m
//	  max: 7m
//	status_port: 8080
//
//	devices:
//	  - id: a1b2c3
//	    token: ${RIG_TOKEN}
//	    label: basement rig
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// minRequestTimeout keeps a typo like "10ms" from failing every ping.
	minRequestTimeout = 1 * time.Second

	// minCycleInterval is the smallest allowed pause between cycles.
	minCycleInterval = 1 * time.Second
)

// Config is the root configuration structure for the ping agent.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML, or [Default] for the
// built-in settings.
type Config struct {
	// BaseURL is the API root. Supports ${VAR} substitution.
	BaseURL string `yaml:"base_url"`

	// DevicesFile is the device list, one "id|token|label" per line.
	// Set it to "" to rely on inline devices only.
	DevicesFile string `yaml:"devices_file"`

	// ProxiesFile is the proxy list, one URI per line. A missing file is
	// not an error.
	ProxiesFile string `yaml:"proxies_file"`

	// UseProxy turns proxy rotation on.
	UseProxy bool `yaml:"use_proxy"`

	// RequestTimeout bounds each ping. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// Pacing is the pause after each device. Defaults to 2s; 0s disables it.
	Pacing Duration `yaml:"pacing"`

	// CycleInterval bounds the random pause between cycles.
	CycleInterval IntervalConfig `yaml:"cycle_interval"`

	// StatusPort enables the status server when non-zero.
	StatusPort int `yaml:"status_port"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json. Defaults to text.
	LogFormat string `yaml:"log_format"`

	// UserAgent overrides the User-Agent header when non-empty.
	UserAgent string `yaml:"user_agent"`

	// Devices are pinged before the devices from DevicesFile.
	Devices []DeviceConfig `yaml:"devices"`
}

// IntervalConfig is a closed duration range.
type IntervalConfig struct {
	Min Duration `yaml:"min"`
	Max Duration `yaml:"max"`
}

// DeviceConfig defines one device inline in the configuration file.
type DeviceConfig struct {
	// ID is the device identifier.
	ID string `yaml:"id"`

	// Token is the bearer token. Supports ${VAR} substitution so secrets
	// can stay out of the file.
	Token string `yaml:"token"`

	// Label is the display name. Defaults to ID.
	Label string `yaml:"label"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:        "https://api.hivello.services",
		DevicesFile:    "devices.txt",
		ProxiesFile:    "proxy.txt",
		RequestTimeout: Duration(10 * time.Second),
		Pacing:         Duration(2 * time.Second),
		CycleInterval: IntervalConfig{
			Min: Duration(6 * time.Minute),
			Max: Duration(7 * time.Minute),
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data on top of [Default].
//
// Keys absent from data keep their default values. Environment variables are
// expanded in base_url, devices_file, proxies_file, user_agent and device
// tokens.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"base_url", &c.BaseURL},
		{"devices_file", &c.DevicesFile},
		{"proxies_file", &c.ProxiesFile},
		{"user_agent", &c.UserAgent},
	} {
		expanded, err := expandEnvVars(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = strings.TrimSpace(expanded)
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("base_url must have a host")
	}

	if c.RequestTimeout.Duration() < minRequestTimeout {
		return fmt.Errorf("request_timeout must be at least %s, got %s", minRequestTimeout, c.RequestTimeout.Duration())
	}
	if c.Pacing.Duration() < 0 {
		return fmt.Errorf("pacing cannot be negative, got %s", c.Pacing.Duration())
	}

	minIv, maxIv := c.CycleInterval.Min.Duration(), c.CycleInterval.Max.Duration()
	if minIv < minCycleInterval {
		return fmt.Errorf("cycle_interval.min must be at least %s, got %s", minCycleInterval, minIv)
	}
	if maxIv < minIv {
		return fmt.Errorf("cycle_interval.max (%s) must not be less than cycle_interval.min (%s)", maxIv, minIv)
	}

	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535, got %d", c.StatusPort)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}

	seen := make(map[string]struct{}, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		d.ID = strings.TrimSpace(d.ID)

		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("devices[%d] (%s): duplicate id", i, d.ID)
		}
		seen[d.ID] = struct{}{}

		expanded, err := expandEnvVars(d.Token)
		if err != nil {
			return fmt.Errorf("devices[%d] (%s): token: %w", i, d.ID, err)
		}
		d.Token = strings.TrimSpace(expanded)
		if d.Token == "" {
			return fmt.Errorf("devices[%d] (%s): token is required", i, d.ID)
		}
	}

	return nil
}
