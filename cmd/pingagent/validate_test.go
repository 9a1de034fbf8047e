package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunValidate_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	devices := writeFile(t, dir, "devices.txt", "a|t1|Alpha\nb|t2\n")
	proxies := writeFile(t, dir, "proxy.txt", "http://u:p@10.0.0.1:8080\nftp://10.0.0.2:21\n")
	cfg := writeFile(t, dir, "config.yaml", `
devices_file: `+devices+`
proxies_file: `+proxies+`
use_proxy: true
devices:
  - id: c
    token: t3
`)

	out, _, err := executeCmd(context.Background(), "", "validate", "-c", cfg)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Devices:        3",
		"Proxies:        2 (1 unsupported), use_proxy=true",
		"Cycle interval: 6m0s - 7m0s",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(out, phrase) {
			t.Errorf("output missing %q\nfull output:\n%s", phrase, out)
		}
	}
	if strings.Contains(out, "u:p@") {
		t.Errorf("output leaks proxy credentials:\n%s", out)
	}
}

func TestRunValidate_MissingProxiesFileIsFine(t *testing.T) {
	dir := t.TempDir()
	devices := writeFile(t, dir, "devices.txt", "a|t1\n")
	cfg := writeFile(t, dir, "config.yaml", "devices_file: "+devices+"\nproxies_file: "+filepath.Join(dir, "none.txt")+"\n")

	out, _, err := executeCmd(context.Background(), "", "validate", "-c", cfg)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(out, "Proxies:        0") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "cycle_interval:\n  min: 5m\n  max: 1m\n")

	_, _, err := executeCmd(context.Background(), "", "validate", "-c", cfg)
	if err == nil {
		t.Fatal("validate should fail for invalid config")
	}
	if !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunValidate_MissingDevicesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "devices_file: "+filepath.Join(dir, "none.txt")+"\n")

	_, _, err := executeCmd(context.Background(), "", "validate", "-c", cfg)
	if err == nil || !strings.Contains(err.Error(), "failed to load devices") {
		t.Fatalf("error = %v, want devices error", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, _, err := executeCmd(context.Background(), "", "validate", "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("validate should fail for missing config file")
	}
}
