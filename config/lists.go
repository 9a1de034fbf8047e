package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jpalmerr/pingagent"
)

// deviceFieldSep separates the fields of a device list line.
const deviceFieldSep = "|"

// LoadDevices reads a device list file.
//
// A missing or unreadable file is an error; the agent cannot run without
// devices.
func LoadDevices(path string) ([]pingagent.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open devices file: %w", err)
	}
	defer func() { _ = f.Close() }()

	devices, err := ParseDevices(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return devices, nil
}

// ParseDevices parses a device list, one device per line:
//
//	deviceId|authToken|label
//
// Fields are trimmed and the label is optional. Blank lines and lines
// starting with # are skipped. A line without a token, or repeating an
// earlier device ID, is an error naming the line.
func ParseDevices(r io.Reader) ([]pingagent.Device, error) {
	var devices []pingagent.Device
	seen := make(map[string]int)

	err := scanLines(r, func(lineNo int, line string) error {
		fields := strings.Split(line, deviceFieldSep)

		id := strings.TrimSpace(fields[0])
		if id == "" {
			return fmt.Errorf("devices line %d: device id is required", lineNo)
		}
		if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
			return fmt.Errorf("devices line %d (%s): auth token is required", lineNo, id)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("devices line %d (%s): duplicate of line %d", lineNo, id, prev)
		}
		seen[id] = lineNo

		var label string
		if len(fields) > 2 {
			label = fields[2]
		}

		d, err := pingagent.NewDevice(id, fields[1], label)
		if err != nil {
			return fmt.Errorf("devices line %d: %w", lineNo, err)
		}
		devices = append(devices, d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return devices, nil
}

// LoadProxies reads a proxy list file.
//
// The returned error wraps [os.ErrNotExist] when the file is missing, which
// callers typically treat as an empty list.
func LoadProxies(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxies file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseProxies(f)
}

// ParseProxies parses a proxy list, one URI per line. Blank lines and lines
// starting with # are skipped. Entries are not validated here; unsupported
// schemes are reported when the rotation is built.
func ParseProxies(r io.Reader) ([]string, error) {
	var proxies []string
	err := scanLines(r, func(_ int, line string) error {
		proxies = append(proxies, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proxies, nil
}

// scanLines calls fn with each trimmed, non-blank, non-comment line and its
// 1-based line number.
func scanLines(r io.Reader, fn func(lineNo int, line string) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read line %d: %w", lineNo+1, err)
	}
	return nil
}
