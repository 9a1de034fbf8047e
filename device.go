package pingagent

import (
	"errors"
	"log/slog"
	"strings"
)

// Device is one remote device the agent keeps marked as online.
//
// Device is immutable after creation via [NewDevice]. The auth token is only
// reachable through [Device.Token]; String and LogValue never include it, so
// a Device can be passed to loggers and format verbs safely.
type Device struct {
	id    string
	token string
	label string
}

// NewDevice creates a [Device].
//
// id and token are required and trimmed of surrounding whitespace. An empty
// label defaults to id.
//
// Example:
//
//	dev, err := pingagent.NewDevice("a1b2c3", os.Getenv("RIG_TOKEN"), "basement rig")
func NewDevice(id, token, label string) (Device, error) {
	id = strings.TrimSpace(id)
	token = strings.TrimSpace(token)
	label = strings.TrimSpace(label)

	if id == "" {
		return Device{}, errors.New("device id cannot be empty")
	}
	if token == "" {
		return Device{}, errors.New("device token cannot be empty")
	}
	if label == "" {
		label = id
	}

	return Device{id: id, token: token, label: label}, nil
}

// ID returns the device identifier used in the ping URL.
func (d Device) ID() string {
	return d.id
}

// Token returns the bearer token sent with each ping.
func (d Device) Token() string {
	return d.token
}

// Label returns the display name used in logs and the status API.
func (d Device) Label() string {
	return d.label
}

// String returns the label.
func (d Device) String() string {
	return d.label
}

// LogValue implements [slog.LogValuer].
func (d Device) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", d.id),
		slog.String("label", d.label),
	)
}
