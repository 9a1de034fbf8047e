package pingagent

import "time"

// PingResult holds the outcome of a single ping.
//
// PingResult is passed by value to callbacks registered with
// [WithPingCallback]. It never carries the device token.
type PingResult struct {
	// DeviceID and Label identify the pinged device.
	DeviceID string
	Label    string

	// Cycle is the polling cycle the ping belongs to, starting at 1.
	Cycle uint64

	// Proxy is the proxy URI used with credentials masked, or empty when the
	// ping went direct.
	Proxy string

	// OK reports whether the API answered with a 2xx status.
	OK bool

	// StatusCode is the HTTP status code, zero if no response was received.
	StatusCode int

	// Latency is the time taken to complete the request.
	Latency time.Duration

	// SentAt is when the ping was sent.
	SentAt time.Time

	// Error is nil for accepted pings and describes the failure otherwise.
	Error error
}
