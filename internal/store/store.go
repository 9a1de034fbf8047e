package store

import "time"

const (
	// StatusOK marks a record whose last ping was accepted.
	StatusOK = "ok"

	// StatusFailed marks a record whose last ping failed.
	StatusFailed = "failed"
)

// PingRecord is the latest ping result for one device.
//
// PingRecord is optimized for JSON serialization (used by the REST API and
// SSE). It never carries the device's auth token.
type PingRecord struct {
	// DeviceID identifies the device.
	DeviceID string `json:"device_id"`

	// Label is the device's display name.
	Label string `json:"label"`

	// Cycle is the polling cycle that produced the record.
	Cycle uint64 `json:"cycle"`

	// Status is StatusOK or StatusFailed.
	Status string `json:"status"`

	// Proxy is the masked proxy URI used, empty for direct requests.
	Proxy string `json:"proxy,omitempty"`

	// StatusCode is the HTTP status code, zero if no response was received.
	StatusCode int `json:"status_code"`

	// ResponseTimeMs is the request latency in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// CheckedAt is when the ping was sent.
	CheckedAt time.Time `json:"checked_at"`

	// Error contains the error message if the ping failed.
	Error *string `json:"error"`

	// Counters are maintained by the store; values set by callers of
	// Update are ignored.
	ConsecutiveFailures int    `json:"consecutive_failures"`
	TotalSuccesses      uint64 `json:"total_successes"`
	TotalFailures       uint64 `json:"total_failures"`
}

// Store defines the interface for storing and subscribing to ping records.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a new record and notifies all subscribers.
	// Records are keyed by DeviceID; counters carry over from the previous record.
	Update(record PingRecord)

	// Get returns the record for one device.
	Get(deviceID string) (PingRecord, bool)

	// GetAll returns all records ordered by DeviceID.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []PingRecord

	// Subscribe returns a channel that receives updated records.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan PingRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan PingRecord)
}
