// Package server provides the optional status HTTP server of the ping agent.
//
// It is read-only and serves what the store holds:
//
//   - Status page: the embedded dashboard at "/"
//   - Liveness: "/healthz"
//   - REST API: "/api/status" for every device, "/api/devices/{id}" for one
//   - Server-Sent Events: each new ping record at "/api/sse"
//
// Auth tokens never reach this package; records carry device IDs and labels
// only. The server shuts down with a 5-second grace period when its context
// is cancelled.
package server
