// Package store keeps the latest ping record for every device.
//
// This package is internal to pingagent. It holds what the status server
// reports: the most recent outcome per device plus running counters, and a
// publish-subscribe channel for live updates.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [PingRecord]: Storage representation of a device's last ping
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the polling loop).
// Nothing is persisted; counters restart with the process.
package store
