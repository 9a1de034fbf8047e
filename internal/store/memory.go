package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the channel capacity given to each subscriber.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Records are keyed by device ID, with new records replacing previous ones
// while counters accumulate. Subscribers receive updates via buffered
// channels; if a subscriber's buffer is full, the update is dropped for that
// subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]PingRecord
	subscribers map[chan PingRecord]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]PingRecord),
		subscribers: make(map[chan PingRecord]struct{}),
	}
}

// Update stores a [PingRecord] and notifies all subscribers.
//
// Subscribers receive the stored record, i.e. with counters applied.
func (m *MemoryStore) Update(record PingRecord) {
	m.mu.Lock()
	prev := m.records[record.DeviceID]
	record.TotalSuccesses = prev.TotalSuccesses
	record.TotalFailures = prev.TotalFailures
	if record.Status == StatusOK {
		record.TotalSuccesses++
		record.ConsecutiveFailures = 0
	} else {
		record.TotalFailures++
		record.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	}
	m.records[record.DeviceID] = record
	m.mu.Unlock()

	m.notifySubscribers(record)
}

// Get returns the record for deviceID.
func (m *MemoryStore) Get(deviceID string) (PingRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[deviceID]
	return record, ok
}

// GetAll returns a snapshot of all records ordered by device ID.
func (m *MemoryStore) GetAll() []PingRecord {
	m.mu.RLock()
	records := make([]PingRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].DeviceID < records[j].DeviceID
	})
	return records
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan PingRecord {
	ch := make(chan PingRecord, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan PingRecord) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the record to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(record PingRecord) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- record:
		default:
			// subscriber is slow, drop the message
		}
	}
}
