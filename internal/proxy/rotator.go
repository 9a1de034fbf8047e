package proxy

import (
	"log/slog"
	"sync"
)

// Rotator hands out proxy endpoints in strict round-robin order.
//
// A single cursor is shared by every caller, so consecutive calls walk the
// list regardless of which device asks. The list is fixed at construction.
// Rotator is safe for concurrent use.
type Rotator struct {
	mu        sync.Mutex
	endpoints []Endpoint
	cursor    int
}

// NewRotator parses raw proxy URIs and returns a [Rotator] over them.
//
// Entries that cannot be classified are logged and kept in place; when the
// rotation reaches one, the request goes out direct. A nil logger falls
// back to [slog.Default].
func NewRotator(raw []string, logger *slog.Logger) *Rotator {
	if logger == nil {
		logger = slog.Default()
	}

	endpoints := make([]Endpoint, 0, len(raw))
	for i, r := range raw {
		ep := ParseEndpoint(r)
		if ep.IsZero() {
			continue
		}
		if !ep.Usable() {
			logger.Warn("unsupported proxy entry, requests using it will go direct",
				"index", i,
				"proxy", ep.Masked(),
			)
		}
		endpoints = append(endpoints, ep)
	}

	return &Rotator{endpoints: endpoints}
}

// Next returns the endpoint at the cursor and advances the cursor.
//
// The second return value is false when the rotator is empty, in which
// case the caller should dispatch direct.
func (r *Rotator) Next() (Endpoint, bool) {
	if r == nil {
		return Endpoint{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.endpoints) == 0 {
		return Endpoint{}, false
	}

	ep := r.endpoints[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.endpoints)
	return ep, true
}

// Len returns the number of endpoints in the rotation.
func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.endpoints)
}
