// Package mockapi is a stand-in for the device ping API, for demos and
// manual testing of the agent.
package mockapi

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

// PingRequest is the body the agent sends with every ping.
type PingRequest struct {
	Status        string `json:"status"`
	NetworkStatus []struct {
		Chain   string `json:"chain"`
		Earning bool   `json:"earning"`
	} `json:"network_status"`
}

// DeviceState is what the mock remembers about a device.
type DeviceState struct {
	Pings    int       `json:"pings"`
	LastSeen time.Time `json:"last_seen"`
	Status   string    `json:"status"`
}

// API is an in-memory ping API.
//
// Pings need a bearer token and a JSON body with a status. FailureRate is the
// fraction of otherwise valid pings answered with 503.
type API struct {
	FailureRate float64
	Logger      *slog.Logger

	mu      sync.Mutex
	devices map[string]*DeviceState
}

// New creates an API that fails the given fraction of pings.
func New(failureRate float64, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		FailureRate: failureRate,
		Logger:      logger,
		devices:     make(map[string]*DeviceState),
	}
}

// Handler returns the API routes:
//   - POST /devices/{id}/ping
//   - GET /devices, the state of every device seen so far
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /devices/{id}/ping", a.handlePing)
	mux.HandleFunc("GET /devices", a.handleDevices)
	return mux
}

// Devices returns a snapshot of every device seen so far.
func (a *API) Devices() map[string]DeviceState {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]DeviceState, len(a.devices))
	for id, s := range a.devices {
		out[id] = *s
	}
	return out
}

func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req PingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	if a.FailureRate > 0 && rand.Float64() < a.FailureRate {
		a.Logger.Info("ping rejected", "device_id", id)
		http.Error(w, `{"error":"temporarily unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	a.mu.Lock()
	state, exists := a.devices[id]
	if !exists {
		state = &DeviceState{}
		a.devices[id] = state
	}
	state.Pings++
	state.LastSeen = time.Now()
	state.Status = req.Status
	pings := state.Pings
	a.mu.Unlock()

	a.Logger.Info("ping accepted", "device_id", id, "pings", pings, "chains", len(req.NetworkStatus))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"ok": true, "pings": pings}); err != nil {
		a.Logger.Error("failed to write response", "error", err)
	}
}

func (a *API) handleDevices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.Devices()); err != nil {
		a.Logger.Error("failed to write response", "error", err)
	}
}
