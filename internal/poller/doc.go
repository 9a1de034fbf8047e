// Package poller sends device pings and runs the sequential polling loop.
//
// This package is internal to pingagent. It owns everything between "a list
// of devices" and "a stream of ping outcomes".
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and per-proxy transports
//   - [PingDispatcher]: sends a single ping and converts every failure into an [Outcome]
//   - [Scheduler]: visits every device once per cycle, pacing requests and
//     sleeping a randomized interval between cycles
//
// Users of the pingagent library should not need to interact with this
// package directly. Configuration is done through the main pingagent package.
package poller
