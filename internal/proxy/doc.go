// Package proxy parses proxy endpoints and hands them out in round-robin order.
//
// The main components are:
//
//   - [Endpoint]: a proxy URI classified by scheme (HTTP, SOCKS4, SOCKS5)
//   - [Rotator]: a shared round-robin cursor over a fixed endpoint list
//   - [TransportFor]: builds an [net/http.RoundTripper] that routes through an endpoint
//
// Entries that cannot be classified are kept in the rotation so the cursor
// stays aligned with the source list, but requests assigned to them go direct.
package proxy
