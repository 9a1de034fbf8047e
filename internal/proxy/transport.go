package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	netproxy "golang.org/x/net/proxy"
	"h12.io/socks"
)

// defaultDialTimeout bounds the TCP handshake with the proxy itself.
const defaultDialTimeout = 10 * time.Second

// ErrUnsupported is returned by [TransportFor] for endpoints that cannot
// carry traffic.
var ErrUnsupported = errors.New("unsupported proxy endpoint")

// TransportFor returns a RoundTripper that sends requests through ep.
//
// The base transport is cloned so pooling settings carry over; base may be
// nil, in which case [http.DefaultTransport] is cloned. HTTP proxies use
// [http.ProxyURL], SOCKS5 uses golang.org/x/net/proxy and SOCKS4 uses
// h12.io/socks.
func TransportFor(ep Endpoint, base *http.Transport) (http.RoundTripper, error) {
	if !ep.Usable() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ep.Masked())
	}

	var t *http.Transport
	if base != nil {
		t = base.Clone()
	} else {
		t = http.DefaultTransport.(*http.Transport).Clone()
	}

	u := ep.URL()
	switch ep.Scheme() {
	case SchemeHTTP:
		t.Proxy = http.ProxyURL(u)

	case SchemeSOCKS5:
		dialer, err := netproxy.FromURL(u, &net.Dialer{Timeout: defaultDialTimeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		t.Proxy = nil
		t.DialContext = contextDialer(dialer)

	case SchemeSOCKS4:
		q := u.Query()
		if q.Get("timeout") == "" {
			q.Set("timeout", defaultDialTimeout.String())
			u.RawQuery = q.Encode()
		}
		dial := socks.Dial(u.String())
		t.Proxy = nil
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return dial(network, addr)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ep.Masked())
	}

	return t, nil
}

// contextDialer adapts an x/net/proxy dialer to http.Transport.DialContext.
func contextDialer(d netproxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(netproxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return d.Dial(network, addr)
	}
}
