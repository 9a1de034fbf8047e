package proxy

import (
	"net/url"
	"strings"
)

// maskedUserInfo replaces embedded credentials when an endpoint is logged.
const maskedUserInfo = "*****:*****"

// Scheme identifies how requests are routed through a proxy endpoint.
type Scheme string

const (
	// SchemeNone marks an entry that could not be classified; requests go direct.
	SchemeNone Scheme = ""

	// SchemeHTTP is a plain HTTP proxy (CONNECT for https targets).
	SchemeHTTP Scheme = "http"

	// SchemeSOCKS4 is a SOCKS4 proxy.
	SchemeSOCKS4 Scheme = "socks4"

	// SchemeSOCKS5 is a SOCKS5 proxy.
	SchemeSOCKS5 Scheme = "socks5"
)

// Endpoint is a single entry from the proxy list.
//
// Endpoint is immutable after [ParseEndpoint]. The zero value means
// "no proxy".
type Endpoint struct {
	raw    string
	scheme Scheme
	url    *url.URL
}

// ParseEndpoint classifies a raw proxy URI by its scheme prefix.
//
// Recognised prefixes are socks4://, socks5://, socks5h://, http:// and
// https://. Anything else, including URIs that fail to parse, yields an
// Endpoint with [SchemeNone]; no error is returned because a bad entry only
// degrades that request to a direct connection.
func ParseEndpoint(raw string) Endpoint {
	raw = strings.TrimSpace(raw)
	ep := Endpoint{raw: raw}

	lower := strings.ToLower(raw)
	var scheme Scheme
	switch {
	case strings.HasPrefix(lower, "socks4://"):
		scheme = SchemeSOCKS4
	case strings.HasPrefix(lower, "socks5://"), strings.HasPrefix(lower, "socks5h://"):
		scheme = SchemeSOCKS5
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		scheme = SchemeHTTP
	default:
		return ep
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ep
	}

	ep.scheme = scheme
	ep.url = u
	return ep
}

// Raw returns the endpoint exactly as it appeared in the source list.
func (e Endpoint) Raw() string {
	return e.raw
}

// Scheme returns the classified scheme, or [SchemeNone].
func (e Endpoint) Scheme() Scheme {
	return e.scheme
}

// URL returns a copy of the parsed URL, or nil for unclassified entries.
func (e Endpoint) URL() *url.URL {
	if e.url == nil {
		return nil
	}
	cp := *e.url
	return &cp
}

// IsZero reports whether e is the "no proxy" value.
func (e Endpoint) IsZero() bool {
	return e.raw == ""
}

// Usable reports whether requests can actually be routed through e.
func (e Endpoint) Usable() bool {
	return e.scheme != SchemeNone && e.url != nil
}

// Masked returns the endpoint with any user:pass@ section replaced so it
// is safe to log.
func (e Endpoint) Masked() string {
	return MaskCredentials(e.raw)
}

// String implements fmt.Stringer and never exposes credentials.
func (e Endpoint) String() string {
	return e.Masked()
}

// MaskCredentials replaces the userinfo of a URI-like string with
// "*****:*****". Strings without userinfo are returned unchanged.
func MaskCredentials(raw string) string {
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return raw
	}
	rest := raw[schemeEnd+3:]

	// userinfo can only appear before the first path, query or fragment
	authorityEnd := strings.IndexAny(rest, "/?#")
	if authorityEnd < 0 {
		authorityEnd = len(rest)
	}
	at := strings.LastIndex(rest[:authorityEnd], "@")
	if at < 0 {
		return raw
	}

	return raw[:schemeEnd+3] + maskedUserInfo + rest[at:]
}
