package http

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Target is a URL resolved into what the connector and exchanger need
type Target struct {
	Scheme string
	Host   string // ASCII hostname, no brackets, no port
	Port   string
	Path   string // request-target: path plus query, never empty

	explicitPort bool
}

// ParseTarget parses a raw URL string. Unsupported schemes yield
// types.ErrUnknownProtocol; no network activity happens here.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, types.NewVisitError(types.KindInvalidURL, "parse url", raw, err)
	}

	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return Target{}, types.NewVisitError(types.KindUnknownProtocol, "parse url", raw,
			fmt.Errorf("%w %q", types.ErrUnknownProtocol, u.Scheme))
	}

	hostname := u.Hostname()
	if hostname == "" {
		return Target{}, types.NewVisitError(types.KindInvalidURL, "parse url", raw, fmt.Errorf("missing host"))
	}
	if !isASCII(hostname) {
		hostname, err = idna.Lookup.ToASCII(hostname)
		if err != nil {
			return Target{}, types.NewVisitError(types.KindInvalidURL, "parse url", raw, err)
		}
	}

	t := Target{
		Scheme: u.Scheme,
		Host:   strings.ToLower(hostname),
		Port:   port,
		Path:   u.RequestURI(),
	}
	if p := u.Port(); p != "" {
		t.Port = p
		t.explicitPort = p != port
	}
	if t.Path == "" {
		t.Path = "/"
	}

	return t, nil
}

// UseTLS reports whether the transport must be TLS-wrapped
func (t Target) UseTLS() bool {
	return t.Scheme == "https"
}

// Addr is the dial address
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, t.Port)
}

// HostHeader is the Host header value; the port is only included when it
// differs from the scheme default.
func (t Target) HostHeader() string {
	if t.explicitPort {
		return net.JoinHostPort(t.Host, t.Port)
	}
	if strings.Contains(t.Host, ":") {
		return "[" + t.Host + "]"
	}
	return t.Host
}

// BaseURL returns scheme://host, the base image references resolve against
func (t Target) BaseURL() string {
	return t.Scheme + "://" + t.HostHeader()
}

// String returns the normalized absolute URL
func (t Target) String() string {
	return t.BaseURL() + t.Path
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
