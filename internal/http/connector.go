package http

import (
	"context"
	"crypto/x509"
	"net"
	"time"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// DefaultConnectTimeout bounds dialing and the TLS handshake
const DefaultConnectTimeout = 5 * time.Second

// Connector opens plaintext or TLS transports to a target
type Connector struct {
	Timeout time.Duration
	Profile TLSProfile

	// RootCAs overrides the system trust store when set
	RootCAs *x509.CertPool

	dialer *net.Dialer
}

// NewConnector creates a connector with the given timeout and TLS profile
func NewConnector(timeout time.Duration, profile TLSProfile) *Connector {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Connector{
		Timeout: timeout,
		Profile: profile,
		dialer: &net.Dialer{
			Timeout: timeout,
		},
	}
}

// Connect dials the target and, for https, completes the TLS handshake.
// Every failure is returned as a network-kind *types.VisitError.
func (c *Connector) Connect(ctx context.Context, t Target) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, types.NewVisitError(types.KindNetwork, "connect", t.Addr(), err)
	}

	if !t.UseTLS() {
		return conn, nil
	}

	tlsConn, err := c.wrapTLS(ctx, conn, t.Host)
	if err != nil {
		conn.Close()
		return nil, types.NewVisitError(types.KindNetwork, "tls handshake", t.Addr(), err)
	}

	return tlsConn, nil
}
