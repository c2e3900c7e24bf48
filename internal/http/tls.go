package http

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// TLSProfile represents a ClientHello fingerprint
type TLSProfile struct {
	Name     string
	ClientID utls.ClientHelloID
}

// DefaultTLSProfile keeps the Go standard library handshake
var DefaultTLSProfile = TLSProfile{Name: "golang", ClientID: utls.HelloGolang}

var tlsProfiles = map[string]TLSProfile{
	"golang":      DefaultTLSProfile,
	"chrome_120":  {Name: "chrome_120", ClientID: utls.HelloChrome_120},
	"chrome_131":  {Name: "chrome_131", ClientID: utls.HelloChrome_131},
	"chrome_133":  {Name: "chrome_133", ClientID: utls.HelloChrome_133},
	"firefox_120": {Name: "firefox_120", ClientID: utls.HelloFirefox_120},
	"edge_106":    {Name: "edge_106", ClientID: utls.HelloEdge_106},
}

// TLSProfileByName looks up a profile; the empty name is the default
func TLSProfileByName(name string) (TLSProfile, error) {
	if name == "" {
		return DefaultTLSProfile, nil
	}
	profile, ok := tlsProfiles[strings.ToLower(name)]
	if !ok {
		return TLSProfile{}, fmt.Errorf("unknown TLS profile %q", name)
	}
	return profile, nil
}

// TLSProfileNames lists the known profile names
func TLSProfileNames() []string {
	names := make([]string, 0, len(tlsProfiles))
	for name := range tlsProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wrapTLS runs the client handshake over conn. Certificates are verified
// against the system roots (or c.RootCAs) with serverName as SNI and
// verification name.
func (c *Connector) wrapTLS(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	config := &utls.Config{
		ServerName: serverName,
		RootCAs:    c.RootCAs,
		NextProtos: []string{"http/1.1"},
		MinVersion: utls.VersionTLS12,
	}

	uconn, err := c.newUConn(conn, config)
	if err != nil {
		return nil, err
	}

	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		return nil, err
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	return uconn, nil
}

func (c *Connector) newUConn(conn net.Conn, config *utls.Config) (*utls.UConn, error) {
	profile := c.Profile
	if profile.ClientID.Client == "" || profile.ClientID.Client == utls.HelloGolang.Client {
		return utls.UClient(conn, config, utls.HelloGolang), nil
	}

	spec, err := utls.UTLSIdToSpec(profile.ClientID)
	if err != nil {
		return nil, fmt.Errorf("build %s client hello: %w", profile.Name, err)
	}
	forceHTTP1(&spec)

	uconn := utls.UClient(conn, config, utls.HelloCustom)
	if err := uconn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("apply %s client hello: %w", profile.Name, err)
	}
	return uconn, nil
}

// forceHTTP1 rewrites the ALPN offer of a browser profile; the exchange
// speaks HTTP/1.0 only, so h2 must never be negotiated.
func forceHTTP1(spec *utls.ClientHelloSpec) {
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
}
