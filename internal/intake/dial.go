package intake

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598), which
// netip does not count as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// newHTTPClient builds the client for http(s) sources. Unless AllowPrivate
// is set, every connection, redirects included, is checked against the
// resolved address so a public name cannot point the fetch inward.
func newHTTPClient(cfg Config) *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivate {
		dialer.Control = checkDialAddr
		// A proxy would be the only address checked.
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: cfg.FetchTimeout, Transport: transport}
}

func checkDialAddr(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	if internalAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, ip)
	}
	return nil
}

func internalAddr(ip netip.Addr) bool {
	ip = ip.Unmap().WithZone("")
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		sharedAddressSpace.Contains(ip)
}
