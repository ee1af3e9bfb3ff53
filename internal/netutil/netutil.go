// Package netutil finds the address other devices on the LAN can use to
// reach the server, for the startup banner and /system/info.
package netutil

import (
	"net"
	"net/netip"
)

// Overlay VPNs (Tailscale and friends) hand out CGNAT addresses that are
// not reachable from the local network.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// LANIP returns the best IPv4 address of an up, non-loopback interface, or
// "" if there is none.
func LANIP() string {
	if ip, ok := pick(interfaceAddrs()); ok {
		return ip.String()
	}
	return ""
}

// pick prefers private (RFC 1918) addresses, then any other global unicast
// IPv4 address, in interface order. CGNAT and link-local are skipped.
func pick(addrs []netip.Addr) (netip.Addr, bool) {
	var fallback netip.Addr
	for _, a := range addrs {
		a = a.Unmap()
		if !a.Is4() || a.IsLoopback() || a.IsLinkLocalUnicast() || cgnat.Contains(a) {
			continue
		}
		if a.IsPrivate() {
			return a, true
		}
		if !fallback.IsValid() && a.IsGlobalUnicast() {
			fallback = a
		}
	}
	return fallback, fallback.IsValid()
}

func interfaceAddrs() []netip.Addr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []netip.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if p, err := netip.ParsePrefix(addr.String()); err == nil {
				out = append(out, p.Addr())
			} else if a, err := netip.ParseAddr(addr.String()); err == nil {
				out = append(out, a)
			}
		}
	}
	return out
}
