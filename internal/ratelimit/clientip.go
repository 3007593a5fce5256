package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// GetClientIP returns the address a request came from. Forwarding headers are
// only read when trustProxy is set: the rightmost public hop of
// X-Forwarded-For wins, then X-Real-IP, then the connection address.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip, ok := forwardedClient(r.Header.Get("X-Forwarded-For")); ok {
			return ip
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return remoteHost(r.RemoteAddr)
}

// forwardedClient walks the hop list from the proxy end. When every hop is
// internal the last one is used.
func forwardedClient(header string) (string, bool) {
	if strings.TrimSpace(header) == "" {
		return "", false
	}
	hops := strings.Split(header, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			continue
		}
		if !isInternal(addr) {
			return addr.Unmap().String(), true
		}
	}
	return strings.TrimSpace(hops[len(hops)-1]), true
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// Unix sockets and some test transports report a bare address.
		return remoteAddr
	}
	return host
}

func isInternal(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}
