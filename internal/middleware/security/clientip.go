package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller address, honouring X-Forwarded-For and
// X-Real-IP only when the direct peer is a trusted proxy.
type ClientIP struct {
	trustedProxies []*net.IPNet
}

// NewClientIP trusts loopback and private networks by default.
func NewClientIP() *ClientIP {
	c := &ClientIP{}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		if err := c.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return c
}

func (c *ClientIP) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	c.trustedProxies = append(c.trustedProxies, network)
	return nil
}

// Extract returns the client address for r.
func (c *ClientIP) Extract(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !c.trusted(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (c *ClientIP) trusted(ip net.IP) bool {
	for _, network := range c.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
