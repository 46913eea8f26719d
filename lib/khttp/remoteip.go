package khttp

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// RemoteIP returns the remote client IP address from a request.
//
// It gives precedence to the X-Forwarded-For header to work correctly
// behind proxies.
func RemoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// X-Forwarded-For can be a comma-separated list of IPs.
		// The first one is the original client.
		if parts := strings.Split(fwd, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ClientOrigin returns a string identifying the origin of a request,
// including any proxy headers. Meant for log lines, not for decisions.
func ClientOrigin(r *http.Request) string {
	ip := RemoteIP(r)
	if ip == r.RemoteAddr || r.Header.Get("X-Forwarded-For") == "" && r.Header.Get("X-Real-IP") == "" {
		return ip
	}
	return fmt.Sprintf("%s (direct: %s)", ip, r.RemoteAddr)
}
