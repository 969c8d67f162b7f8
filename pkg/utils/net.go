// Package utils provides common utility functions for HTTP operations,
// including client IP extraction behind proxies.
package utils

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP extracts the client IP address recorded on a session.
// It checks headers in the following priority order:
// 1. X-Forwarded-For (first address of the chain)
// 2. X-Real-IP
// 3. RemoteAddr (port stripped, IPv6 brackets removed)
func ExtractClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		// "client, proxy1, proxy2"
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return strings.Trim(r.RemoteAddr, "[]")
}
