// Package clientip derives a stable client identifier from an inbound request
// for rate-limit keys and logs.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Fallback is returned when a request carries no usable address, so every
// such request is counted as one client.
const Fallback = "127.0.0.1"

// Resolve returns, in order of precedence, the first X-Forwarded-For entry,
// X-Real-IP, the transport peer address, or Fallback. It never fails.
func Resolve(r *http.Request) string {
	if r == nil {
		return Fallback
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if peer := remoteHost(r.RemoteAddr); peer != "" {
		return peer
	}

	return Fallback
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
