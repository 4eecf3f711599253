package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client address for rate limit keying. The first
// entry of X-Forwarded-For wins, then X-Real-IP, then the connection
// remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BuildKey composes the rate limit key. Authenticated callers are limited
// per subject so one client behind a shared NAT cannot exhaust another's
// budget; anonymous callers are limited per address.
func BuildKey(class, clientIP, subject string) string {
	if subject != "" {
		return class + ":" + clientIP + ":" + subject
	}
	return class + ":" + clientIP
}
