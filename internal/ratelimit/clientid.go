package ratelimit

import (
	"fmt"
	"net"
	"net/http"
)

// ClientKey derives an anonymous rate-limit identity from the forwarded
// client address plus a weak user-agent fingerprint. Only the user-agent's
// length is used, never its content: enough to split clients sharing a NAT
// without storing anything identifying.
func ClientKey(r *http.Request) string {
	return fmt.Sprintf("%s:ua%d", clientIP(r), len(r.UserAgent()))
}

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For first (trusted reverse proxy)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
