package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller address without its port. Forwarding headers are
// not read here; the router's RealIP middleware has already folded them into
// RemoteAddr, so a client cannot pick its own rate-limit or idempotency key.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// CallerKey identifies the caller for per-caller limits: "u:<id>" when
// authenticated, "ip:<addr>" otherwise.
func CallerKey(r *http.Request) string {
	if id, ok := UserID(r.Context()); ok && id != "" {
		return "u:" + id
	}
	return "ip:" + ClientIP(r)
}
