package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta is the client-supplied metadata captured at the websocket
// handshake and attached to session lifecycle events. Dispatch consoles
// and ambulance units send these headers through the platform gateway.
type RequestMeta struct {
	DeviceID  string
	RequestID string
	IP        string
}

// MetaFromRequest extracts the handshake metadata from the upgrade
// request.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		IP:        clientIP(r),
	}
}

// clientIP prefers the first X-Forwarded-For hop; the gateway terminates
// TLS, so RemoteAddr alone would name the gateway, not the client.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
