package observability

import (
	"net"
	"net/http"
	"strings"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderDeviceID  = "X-Device-ID"
)

// DeviceIDFromRequest reads the device header, falling back to the device
// query parameter that WebSocket clients send instead.
func DeviceIDFromRequest(r *http.Request) string {
	if id := r.Header.Get(HeaderDeviceID); id != "" {
		return id
	}
	return r.URL.Query().Get("device")
}

// RequestIDFromRequest prefers the inbound header and then the id the
// request-id middleware stored on the context.
func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	return RequestIDFromContext(r.Context())
}

func IPFromRequest(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
