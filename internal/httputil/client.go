package httputil

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// ClientIP returns the first X-Forwarded-For hop or the remote host.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DeviceLabel turns the request's User-Agent into a short label such as
// "Chrome on Android".
func DeviceLabel(r *http.Request) string {
	raw := r.UserAgent()
	if raw == "" {
		return "unknown device"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	system := ua.OSInfo().Name
	if platform := ua.Platform(); platform == "iPad" || platform == "iPhone" {
		system = platform
	}
	switch {
	case browser != "" && system != "":
		return browser + " on " + system
	case browser != "":
		return browser
	case system != "":
		return system
	}
	return "unknown device"
}
