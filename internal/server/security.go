package server

import (
	"net/http"
	"strings"
)

// Origins the embedded YouTube player needs: the iframe API script, the
// player frame and the thumbnails.
const (
	youtubeScriptSrc = "https://www.youtube.com https://s.ytimg.com"
	youtubeFrameSrc  = "https://www.youtube.com https://www.youtube-nocookie.com"
	youtubeImgSrc    = "https://i.ytimg.com https://img.youtube.com"
)

// The page is static files only, so no inline script or style is allowed.
const contentSecurityPolicy = "default-src 'self'; " +
	"img-src 'self' data: " + youtubeImgSrc + "; " +
	"script-src 'self' " + youtubeScriptSrc + "; " +
	"style-src 'self'; " +
	"frame-src " + youtubeFrameSrc + "; " +
	"connect-src 'self'; frame-ancestors 'self';"

const permissionsPolicy = `camera=(), microphone=(), geolocation=(), ` +
	`autoplay=(self "https://www.youtube.com"), fullscreen=(self "https://www.youtube.com")`

type SecurityConfig struct {
	BaseURL string
}

func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := strings.HasPrefix(cfg.BaseURL, "https://")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Permissions-Policy", permissionsPolicy)
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			if strictTransport {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
