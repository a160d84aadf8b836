// Package docs serves the OpenAPI description of the HTTP API and a
// browsable reference page for it.
package docs

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var specYAML []byte

const (
	specPath = "/api/docs/openapi.yaml"

	// The reference renderer is loaded from jsDelivr, pinned to a major version.
	rendererURL = "https://cdn.jsdelivr.net/npm/@scalar/api-reference@1"

	pageCSP = "default-src 'self'; " +
		"script-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; " +
		"style-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; " +
		"font-src 'self' https://cdn.jsdelivr.net data:; " +
		"img-src 'self' data:; connect-src 'self'; frame-ancestors 'self';"
)

const page = `<!DOCTYPE html>
<html><head>
  <title>Tubita API Reference</title>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
</head><body>
  <script id="api-reference" data-url="` + specPath + `"></script>
  <script src="` + rendererURL + `"></script>
</body></html>`

func HandleSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(specYAML)
}

// HandleDocs replaces the app-wide CSP, which would block the renderer.
func HandleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Security-Policy", pageCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}
