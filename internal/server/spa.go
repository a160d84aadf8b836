package server

import (
	"io/fs"
	"net/http"
	"strings"
)

// spaHandler serves the built web UI. Paths that do not name a file fall
// back to index.html so client-side routes such as /admin work on reload.
type spaHandler struct {
	files http.Handler
	fsys  fs.FS
}

func newSPAFileServer(fsys fs.FS) *spaHandler {
	return &spaHandler{files: http.FileServer(http.FS(fsys)), fsys: fsys}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.html"
	}

	if info, err := fs.Stat(h.fsys, name); err != nil || info.IsDir() {
		r.URL.Path = "/"
		name = "index.html"
	}

	if name == "index.html" {
		w.Header().Set("Cache-Control", "no-cache")
	}
	h.files.ServeHTTP(w, r)
}
