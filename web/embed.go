// Package web embeds the chat frontend (dist/) and serves it as a
// single-page application.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

type spa struct {
	files      fs.FS
	fileServer http.Handler
}

// SPAHandler returns an http.Handler that serves the embedded frontend.
// Extensionless paths that do not name a file get the app shell so the client
// can route them; missing assets are 404s.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return &spa{files: subFS, fileServer: http.FileServer(http.FS(subFS))}
}

func (s *spa) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || name == indexFile {
		s.serveShell(w, r)
		return
	}
	if info, err := fs.Stat(s.files, name); err == nil && !info.IsDir() {
		s.fileServer.ServeHTTP(w, r)
		return
	}
	if path.Ext(name) != "" {
		http.NotFound(w, r)
		return
	}
	s.serveShell(w, r)
}

// serveShell writes index.html. The shell is never cached so a redeploy is
// picked up on the next load.
func (s *spa) serveShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, s.files, indexFile)
}
