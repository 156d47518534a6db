package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	hr "github.com/julienschmidt/httprouter"
)

// handleIndex serves the main application page; requirePage guards it.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	s.serveClientFile(w, r, "index.html")
}

// handleLoginPage serves the login page, or the app when already logged in.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	if _, err := s.resolveSession(r); err == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.serveClientFile(w, r, "login.html")
}

// handleStatic serves client assets for any path no route matched.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeStatus(w, http.StatusNotFound, statusError, "Not found")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	// Prevent directory traversal attacks
	if strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	s.serveClientFile(w, r, path)
}

func (s *Server) serveClientFile(w http.ResponseWriter, r *http.Request, rel string) {
	if s.cfg.ClientDir == "" {
		writeStatus(w, http.StatusNotFound, statusError, "Not found")
		return
	}
	full := filepath.Join(s.cfg.ClientDir, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		writeStatus(w, http.StatusNotFound, statusError, "Not found")
		return
	}
	http.ServeFile(w, r, full)
}
