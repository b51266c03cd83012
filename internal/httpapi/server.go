package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"seedbox-gateway/internal/catalog"
	"seedbox-gateway/internal/middleware"
	"seedbox-gateway/internal/scanner"
	"seedbox-gateway/internal/sftpx"
	"seedbox-gateway/internal/token"
	"seedbox-gateway/internal/transcode"
)

// Server holds the gateway's wired dependencies. Handlers are methods so
// tests can build one around fakes.
type Server struct {
	Catalogs   *catalog.Service
	Scanner    *scanner.Scanner
	Factory    sftpx.Factory
	Codec      *token.Codec
	Registry   *token.Registry
	Transcoder *transcode.Transcoder

	BaseURL   string
	LinkTTL   time.Duration
	SingleUse bool
	MaxUses   int
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/catalog", cors(s.handleCatalog))
	mux.HandleFunc("/links", cors(s.handleLinks))
	mux.HandleFunc("/d", cors(s.handleDownload))
	mux.HandleFunc("/stream", cors(s.handleStream))
	mux.HandleFunc("/video", cors(s.handleVideoPage))
	mux.HandleFunc("/subtitle", cors(s.handleSubtitle))
	mux.HandleFunc("/info", cors(s.handleInfo))
	mux.HandleFunc("/", s.handleRoot)
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.EnableCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// requireToken extracts and verifies the request token, writing the error
// response itself on failure. Verification never consumes a use.
func (s *Server) requireToken(w http.ResponseWriter, r *http.Request) (tok, remotePath string, ok bool) {
	tok = r.URL.Query().Get("token")
	if tok == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return "", "", false
	}
	p, err := s.Codec.Verify(tok)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusForbidden)
		return "", "", false
	}
	return tok, p, true
}

// consumeUse burns one use of a limited token. Called before any response
// header is written so two racing requests cannot both stream a single-use
// link and a rejection stays a plain 403.
func (s *Server) consumeUse(w http.ResponseWriter, tok string) bool {
	if s.Registry.TryConsume(tok) {
		return true
	}
	http.Error(w, "link already used", http.StatusForbidden)
	return false
}

func (s *Server) baseURL(r *http.Request) string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return "http://" + r.Host
}

// handleCatalog serves the cached snapshot for one kind, scanning on demand
// when it is stale.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	kind := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	if !knownKind(kind) {
		http.Error(w, fmt.Sprintf("unknown kind %q", kind), http.StatusBadRequest)
		return
	}
	c, err := s.Catalogs.Get(r.Context(), kind)
	if err != nil {
		log.Printf("[scan] %s on demand: %v", kind, err)
		http.Error(w, "scan failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"kind":   c.Kind,
		"groups": c.Groups,
		"titles": c.Titles,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	_, remotePath, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	sess, err := s.Factory.Connect()
	if err != nil {
		http.Error(w, "remote unavailable", http.StatusBadGateway)
		return
	}
	defer sess.Close()

	fi, err := sess.Stat(remotePath)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	name := path.Base(remotePath)
	suggested := "transcode"
	if nativeContainer(name) {
		suggested = "direct"
	} else if isVideo(name) {
		suggested = "remux"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"filename": name,
		"size":     fi.Size(),
		"mimeType": mimeForName(name),
		"strategy": suggested,
	})
}
