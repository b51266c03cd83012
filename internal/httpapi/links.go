package httpapi

import (
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"seedbox-gateway/pkg/types"
)

// handleLinks resolves a catalog selection and mints signed links for every
// matching file: a /d download link always, and a /video player link for
// files a browser can play.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	kind := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if !knownKind(kind) {
		http.Error(w, fmt.Sprintf("unknown kind %q", kind), http.StatusBadRequest)
		return
	}

	files, err := s.Scanner.Resolve(r.Context(), kind, name)
	if err != nil {
		log.Printf("[links] resolve %s %q: %v", kind, name, err)
		http.Error(w, "resolve failed", http.StatusBadGateway)
		return
	}

	expiry := time.Now().Add(s.LinkTTL)
	base := s.baseURL(r)

	var downloads, videos []types.LinkItem
	for _, f := range files {
		fname := path.Base(f.Path)
		dtok := s.Codec.SignAt(f.Path, expiry)
		downloads = append(downloads, types.LinkItem{
			Filename: fname,
			URL:      base + "/d?token=" + url.QueryEscape(dtok),
			Size:     f.Size,
		})
		if isVideo(fname) {
			vtok := s.Codec.SignAt(f.Path, expiry)
			if s.SingleUse {
				s.Registry.RegisterLimited(vtok, expiry, s.MaxUses)
			}
			videos = append(videos, types.LinkItem{
				Filename: fname,
				URL:      base + "/video?token=" + url.QueryEscape(vtok),
				Size:     f.Size,
			})
		}
	}
	log.Printf("[links] kind=%s name=%q files=%d videos=%d ttl=%s", kind, name, len(downloads), len(videos), s.LinkTTL)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var b strings.Builder
	fmt.Fprintf(&b, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body>", html.EscapeString(name))
	fmt.Fprintf(&b, "<h1>%s</h1><p>links expire in %s</p>", html.EscapeString(name), s.LinkTTL)
	if len(downloads) == 0 {
		b.WriteString("<p>nothing found</p>")
	}
	if len(videos) > 0 {
		b.WriteString("<h2>Watch</h2><ul>")
		for _, v := range videos {
			fmt.Fprintf(&b, "<li><a href=%q>%s</a> (%s)</li>", v.URL, html.EscapeString(v.Filename), humanize.IBytes(uint64(v.Size)))
		}
		b.WriteString("</ul>")
	}
	if len(downloads) > 0 {
		b.WriteString("<h2>Download</h2><ul>")
		for _, d := range downloads {
			fmt.Fprintf(&b, "<li><a href=%q>%s</a> (%s)</li>", d.URL, html.EscapeString(d.Filename), humanize.IBytes(uint64(d.Size)))
		}
		b.WriteString("</ul>")
	}
	b.WriteString("</body></html>")
	_, _ = w.Write([]byte(b.String()))
}

func knownKind(kind string) bool {
	switch kind {
	case "books", "movies", "tv", "music":
		return true
	}
	return false
}
