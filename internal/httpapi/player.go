package httpapi

import (
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"

	"seedbox-gateway/internal/subtitles"
)

// handleVideoPage renders a minimal HTML5 player around /stream, with one
// track element per discovered sidecar and the quality rungs as plain links.
func (s *Server) handleVideoPage(w http.ResponseWriter, r *http.Request) {
	tok, remotePath, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	name := path.Base(remotePath)
	if !isVideo(name) {
		http.Error(w, "unsupported media format", http.StatusBadRequest)
		return
	}
	quality := strings.ToLower(r.URL.Query().Get("quality"))
	if _, err := pickStrategy(quality, name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var sidecars []subtitles.Sidecar
	if sess, err := s.Factory.Connect(); err == nil {
		sidecars = subtitles.FindSidecars(sess, remotePath)
		sess.Close()
	} else {
		log.Printf("[subtitle] connect for sidecar scan: %v", err)
	}

	escTok := url.QueryEscape(tok)
	streamURL := "/stream?token=" + escTok
	if quality != "" {
		streamURL += "&quality=" + url.QueryEscape(quality)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var b strings.Builder
	fmt.Fprintf(&b, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title>", html.EscapeString(name))
	b.WriteString("<style>body{margin:0;background:#000;color:#ccc;font-family:sans-serif}video{width:100vw;height:90vh}nav{padding:4px 8px}nav a{color:#6af;margin-right:8px}</style></head><body>")
	fmt.Fprintf(&b, "<video controls autoplay src=%q>", streamURL)
	for i, sc := range sidecars {
		def := ""
		if i == 0 {
			def = " default"
		}
		fmt.Fprintf(&b, "<track kind=\"subtitles\" srclang=%q label=%q src=\"/subtitle?token=%s&lang=%s\"%s>",
			sc.Lang, sc.Lang, escTok, url.QueryEscape(sc.Lang), def)
	}
	b.WriteString("</video><nav>")
	for _, q := range []string{"auto", "direct", "remux", "1080p", "720p", "480p"} {
		fmt.Fprintf(&b, "<a href=\"/video?token=%s&quality=%s\">%s</a>", escTok, q, q)
	}
	b.WriteString("</nav></body></html>")
	_, _ = w.Write([]byte(b.String()))
}

const maxSubtitleBytes = 5 << 20

// handleSubtitle serves a sidecar for the tokenized video, converted to VTT
// when the source is SRT. The lang parameter picks among sidecars; the first
// one wins when absent or unmatched.
func (s *Server) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	_, remotePath, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	sess, err := s.Factory.Connect()
	if err != nil {
		log.Printf("[subtitle] connect failed: %v", err)
		http.Error(w, "remote unavailable", http.StatusBadGateway)
		return
	}
	defer sess.Close()

	sidecars := subtitles.FindSidecars(sess, remotePath)
	if len(sidecars) == 0 {
		http.Error(w, "no subtitles", http.StatusNotFound)
		return
	}
	pick := sidecars[0]
	if lang := strings.ToLower(r.URL.Query().Get("lang")); lang != "" {
		for _, sc := range sidecars {
			if sc.Lang == lang {
				pick = sc
				break
			}
		}
	}

	f, err := sess.Open(pick.Path)
	if err != nil {
		http.Error(w, "no subtitles", http.StatusNotFound)
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxSubtitleBytes))
	if err != nil {
		log.Printf("[subtitle] read %s: %v", pick.Path, err)
		http.Error(w, "subtitle read failed", http.StatusBadGateway)
		return
	}

	body := string(raw)
	contentType := "text/vtt; charset=utf-8"
	switch pick.Ext {
	case ".srt":
		body = subtitles.SRTtoVTT(body)
	case ".vtt":
		// already WebVTT
	default:
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(body))
}
