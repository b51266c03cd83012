package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync/atomic"

	"seedbox-gateway/internal/sftpx"
	"seedbox-gateway/internal/transcode"
)

const relayChunk = 128 << 10

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	_, remotePath, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	sess, err := s.Factory.Connect()
	if err != nil {
		log.Printf("[d] connect failed: %v", err)
		http.Error(w, "remote unavailable", http.StatusBadGateway)
		return
	}
	defer sess.Close()

	fi, err := sess.Stat(remotePath)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	f, err := sess.Open(remotePath)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	name := path.Base(remotePath)
	w.Header().Set("Content-Type", mimeForName(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	if r.Method == http.MethodHead {
		return
	}

	written := relay(w, r, f, fi.Size())
	log.Printf("[d] %s sent=%d/%d", name, written, fi.Size())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	tok, remotePath, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	name := path.Base(remotePath)
	if !isVideo(name) {
		http.Error(w, "unsupported media format", http.StatusBadRequest)
		return
	}
	strat, err := pickStrategy(r.URL.Query().Get("quality"), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.Factory.Connect()
	if err != nil {
		log.Printf("[stream] connect failed: %v", err)
		http.Error(w, "remote unavailable", http.StatusBadGateway)
		return
	}
	defer sess.Close()

	fi, err := sess.Stat(remotePath)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	// Remux only helps when the source codec already plays in browsers;
	// probe the head of the file and fall through to a transcode otherwise.
	if strat.Mode == ModeRemux {
		probe, perr := s.probeHead(r, sess, remotePath)
		if errors.Is(perr, transcode.ErrEncoderUnavailable) {
			http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
			return
		}
		if perr != nil || !transcode.Compatible(probe) {
			if perr != nil {
				log.Printf("[stream] probe %s: %v", name, perr)
			}
			strat = Strategy{Mode: ModeTranscode}
		}
	}

	switch strat.Mode {
	case ModeDirect:
		s.streamDirect(w, r, sess, tok, remotePath, fi.Size())
	default:
		s.streamEncoded(w, r, sess, tok, remotePath, strat)
	}
}

func (s *Server) probeHead(r *http.Request, sess sftpx.Session, remotePath string) (*transcode.ProbeResult, error) {
	f, err := sess.Open(remotePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Transcoder.Probe(r.Context(), f)
}

func (s *Server) streamDirect(w http.ResponseWriter, r *http.Request, sess sftpx.Session, tok, remotePath string, size int64) {
	f, err := sess.Open(remotePath)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	name := path.Base(remotePath)
	hadRange := false
	start, end := int64(0), size-1
	if rh := r.Header.Get("Range"); rh != "" {
		st, en, ok := parseByteRange(rh, size)
		if !ok {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			http.Error(w, "invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start, end, hadRange = st, en, true
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			http.Error(w, "seek error: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	length := end - start + 1

	// HEAD never consumes a use; for GET the use is burned before any
	// response header goes out, so a rejection is a clean 403.
	if r.Method != http.MethodHead && !s.consumeUse(w, tok) {
		return
	}

	w.Header().Set("Content-Type", mimeForName(name))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Cache-Control", "no-store")
	if hadRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))

	if hadRange {
		w.WriteHeader(http.StatusPartialContent)
	}
	if r.Method == http.MethodHead {
		return
	}

	written := relay(w, r, f, length)
	log.Printf("[stream] direct %s range=%d-%d sent=%d", name, start, end, written)
}

func (s *Server) streamEncoded(w http.ResponseWriter, r *http.Request, sess sftpx.Session, tok, remotePath string, strat Strategy) {
	if !s.Transcoder.Available() {
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.Transcoder.Acquire() {
		http.Error(w, "too many active transcodes", http.StatusServiceUnavailable)
		return
	}
	defer s.Transcoder.Release()

	f, err := sess.Open(remotePath)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	name := path.Base(remotePath)
	if r.Method != http.MethodHead && !s.consumeUse(w, tok) {
		return
	}

	base := strings.TrimSuffix(name, path.Ext(name))
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", base+".mp4"))
	w.Header().Set("Accept-Ranges", "none")
	w.Header().Set("Cache-Control", "no-store")

	// HEAD stops at the headers; no encoder is spawned and no use consumed.
	if r.Method == http.MethodHead {
		return
	}

	rc := http.NewResponseController(w)
	spec := transcode.Spec{CopyVideo: strat.Mode == ModeRemux, Height: strat.Height}
	written, err := s.Transcoder.Run(r.Context(), f, w, rc.Flush, spec)
	if err != nil && r.Context().Err() == nil {
		// Headers are long gone, so a mid-stream failure can only truncate.
		log.Printf("[stream] encode %s ended after %d bytes: %v", name, written, err)
		return
	}
	log.Printf("[stream] encode %s done sent=%d height=%d copy=%v", name, written, strat.Height, strat.Mode == ModeRemux)
}

// relay copies up to length bytes from src to the client through a bounded
// chunk queue. The blocking remote reads happen on a background goroutine; a
// shared stop flag ends it within one chunk once the client goes away.
func relay(w http.ResponseWriter, r *http.Request, src io.Reader, length int64) int64 {
	type chunk struct {
		data []byte
		err  error
	}
	var stop atomic.Bool
	chunks := make(chan chunk, 8)
	go func() {
		defer close(chunks)
		remaining := length
		for !stop.Load() && remaining > 0 {
			n := int64(relayChunk)
			if remaining < n {
				n = remaining
			}
			buf := make([]byte, n)
			rn, err := src.Read(buf)
			if rn > 0 {
				remaining -= int64(rn)
				chunks <- chunk{data: buf[:rn]}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					chunks <- chunk{err: err}
				}
				return
			}
		}
	}()

	rc := http.NewResponseController(w)
	var written int64
	for c := range chunks {
		if c.err != nil {
			log.Printf("[stream] remote read error after %d bytes: %v", written, c.err)
			break
		}
		if _, err := w.Write(c.data); err != nil {
			stop.Store(true)
			break
		}
		_ = rc.Flush()
		written += int64(len(c.data))
		select {
		case <-r.Context().Done():
			stop.Store(true)
		default:
		}
	}
	// reader may be blocked on a full queue
	go func() {
		for range chunks {
		}
	}()
	return written
}

func parseByteRange(h string, size int64) (start, end int64, ok bool) {
	h = strings.TrimSpace(strings.ToLower(h))
	if !strings.HasPrefix(h, "bytes=") {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(h, "bytes=")
	parts := strings.Split(spec, ",")
	if len(parts) != 1 {
		return 0, 0, false
	}
	se := strings.SplitN(strings.TrimSpace(parts[0]), "-", 2)
	if se[0] == "" {
		if len(se) != 2 {
			return 0, 0, false
		}
		n, err := strconv.ParseInt(se[1], 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}
	s, err := strconv.ParseInt(se[0], 10, 64)
	if err != nil || s < 0 || s >= size {
		return 0, 0, false
	}
	var e int64
	if len(se) == 1 || se[1] == "" {
		e = size - 1
	} else {
		e, err = strconv.ParseInt(se[1], 10, 64)
		if err != nil || e < s {
			return 0, 0, false
		}
		if e >= size {
			e = size - 1
		}
	}
	return s, e, true
}
