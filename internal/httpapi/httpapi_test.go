package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedbox-gateway/internal/catalog"
	"seedbox-gateway/internal/scanner"
	"seedbox-gateway/internal/sftpx"
	"seedbox-gateway/internal/token"
	"seedbox-gateway/internal/transcode"
)

type fakeInfo struct {
	name string
	size int64
	dir  bool
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() os.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

type fakeSession struct {
	files map[string]string
}

func (s *fakeSession) ReadDir(dir string) ([]os.FileInfo, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := map[string]fakeInfo{}
	for p, data := range s.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seen[rest[:i]] = fakeInfo{name: rest[:i], dir: true}
		} else {
			seen[rest] = fakeInfo{name: rest, size: int64(len(data))}
		}
	}
	if len(seen) == 0 {
		return nil, os.ErrNotExist
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]os.FileInfo, 0, len(names))
	for _, n := range names {
		out = append(out, seen[n])
	}
	return out, nil
}

func (s *fakeSession) Stat(p string) (os.FileInfo, error) {
	if data, ok := s.files[p]; ok {
		return fakeInfo{name: p, size: int64(len(data))}, nil
	}
	return nil, os.ErrNotExist
}

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

func (s *fakeSession) Open(p string) (io.ReadSeekCloser, error) {
	data, ok := s.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return nopSeekCloser{bytes.NewReader([]byte(data))}, nil
}

func (s *fakeSession) Close() error { return nil }

type fakeFactory struct {
	sess *fakeSession
	err  error
}

func (f *fakeFactory) Connect() (sftpx.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

func body1000() string {
	b := make([]byte, 1000)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return string(b)
}

func newTestServer(files map[string]string) *Server {
	factory := &fakeFactory{sess: &fakeSession{files: files}}
	sc := scanner.New(factory, map[string]scanner.Root{
		scanner.KindMovies: {Path: "/movies", Exts: []string{".mkv", ".mp4"}},
	})
	return &Server{
		Catalogs:   catalog.NewService(sc, time.Minute),
		Scanner:    sc,
		Factory:    factory,
		Codec:      token.NewCodec("test-secret"),
		Registry:   token.NewRegistry(),
		Transcoder: transcode.New("no-such-ffmpeg-bin", "no-such-ffprobe-bin", 16<<20, 1),
		LinkTTL:    time.Minute,
		MaxUses:    1,
	}
}

func mustReq(t *testing.T, s *Server, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	s.Register(mux)
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func mustGet(t *testing.T, s *Server, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return mustReq(t, s, http.MethodGet, target, hdr)
}

func TestStreamDirectFull(t *testing.T) {
	body := body1000()
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": body})
	tok := s.Codec.Sign("/movies/Heat/heat.mp4", time.Minute)

	rec := mustGet(t, s, "/stream?token="+tok+"&quality=direct", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, body, rec.Body.String())
}

func TestStreamDirectRange(t *testing.T) {
	body := body1000()
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": body})
	tok := s.Codec.Sign("/movies/Heat/heat.mp4", time.Minute)

	rec := mustGet(t, s, "/stream?token="+tok+"&quality=direct", map[string]string{"Range": "bytes=100-199"})

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 100-199/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, body[100:200], rec.Body.String())
}

func TestStreamRangeUnsatisfiable(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": body1000()})
	tok := s.Codec.Sign("/movies/Heat/heat.mp4", time.Minute)

	rec := mustGet(t, s, "/stream?token="+tok+"&quality=direct", map[string]string{"Range": "bytes=2000-3000"})

	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
}

func TestStreamMissingToken(t *testing.T) {
	s := newTestServer(nil)
	rec := mustGet(t, s, "/stream", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamBadToken(t *testing.T) {
	s := newTestServer(nil)
	rec := mustGet(t, s, "/stream?token=abc.def.ghi", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStreamExpiredToken(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": "x"})
	tok := s.Codec.Sign("/movies/Heat/heat.mp4", -time.Minute)
	rec := mustGet(t, s, "/stream?token="+tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStreamUnsupportedFormat(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/notes.txt": "hi"})
	tok := s.Codec.Sign("/movies/notes.txt", time.Minute)
	rec := mustGet(t, s, "/stream?token="+tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamUnknownQuality(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": "x"})
	tok := s.Codec.Sign("/movies/Heat/heat.mp4", time.Minute)
	rec := mustGet(t, s, "/stream?token="+tok+"&quality=4k", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamRemuxWithoutEncoder(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mkv": body1000()})
	tok := s.Codec.Sign("/movies/Heat/heat.mkv", time.Minute)
	rec := mustGet(t, s, "/stream?token="+tok+"&quality=remux", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamSingleUse(t *testing.T) {
	body := body1000()
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": body})
	s.SingleUse = true
	expiry := time.Now().Add(time.Minute)
	tok := s.Codec.SignAt("/movies/Heat/heat.mp4", expiry)
	s.Registry.RegisterLimited(tok, expiry, 1)

	first := mustGet(t, s, "/stream?token="+tok+"&quality=direct", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, body, first.Body.String())

	second := mustGet(t, s, "/stream?token="+tok+"&quality=direct", nil)
	assert.Equal(t, http.StatusForbidden, second.Code)
}

func TestStreamHeadDirectDoesNotConsume(t *testing.T) {
	body := body1000()
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": body})
	s.SingleUse = true
	expiry := time.Now().Add(time.Minute)
	tok := s.Codec.SignAt("/movies/Heat/heat.mp4", expiry)
	s.Registry.RegisterLimited(tok, expiry, 1)

	head := mustReq(t, s, http.MethodHead, "/stream?token="+tok+"&quality=direct", nil)
	require.Equal(t, http.StatusOK, head.Code)
	assert.Equal(t, "1000", head.Header().Get("Content-Length"))
	assert.Empty(t, head.Body.String())

	// the single use is still available for the real request
	get := mustGet(t, s, "/stream?token="+tok+"&quality=direct", nil)
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, body, get.Body.String())
}

func TestStreamHeadTranscodeDoesNotConsume(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mkv": body1000()})
	// a real resolvable binary, so the encoder checks pass without running it
	s.Transcoder = transcode.New("true", "true", 16<<20, 1)
	s.SingleUse = true
	expiry := time.Now().Add(time.Minute)
	tok := s.Codec.SignAt("/movies/Heat/heat.mkv", expiry)
	s.Registry.RegisterLimited(tok, expiry, 1)

	rec := mustReq(t, s, http.MethodHead, "/stream?token="+tok+"&quality=720p", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "none", rec.Header().Get("Accept-Ranges"))
	assert.Empty(t, rec.Body.String())

	assert.True(t, s.Registry.TryConsume(tok))
}

func TestStreamSpentTokenRejectsWithCleanHeaders(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": body1000()})
	s.SingleUse = true
	expiry := time.Now().Add(time.Minute)
	tok := s.Codec.SignAt("/movies/Heat/heat.mp4", expiry)
	s.Registry.RegisterLimited(tok, expiry, 1)

	first := mustGet(t, s, "/stream?token="+tok+"&quality=direct", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := mustGet(t, s, "/stream?token="+tok+"&quality=direct", map[string]string{"Range": "bytes=100-199"})
	require.Equal(t, http.StatusForbidden, second.Code)
	assert.Empty(t, second.Header().Get("Content-Range"))
	assert.Empty(t, second.Header().Get("Accept-Ranges"))
	assert.Empty(t, second.Header().Get("Content-Disposition"))
}

func TestDownload(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mkv": "0123456789"})
	tok := s.Codec.Sign("/movies/Heat/heat.mkv", time.Minute)

	rec := mustGet(t, s, "/d?token="+tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "0123456789", rec.Body.String())
}

func TestDownloadMissingFile(t *testing.T) {
	s := newTestServer(map[string]string{})
	tok := s.Codec.Sign("/movies/gone.mkv", time.Minute)
	rec := mustGet(t, s, "/d?token="+tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadRemoteUnavailable(t *testing.T) {
	s := newTestServer(nil)
	s.Factory = &fakeFactory{err: errors.New("dial tcp: refused")}
	tok := s.Codec.Sign("/movies/x.mkv", time.Minute)
	rec := mustGet(t, s, "/d?token="+tok, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInfo(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mkv": "0123456789"})
	tok := s.Codec.Sign("/movies/Heat/heat.mkv", time.Minute)

	rec := mustGet(t, s, "/info?token="+tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		MimeType string `json:"mimeType"`
		Strategy string `json:"strategy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "heat.mkv", got.Filename)
	assert.Equal(t, int64(10), got.Size)
	assert.Equal(t, "video/x-matroska", got.MimeType)
	assert.Equal(t, "remux", got.Strategy)
}

func TestSubtitleConvertsSRT(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:02,000\nhi\n"
	s := newTestServer(map[string]string{
		"/movies/Heat/heat.mkv":    "x",
		"/movies/Heat/heat.en.srt": srt,
	})
	tok := s.Codec.Sign("/movies/Heat/heat.mkv", time.Minute)

	rec := mustGet(t, s, "/subtitle?token="+tok+"&lang=en", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vtt; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "WEBVTT"))
	assert.Contains(t, rec.Body.String(), "00:00:01.000 --> 00:00:02.000")
}

func TestSubtitleNoneFound(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mkv": "x"})
	tok := s.Codec.Sign("/movies/Heat/heat.mkv", time.Minute)
	rec := mustGet(t, s, "/subtitle?token="+tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVideoPageEmbedsStream(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": "x"})
	tok := s.Codec.Sign("/movies/Heat/heat.mp4", time.Minute)

	rec := mustGet(t, s, "/video?token="+tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/stream?token=")
	assert.Contains(t, rec.Body.String(), "<video")
}

func TestLinksMintsTokens(t *testing.T) {
	s := newTestServer(map[string]string{"/movies/Heat/heat.mp4": "abcdef"})

	rec := mustGet(t, s, "/links?kind=movies&name=heat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/d?token=")
	assert.Contains(t, rec.Body.String(), "/video?token=")
	assert.Contains(t, rec.Body.String(), "heat.mp4")
}

func TestLinksUnknownKind(t *testing.T) {
	s := newTestServer(nil)
	rec := mustGet(t, s, "/links?kind=games&name=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinksMissingName(t *testing.T) {
	s := newTestServer(nil)
	rec := mustGet(t, s, "/links?kind=movies", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalog(t *testing.T) {
	s := newTestServer(map[string]string{
		"/movies/Inception (2010)/inception.mkv": "a",
		"/movies/Heat.mkv":                       "b",
	})

	rec := mustGet(t, s, "/catalog?kind=movies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Kind   string   `json:"kind"`
		Titles []string `json:"titles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "movies", got.Kind)
	assert.Equal(t, []string{"Heat", "Inception"}, got.Titles)
}

func TestCatalogUnknownKind(t *testing.T) {
	s := newTestServer(nil)
	rec := mustGet(t, s, "/catalog?kind=games", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRootOK(t *testing.T) {
	s := newTestServer(nil)
	rec := mustGet(t, s, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestPickStrategy(t *testing.T) {
	cases := []struct {
		quality, file string
		want          Strategy
	}{
		{"", "a.mp4", Strategy{Mode: ModeDirect}},
		{"auto", "a.mkv", Strategy{Mode: ModeRemux}},
		{"direct", "a.mkv", Strategy{Mode: ModeDirect}},
		{"remux", "a.mp4", Strategy{Mode: ModeRemux}},
		{"1080p", "a.mkv", Strategy{Mode: ModeTranscode, Height: 1080}},
		{"720p", "a.mkv", Strategy{Mode: ModeTranscode, Height: 720}},
		{"480p", "a.mkv", Strategy{Mode: ModeTranscode, Height: 480}},
	}
	for _, c := range cases {
		got, err := pickStrategy(c.quality, c.file)
		require.NoError(t, err, "quality %q", c.quality)
		assert.Equal(t, c.want, got, "quality %q file %q", c.quality, c.file)
	}
	_, err := pickStrategy("4k", "a.mkv")
	assert.Error(t, err)
}

func TestParseByteRange(t *testing.T) {
	cases := []struct {
		in         string
		start, end int64
		ok         bool
	}{
		{"bytes=0-499", 0, 499, true},
		{"bytes=100-199", 100, 199, true},
		{"bytes=500-", 500, 999, true},
		{"bytes=-200", 800, 999, true},
		{"bytes=0-5000", 0, 999, true},
		{"bytes=2000-3000", 0, 0, false},
		{"bytes=5-2", 0, 0, false},
		{"items=0-5", 0, 0, false},
		{"bytes=0-10,20-30", 0, 0, false},
	}
	for _, c := range cases {
		start, end, ok := parseByteRange(c.in, 1000)
		assert.Equal(t, c.ok, ok, "header %q", c.in)
		if c.ok {
			assert.Equal(t, c.start, start, "header %q", c.in)
			assert.Equal(t, c.end, end, "header %q", c.in)
		}
	}
}
