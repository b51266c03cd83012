package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	listenAddr    = ":8080"
	publicBaseURL = ""

	sftpHost     = ""
	sftpPort     = 22
	sftpUsername = ""
	sftpPassword = ""
	sshKeyPath   = ""
	sshKeyText   = ""

	booksRoot  = "/media/books"
	bookExts   = []string{".epub", ".mobi", ".pdf", ".azw3"}
	moviesRoot = ""
	movieExts  = []string{".mkv", ".mp4", ".avi", ".m4v"}
	tvRoot     = ""
	tvExts     = []string{".mkv", ".mp4", ".avi"}
	musicRoot  = ""
	musicExts  = []string{".mp3", ".flac", ".m4a", ".ogg"}

	cacheTTL = 15 * time.Minute

	linkTTL       = 15 * time.Minute
	linkSecret    = ""
	linkSingleUse = false
	linkMaxUses   = 1

	ffmpegPath       = "ffmpeg"
	ffprobePath      = "ffprobe"
	maxTranscodes    = 2
	probeWindowBytes = int64(16 << 20)

	// logging
	logFilePath   = ""
	logAllowRegex = `^\[(init|boot|http|scan|refresh|links|d|stream|subtitle|encoder|janitor|panic)\]`
	logDenyRegex  = ``
	logDedupWin   = 3 * time.Second
)

func Load() {
	listenAddr = getenv("LISTEN", listenAddr)
	publicBaseURL = getenv("PUBLIC_BASE_URL", publicBaseURL)

	sftpHost = getenv("SFTP_HOST", sftpHost)
	sftpPort = getenvInt("SFTP_PORT", sftpPort)
	sftpUsername = getenv("SFTP_USERNAME", sftpUsername)
	sftpPassword = getenv("SFTP_PASSWORD", sftpPassword)
	sshKeyPath = getenv("SSH_KEY_PATH", sshKeyPath)
	sshKeyText = getenv("SSH_KEY_TEXT", sshKeyText)

	booksRoot = getenv("LIBRARY_ROOT_PATH", booksRoot)
	bookExts = getenvList("FILE_EXTENSIONS", bookExts)
	moviesRoot = getenv("MOVIES_ROOT_PATH", moviesRoot)
	movieExts = getenvList("MOVIE_EXTENSIONS", movieExts)
	tvRoot = getenv("TV_ROOT_PATH", tvRoot)
	tvExts = getenvList("TV_EXTENSIONS", tvExts)
	musicRoot = getenv("MUSIC_ROOT_PATH", musicRoot)
	musicExts = getenvList("MUSIC_EXTENSIONS", musicExts)

	cacheTTL = getenvDuration("CACHE_TTL", cacheTTL)
	if sec := getenvInt64("CACHE_TTL_SECONDS", 0); sec > 0 {
		cacheTTL = time.Duration(sec) * time.Second
	}

	linkTTL = getenvDuration("LINK_TTL", linkTTL)
	if sec := getenvInt64("LINK_TTL_SECONDS", 0); sec > 0 {
		linkTTL = time.Duration(sec) * time.Second
	}
	linkSecret = getenv("LINK_SECRET", linkSecret)
	linkSingleUse = strings.ToLower(getenv("LINK_SINGLE_USE", "false")) == "true"
	linkMaxUses = getenvInt("LINK_MAX_USES", linkMaxUses)

	ffmpegPath = getenv("FFMPEG_PATH", ffmpegPath)
	ffprobePath = getenv("FFPROBE_PATH", ffprobePath)
	maxTranscodes = getenvInt("MAX_TRANSCODES", maxTranscodes)
	probeWindowBytes = getenvInt64("PROBE_WINDOW_BYTES", probeWindowBytes)

	logFilePath = getenv("LOG_FILE", logFilePath)
	logAllowRegex = getenv("LOG_ALLOW", logAllowRegex)
	logDenyRegex = getenv("LOG_DENY", logDenyRegex)
	logDedupWin = getenvDuration("LOG_DEDUP_WINDOW", logDedupWin)
}

// getters
func ListenAddr() string            { return listenAddr }
func PublicBaseURL() string         { return publicBaseURL }
func SFTPHost() string              { return sftpHost }
func SFTPPort() int                 { return sftpPort }
func SFTPUsername() string          { return sftpUsername }
func SFTPPassword() string          { return sftpPassword }
func SSHKeyPath() string            { return sshKeyPath }
func SSHKeyText() string            { return sshKeyText }
func BooksRoot() string             { return booksRoot }
func BookExts() []string            { return bookExts }
func MoviesRoot() string            { return moviesRoot }
func MovieExts() []string           { return movieExts }
func TVRoot() string                { return tvRoot }
func TVExts() []string              { return tvExts }
func MusicRoot() string             { return musicRoot }
func MusicExts() []string           { return musicExts }
func CacheTTL() time.Duration       { return cacheTTL }
func LinkTTL() time.Duration        { return linkTTL }
func LinkSecret() string            { return linkSecret }
func LinkSingleUse() bool           { return linkSingleUse }
func LinkMaxUses() int              { return linkMaxUses }
func FFmpegPath() string            { return ffmpegPath }
func FFprobePath() string           { return ffprobePath }
func MaxTranscodes() int            { return maxTranscodes }
func ProbeWindowBytes() int64       { return probeWindowBytes }
func LogFilePath() string           { return logFilePath }
func LogAllowRegex() string         { return logAllowRegex }
func LogDenyRegex() string          { return logDenyRegex }
func LogDedupWindow() time.Duration { return logDedupWin }

// helpers
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func getenvInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getenvList parses a comma-separated extension list, ensuring each entry
// keeps its leading dot.
func getenvList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
