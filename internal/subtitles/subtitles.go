package subtitles

import (
	"log"
	"os"
	"path"
	"regexp"
	"strings"

	"seedbox-gateway/internal/sftpx"
)

// Sidecar is a caption file sitting beside a video, sharing its base name.
type Sidecar struct {
	Path string
	Lang string
	Ext  string
}

var sidecarExts = []string{".srt", ".vtt", ".ass", ".ssa"}

var langTags = []string{"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh"}

// FindSidecars lists the video's directory for caption files whose name
// starts with the video's base name. A listing failure yields no sidecars;
// the video still plays without them.
func FindSidecars(sess sftpx.Session, videoPath string) []Sidecar {
	dir := path.Dir(videoPath)
	base := strings.TrimSuffix(path.Base(videoPath), path.Ext(videoPath))

	entries, err := sess.ReadDir(dir)
	if err != nil {
		log.Printf("[subtitle] listing %s: %v", dir, err)
		return nil
	}
	var out []Sidecar
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if matchesSidecar(e, base) {
			out = append(out, Sidecar{
				Path: path.Join(dir, e.Name()),
				Lang: detectLang(e.Name()),
				Ext:  strings.ToLower(path.Ext(e.Name())),
			})
		}
	}
	return out
}

func matchesSidecar(e os.FileInfo, base string) bool {
	name := e.Name()
	ext := strings.ToLower(path.Ext(name))
	for _, want := range sidecarExts {
		if ext == want {
			return strings.HasPrefix(name, base)
		}
	}
	return false
}

// detectLang pulls a two-letter tag out of names like "Movie.en.srt".
func detectLang(name string) string {
	lower := strings.ToLower(name)
	for _, tag := range langTags {
		if strings.Contains(lower, "."+tag+".") {
			return tag
		}
	}
	return "en"
}

var (
	// SRT timestamps are comma-millisecond: 00:00:00,000 --> 00:00:00,000
	srtTimeRE = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}),(\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}),(\d{3})`)
	cueNumRE  = regexp.MustCompile(`^\d+$`)
)

// SRTtoVTT converts SRT subtitles to WebVTT: header prepended, numeric cue
// identifiers dropped, timestamp commas turned into periods.
func SRTtoVTT(srt string) string {
	var vtt strings.Builder
	vtt.WriteString("WEBVTT\n\n")

	lines := strings.Split(strings.ReplaceAll(srt, "\r\n", "\n"), "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case cueNumRE.MatchString(line):
			// cue numbers have no VTT equivalent
		case line == "":
			if vtt.Len() > len("WEBVTT\n\n") {
				vtt.WriteString("\n")
			}
		case srtTimeRE.MatchString(line):
			vtt.WriteString(srtTimeRE.ReplaceAllString(line, "$1.$2 --> $3.$4"))
			vtt.WriteString("\n")
		default:
			vtt.WriteString(line)
			vtt.WriteString("\n")
		}
	}
	return vtt.String()
}
