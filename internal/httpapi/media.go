package httpapi

import (
	"fmt"
	"path"
	"strings"
)

// Mode is the delivery strategy for one /stream request.
type Mode int

const (
	ModeDirect Mode = iota
	ModeRemux
	ModeTranscode
)

type Strategy struct {
	Mode   Mode
	Height int // 0 keeps the source resolution
}

// pickStrategy collapses the quality parameter into one decision: direct for
// natively playable containers unless overridden, remux on request (the
// handler falls back to transcode when the probe says the codec won't copy),
// and height-bounded transcodes for the named rungs.
func pickStrategy(quality, filename string) (Strategy, error) {
	switch strings.ToLower(quality) {
	case "", "auto":
		if nativeContainer(filename) {
			return Strategy{Mode: ModeDirect}, nil
		}
		return Strategy{Mode: ModeRemux}, nil
	case "direct":
		return Strategy{Mode: ModeDirect}, nil
	case "remux":
		return Strategy{Mode: ModeRemux}, nil
	case "1080p":
		return Strategy{Mode: ModeTranscode, Height: 1080}, nil
	case "720p":
		return Strategy{Mode: ModeTranscode, Height: 720}, nil
	case "480p":
		return Strategy{Mode: ModeTranscode, Height: 480}, nil
	}
	return Strategy{}, fmt.Errorf("unknown quality %q", quality)
}

var videoExts = map[string]bool{
	".mp4": true, ".m4v": true, ".webm": true, ".mov": true,
	".mkv": true, ".avi": true, ".ts": true, ".wmv": true, ".flv": true,
}

// nativeContainer marks formats browsers play without a remux.
var nativeExts = map[string]bool{
	".mp4": true, ".m4v": true, ".webm": true, ".mov": true,
}

func isVideo(name string) bool {
	return videoExts[strings.ToLower(path.Ext(name))]
}

func nativeContainer(name string) bool {
	return nativeExts[strings.ToLower(path.Ext(name))]
}

func mimeForName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".epub":
		return "application/epub+zip"
	case ".pdf":
		return "application/pdf"
	case ".mobi", ".azw3":
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}
