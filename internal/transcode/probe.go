package transcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ProbeResult is the video stream summary used to decide remux vs transcode.
type ProbeResult struct {
	Codec  string
	PixFmt string
	Width  int
	Height int
}

// Probe inspects the leading bytes of src with ffprobe. The read is capped
// at the probe window so deciding a strategy never pulls a whole file over
// the wire.
func (t *Transcoder) Probe(ctx context.Context, src io.Reader) (*ProbeResult, error) {
	if _, err := exec.LookPath(t.ffprobe); err != nil {
		return nil, ErrEncoderUnavailable
	}
	cmd := exec.CommandContext(ctx, t.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"pipe:0",
	)
	cmd.Stdin = io.LimitReader(src, t.window)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return decodeProbe(out)
}

func decodeProbe(raw []byte) (*ProbeResult, error) {
	var decoded struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			PixFmt    string `json:"pix_fmt"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("ffprobe output: %w", err)
	}
	for _, st := range decoded.Streams {
		if st.CodecType == "video" {
			return &ProbeResult{
				Codec:  st.CodecName,
				PixFmt: st.PixFmt,
				Width:  st.Width,
				Height: st.Height,
			}, nil
		}
	}
	return nil, errors.New("transcode: no video stream found")
}

var (
	copyCodecs  = map[string]bool{"h264": true}
	copyPixFmts = map[string]bool{"yuv420p": true, "yuvj420p": true}
)

// Compatible reports whether the probed video stream can be container-copied
// into an MP4 that browsers will play.
func Compatible(p *ProbeResult) bool {
	return p != nil && copyCodecs[p.Codec] && copyPixFmts[p.PixFmt]
}
