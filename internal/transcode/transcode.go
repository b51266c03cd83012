package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync/atomic"
	"time"
)

const (
	feedChunk  = 256 << 10
	outChunk   = 128 << 10
	stallLimit = 30 * time.Second
)

var (
	ErrEncoderUnavailable = errors.New("transcode: encoder binary not found")
)

// Spec describes one encoding strategy for a streaming session.
type Spec struct {
	CopyVideo bool // keep the video stream, re-encode audio only
	Height    int  // 0 keeps the source resolution
}

// Transcoder runs ffmpeg/ffprobe subprocesses fed from a remote reader.
// Concurrency is bounded by a slot semaphore so a handful of clients cannot
// saturate the host.
type Transcoder struct {
	ffmpeg  string
	ffprobe string
	window  int64
	slots   chan struct{}
}

func New(ffmpegPath, ffprobePath string, probeWindow int64, maxConcurrent int) *Transcoder {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Transcoder{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		window:  probeWindow,
		slots:   make(chan struct{}, maxConcurrent),
	}
}

func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.ffmpeg)
	return err == nil
}

// Acquire reserves an encoder slot without blocking.
func (t *Transcoder) Acquire() bool {
	select {
	case t.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (t *Transcoder) Release() {
	<-t.slots
}

// Run pipes src through ffmpeg and writes fragmented MP4 to w, flushing after
// every chunk. It returns when the encoder finishes, the context is done, or
// the encoder produces nothing for stallLimit. The subprocess never outlives
// the call.
func (t *Transcoder) Run(ctx context.Context, src io.Reader, w io.Writer, flush func() error, spec Spec) (int64, error) {
	if _, err := exec.LookPath(t.ffmpeg); err != nil {
		return 0, ErrEncoderUnavailable
	}
	cmd := exec.Command(t.ffmpeg, buildArgs(spec)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", t.ffmpeg, err)
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			log.Printf("[encoder] %s", sc.Text())
		}
	}()

	// Feeder: remote source -> encoder stdin. Writes block when the
	// encoder's input buffer fills, which is the backpressure that keeps the
	// remote read from outrunning the encode. The stop flag ends it within
	// one chunk once the consumer is gone.
	var stop atomic.Bool
	feederDone := make(chan struct{})
	go func() {
		defer close(feederDone)
		defer stdin.Close()
		buf := make([]byte, feedChunk)
		for !stop.Load() {
			n, rerr := src.Read(buf)
			if n > 0 {
				if _, werr := stdin.Write(buf[:n]); werr != nil {
					return
				}
			}
			if rerr != nil {
				return
			}
		}
	}()

	type chunk struct {
		data []byte
		err  error
	}
	chunks := make(chan chunk)
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, outChunk)
			n, rerr := stdout.Read(buf)
			if n > 0 {
				chunks <- chunk{data: buf[:n]}
			}
			if rerr != nil {
				if !errors.Is(rerr, io.EOF) {
					chunks <- chunk{err: rerr}
				}
				return
			}
		}
	}()

	var written int64
	var runErr error
	stall := time.NewTimer(stallLimit)
	defer stall.Stop()

consume:
	for {
		if !stall.Stop() {
			select {
			case <-stall.C:
			default:
			}
		}
		stall.Reset(stallLimit)

		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break consume
		case <-stall.C:
			runErr = fmt.Errorf("transcode: no encoder output for %s", stallLimit)
			break consume
		case c, open := <-chunks:
			if !open {
				break consume
			}
			if c.err != nil {
				runErr = c.err
				break consume
			}
			if _, werr := w.Write(c.data); werr != nil {
				runErr = werr
				break consume
			}
			if flush != nil {
				if ferr := flush(); ferr != nil {
					runErr = ferr
					break consume
				}
			}
			written += int64(len(c.data))
		}
	}

	// Teardown: stop the feeder, close both pipes, drain the consumer
	// channel, then wait so the encoder process is never orphaned.
	stop.Store(true)
	stdin.Close()
	stdout.Close()
	go func() {
		for range chunks {
		}
	}()
	<-feederDone
	if werr := cmd.Wait(); werr != nil && runErr == nil && ctx.Err() == nil {
		log.Printf("[encoder] exited: %v", werr)
	}
	return written, runErr
}

func buildArgs(spec Spec) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
	}
	if spec.CopyVideo {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-crf", "28",
			"-maxrate", "2M",
			"-bufsize", "4M",
		)
		if spec.Height > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", spec.Height))
		}
	}
	return append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-movflags", "+frag_keyframe+empty_moov",
		"-avoid_negative_ts", "make_zero",
		"-f", "mp4",
		"pipe:1",
	)
}
