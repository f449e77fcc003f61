package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Job is one video to assemble.
type Job struct {
	Manifest string
	Audio    string
	Output   string
}

// Encoder turns a concat manifest and narration into a video file.
type Encoder interface {
	Encode(ctx context.Context, job Job) error
}

// FFmpegEncoder shells out to ffmpeg.
type FFmpegEncoder struct {
	Binary string
}

// Args returns the ffmpeg arguments for job.
func (e FFmpegEncoder) Args(job Job) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", job.Manifest,
		"-i", job.Audio,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		job.Output,
	}
}

// Encode runs ffmpeg and reports the tail of its stderr on failure.
func (e FFmpegEncoder) Encode(ctx context.Context, job Job) error {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, e.Args(job)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 500))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
