package render

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame is one card shown for Duration seconds.
type Frame struct {
	Path     string
	Duration float64
}

// Manifest renders an ffmpeg concat list. The last card is listed again
// without a duration so the demuxer keeps it on screen.
func Manifest(frames []Frame) string {
	var sb strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&sb, "file '%s'\n", escapePath(f.Path))
		fmt.Fprintf(&sb, "duration %s\n", strconv.FormatFloat(f.Duration, 'f', -1, 64))
	}
	if n := len(frames); n > 0 {
		fmt.Fprintf(&sb, "file '%s'\n", escapePath(frames[n-1].Path))
	}
	return sb.String()
}

func escapePath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
