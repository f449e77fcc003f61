package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/reelsmith/internal/script"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

type fakeEncoder struct {
	jobs []Job
	err  error
}

func (f *fakeEncoder) Encode(_ context.Context, job Job) error {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(job.Output, []byte("mp4"), 0o644)
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(filepath.Join(t.TempDir(), "workspace"))
	require.NoError(t, err)
	return ws
}

func writeScript(t *testing.T, ws *workspace.Workspace, id string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(workspace.Scripts, id, script.Script{
		Tone: "funny", Pacing: "fast", CaptionStyle: "bold-large", LengthSeconds: 7,
		Scenes: []script.Scene{
			{Text: "A fairly long caption that will need to wrap over several lines", Duration: 4},
			{Text: "Short", Start: 4, Duration: 3},
		},
	}))
}

func smallStyle() CardStyle { return CardStyle{Width: 270, Height: 480, WrapWidth: 30} }

func TestPaintProducesSizedPNG(t *testing.T) {
	p := NewPainter(smallStyle())
	for _, caption := range []string{"bold-large", "minimal", "italic", "unknown"} {
		var buf bytes.Buffer
		require.NoError(t, p.Paint(&buf, "hello world", caption), caption)
		img, err := png.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, 270, img.Bounds().Dx())
		assert.Equal(t, 480, img.Bounds().Dy())
	}
}

func TestLinesWrap(t *testing.T) {
	p := NewPainter(CardStyle{WrapWidth: 10})
	lines := p.Lines("  the quick brown fox jumps  ")
	assert.Equal(t, []string{"the quick", "brown fox", "jumps"}, lines)
	assert.Empty(t, p.Lines("   "))
}

func TestManifestRepeatsLastFrame(t *testing.T) {
	got := Manifest([]Frame{{Path: "/f/a.png", Duration: 4}, {Path: "/f/it's.png", Duration: 2.5}})
	want := "file '/f/a.png'\nduration 4\n" +
		"file '/f/it'\\''s.png'\nduration 2.5\n" +
		"file '/f/it'\\''s.png'\n"
	assert.Equal(t, want, got)
	assert.Empty(t, Manifest(nil))
}

func TestFFmpegArgs(t *testing.T) {
	args := FFmpegEncoder{}.Args(Job{Manifest: "m.txt", Audio: "a.wav", Output: "o.mp4"})
	assert.Equal(t, "-y -f concat -safe 0 -i m.txt -i a.wav -c:v libx264 -pix_fmt yuv420p -c:a aac -shortest o.mp4",
		strings.Join(args, " "))
}

func TestRunRendersWhenReady(t *testing.T) {
	ws := newWorkspace(t)
	writeScript(t, ws, "p1")
	writeScript(t, ws, "p2")
	require.NoError(t, ws.WriteFile(workspace.Output, "p1.wav", []byte("RIFF")))
	enc := &fakeEncoder{}

	r := NewRenderer(ws, smallStyle(), enc, zaptest.NewLogger(t))
	res := r.Run(context.Background(), Options{})
	assert.Equal(t, 1, res.Rendered)
	assert.Equal(t, 1, res.NotReady)
	require.Len(t, enc.jobs, 1)

	assert.True(t, ws.Exists(workspace.Output, "p1.mp4"))
	assert.True(t, ws.Exists(workspace.Frames, "p1/scene_000.png"))
	assert.True(t, ws.Exists(workspace.Frames, "p1/scene_001.png"))

	manifest, err := os.ReadFile(enc.jobs[0].Manifest)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(manifest), "file '"))
	assert.Equal(t, 2, strings.Count(string(manifest), "duration "))

	res = r.Run(context.Background(), Options{})
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, enc.jobs, 1)
}

func TestRunEncoderFailureLeavesNoVideo(t *testing.T) {
	ws := newWorkspace(t)
	writeScript(t, ws, "p1")
	require.NoError(t, ws.WriteFile(workspace.Output, "p1.wav", []byte("RIFF")))

	res := NewRenderer(ws, smallStyle(), &fakeEncoder{err: errors.New("exit status 1")}, zaptest.NewLogger(t)).
		Run(context.Background(), Options{})
	assert.Equal(t, 1, res.Errors)
	assert.False(t, ws.Exists(workspace.Output, "p1.mp4"))
}
