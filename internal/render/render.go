package render

import (
	"context"
	"fmt"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/audio"
	"github.com/TobiSchelling/reelsmith/internal/script"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// MP4Name is the video file name for id in the output area.
func MP4Name(id string) string { return id + ".mp4" }

// Options control a render run.
type Options struct {
	// Force re-renders videos that already exist.
	Force bool
}

// Result holds the results of a render run.
type Result struct {
	Rendered int
	Skipped  int
	NotReady int
	Errors   int
}

// Renderer is the render assembly stage.
type Renderer struct {
	ws      *workspace.Workspace
	painter *Painter
	encoder Encoder
	logger  *zap.Logger
}

// NewRenderer creates the render stage.
func NewRenderer(ws *workspace.Workspace, style CardStyle, encoder Encoder, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{ws: ws, painter: NewPainter(style), encoder: encoder, logger: logger}
}

// Run renders every script that has narration and no video yet.
func (r *Renderer) Run(ctx context.Context, opts Options) *Result {
	res := &Result{}
	ids, err := r.ws.ListIDs(workspace.Scripts, ".json")
	if err != nil {
		r.logger.Error("listing scripts", zap.Error(err))
		res.Errors++
		return res
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		log := r.logger.With(zap.String("id", id))
		if !opts.Force && r.ws.Exists(workspace.Output, MP4Name(id)) {
			res.Skipped++
			continue
		}
		if !r.ws.Exists(workspace.Output, audio.WAVName(id)) {
			log.Info("narration not ready, skipping")
			res.NotReady++
			continue
		}

		sc, err := script.Load(r.ws, id)
		if err != nil {
			log.Error("reading script", zap.Error(err))
			res.Errors++
			continue
		}
		if len(sc.Scenes) == 0 {
			log.Info("script has no scenes, skipping")
			res.NotReady++
			continue
		}

		if err := r.render(ctx, id, sc); err != nil {
			log.Error("rendering video", zap.Error(err))
			res.Errors++
			continue
		}
		log.Info("video rendered")
		res.Rendered++
	}

	r.logger.Info("render complete",
		zap.Int("rendered", res.Rendered),
		zap.Int("skipped", res.Skipped),
		zap.Int("not_ready", res.NotReady),
		zap.Int("errors", res.Errors))
	return res
}

func (r *Renderer) render(ctx context.Context, id string, sc script.Script) error {
	frames := make([]Frame, 0, len(sc.Scenes))
	for i, scene := range sc.Scenes {
		name := path.Join(id, fmt.Sprintf("scene_%03d.png", i))
		err := r.ws.WriteWith(workspace.Frames, name, func(f *os.File) error {
			return r.painter.Paint(f, scene.Text, sc.CaptionStyle)
		})
		if err != nil {
			return fmt.Errorf("card %d: %w", i, err)
		}
		frames = append(frames, Frame{Path: r.ws.Path(workspace.Frames, name), Duration: scene.Duration})
	}

	manifest := path.Join(id, "concat.txt")
	if err := r.ws.WriteFile(workspace.Frames, manifest, []byte(Manifest(frames))); err != nil {
		return err
	}

	// Encode under a hidden name; a partial mp4 would be skipped by later runs.
	tmp := "." + MP4Name(id)
	job := Job{
		Manifest: r.ws.Path(workspace.Frames, manifest),
		Audio:    r.ws.Path(workspace.Output, audio.WAVName(id)),
		Output:   r.ws.Path(workspace.Output, tmp),
	}
	if err := r.encoder.Encode(ctx, job); err != nil {
		os.Remove(job.Output)
		return err
	}
	return os.Rename(job.Output, r.ws.Path(workspace.Output, MP4Name(id)))
}
