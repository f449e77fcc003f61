// Package pipeline runs the content stages in order over the full backlog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/TobiSchelling/reelsmith/internal/audio"
	"github.com/TobiSchelling/reelsmith/internal/collect"
	"github.com/TobiSchelling/reelsmith/internal/config"
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/logging"
	"github.com/TobiSchelling/reelsmith/internal/moderate"
	"github.com/TobiSchelling/reelsmith/internal/render"
	"github.com/TobiSchelling/reelsmith/internal/sanitize"
	"github.com/TobiSchelling/reelsmith/internal/score"
	"github.com/TobiSchelling/reelsmith/internal/script"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

// ErrUnknownStage is returned by RunStage for names not in Stages.
var ErrUnknownStage = errors.New("pipeline: unknown stage")

// Stage names in execution order.
const (
	StageCollect   = "collect"
	StageScore     = "score"
	StageSanitize  = "sanitize"
	StageModerate  = "moderate"
	StageScript    = "script"
	StageAudio     = "audio"
	StageRender    = "render"
	StageRetention = "retention"
)

// Stages lists every stage a full run executes.
var Stages = []string{
	StageCollect, StageScore, StageSanitize, StageModerate,
	StageScript, StageAudio, StageRender, StageRetention,
}

// Generator is the generative service every model-backed stage shares.
type Generator interface {
	moderate.Dispatcher
	audio.Dispatcher
}

// Deps are the external collaborators of a pipeline.
type Deps struct {
	Channels []collect.Channel
	Enricher collect.Enricher
	LLM      Generator
	Encoder  render.Encoder
}

// Options control a run.
type Options struct {
	// Force regenerates outputs that already exist.
	Force bool
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
}

// Failed counts steps that reported an error.
func (r *Result) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Pipeline orchestrates the stages over one store and workspace.
type Pipeline struct {
	cfg    *config.Config
	db     *database.DB
	ws     *workspace.Workspace
	deps   Deps
	logger *zap.Logger
	sem    *semaphore.Weighted
	now    func() time.Time
}

// New creates a pipeline from explicit collaborators.
func New(cfg *config.Config, db *database.DB, ws *workspace.Workspace, deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:    cfg,
		db:     db,
		ws:     ws,
		deps:   deps,
		logger: logger,
		sem:    semaphore.NewWeighted(1),
		now:    time.Now,
	}
}

// Run executes every stage in order and records the run. Per-item failures
// are reported in the step results; they never stop later stages.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if !p.sem.TryAcquire(1) {
		return nil, ErrRunInProgress
	}
	defer p.sem.Release(1)

	r := &Result{RunID: uuid.NewString(), StartedAt: p.now()}
	log := p.logger.With(zap.String("run", r.RunID))
	if err := p.db.InsertRun(r.RunID, database.Timestamp(r.StartedAt)); err != nil {
		log.Warn("recording run start", zap.Error(err))
	}

	for i, name := range Stages {
		if ctx.Err() != nil {
			r.Steps = append(r.Steps, StepResult{Name: name, Err: ctx.Err()})
			break
		}
		log.Info(fmt.Sprintf("Step %d/%d: %s", i+1, len(Stages), name))
		r.Steps = append(r.Steps, p.runStage(ctx, name, opts))
	}

	r.FinishedAt = p.now()
	if err := p.db.FinishRun(r.RunID, database.Timestamp(r.FinishedAt), toRunSteps(r.Steps)); err != nil {
		log.Warn("recording run finish", zap.Error(err))
	}
	log.Info("run complete", zap.Duration("took", r.FinishedAt.Sub(r.StartedAt)), zap.Int("failed_steps", r.Failed()))
	return r, nil
}

// RunStage executes one named stage under the same no-overlap guard as Run.
func (p *Pipeline) RunStage(ctx context.Context, name string, opts Options) (StepResult, error) {
	if !slices.Contains(Stages, name) {
		return StepResult{}, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	if !p.sem.TryAcquire(1) {
		return StepResult{}, ErrRunInProgress
	}
	defer p.sem.Release(1)
	return p.runStage(ctx, name, opts), nil
}

func (p *Pipeline) runStage(ctx context.Context, name string, opts Options) StepResult {
	log := logging.Stage(p.logger, name)
	switch name {
	case StageCollect:
		r := collect.NewCollector(p.db, p.ws, p.deps.Channels, p.cfg.Sources.Limit, p.deps.Enricher, log).Collect(ctx)
		return step(name, r.Errors, "Found %d new posts (%d total, %d duplicates, %d enriched)",
			r.NewPosts, r.TotalFound, r.Duplicates, r.Enriched)

	case StageScore:
		r := score.NewScorer(p.db, p.cfg.Sources.ChannelWeights, log).Run()
		if r.Top != nil {
			return step(name, r.Errors, "Scored %d candidates, top %s (%.2f)", r.Scored, r.Top.ID, r.Top.ViralityScore)
		}
		return step(name, r.Errors, "Scored %d candidates", r.Scored)

	case StageSanitize:
		r := sanitize.NewStage(p.db, p.ws, log).Run(ctx, sanitize.Options{Force: opts.Force})
		return step(name, r.Errors, "Sanitized %d posts (%d unchanged, %d quarantined)",
			r.Processed, r.Skipped, r.Quarantined)

	case StageModerate:
		r := moderate.NewModerator(p.db, p.ws, p.deps.LLM, log).Run(ctx)
		return step(name, r.Errors+r.Inconsistencies, "Reviewed %d: %d passed, %d flagged, %d inconsistencies",
			r.Reviewed, r.Passed, r.Flagged, r.Inconsistencies)

	case StageScript:
		r := script.NewGenerator(p.db, p.ws, p.deps.LLM, p.cfg.Script.LengthSeconds, log).
			Run(ctx, script.Options{Force: opts.Force})
		return step(name, r.Errors, "Generated %d scripts (%d existing, %d rejected)", r.Generated, r.Skipped, r.Rejected)

	case StageAudio:
		r := audio.NewSynthesizer(p.ws, p.deps.LLM, log).Run(ctx, audio.Options{Force: opts.Force})
		return step(name, r.Errors, "Synthesized %d narrations (%d existing, %d without audio)", r.Generated, r.Skipped, r.Empty)

	case StageRender:
		style := render.CardStyle{Width: p.cfg.Render.Width, Height: p.cfg.Render.Height, WrapWidth: p.cfg.Render.WrapWidth}
		r := render.NewRenderer(p.ws, style, p.deps.Encoder, log).Run(ctx, render.Options{Force: opts.Force})
		return step(name, r.Errors, "Rendered %d videos (%d existing, %d not ready)", r.Rendered, r.Skipped, r.NotReady)

	case StageRetention:
		if !p.cfg.Retention.Enabled {
			return StepResult{Name: name, Summary: "Retention disabled"}
		}
		maxAge := time.Duration(p.cfg.Retention.MaxAgeHours * float64(time.Hour))
		r := p.ws.Cleanup(maxAge, p.now(), log)
		return step(name, r.Errors, "Deleted %d files, removed %d directories", r.FilesDeleted, r.DirsRemoved)
	}
	return StepResult{Name: name, Err: fmt.Errorf("%w: %q", ErrUnknownStage, name)}
}

func step(name string, errCount int, format string, args ...any) StepResult {
	s := StepResult{Name: name, Summary: fmt.Sprintf(format, args...)}
	if errCount > 0 {
		s.Err = fmt.Errorf("%d item errors", errCount)
	}
	return s
}

func toRunSteps(steps []StepResult) []database.RunStep {
	out := make([]database.RunStep, 0, len(steps))
	for _, s := range steps {
		rs := database.RunStep{Name: s.Name, Summary: s.Summary}
		if s.Err != nil {
			rs.Error = s.Err.Error()
		}
		out = append(out, rs)
	}
	return out
}
