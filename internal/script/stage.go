package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/moderate"
	"github.com/TobiSchelling/reelsmith/internal/sanitize"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

const maxPromptComments = 5

const promptTemplate = `You are a short-video copywriter. Input: %s, OP: %s, top_comments:
%s

Output JSON only with keys:
{
 "tone": "energetic|funny|informative|dry|sardonic",
 "pacing": "slow|medium|fast",
 "cta": "max 6 words",
 "caption_style": "one of: bold-large / minimal / italic",
 "length_seconds": %g,
 "scenes": [
   {"text":"caption line here","start":0.0,"duration":5.0,"visual":"suggestion (image/card)"},
   ...
 ]
}
If creative options are not given, decide them automatically based on content. Keep total durations close to length_seconds.`

// BuildPrompt renders the copywriter prompt for canonical content.
func BuildPrompt(c sanitize.Canonical, length float64) string {
	var lines []string
	for i, cm := range c.Comments {
		if i == maxPromptComments {
			break
		}
		lines = append(lines, "- "+cm.Body)
	}
	return fmt.Sprintf(promptTemplate, c.Title, c.Author, strings.Join(lines, "\n"), length)
}

// Dispatcher sends a prompt and parses a structured reply.
type Dispatcher interface {
	DispatchStructured(ctx context.Context, prompt string) (map[string]any, error)
}

// Store is the part of the candidate store script generation touches.
type Store interface {
	moderate.StateReader
	GetScript(candidateID string) (*database.ScriptRecord, error)
	UpsertScript(s database.ScriptRecord) error
}

// Load reads a stored script from the workspace.
func Load(ws *workspace.Workspace, id string) (Script, error) {
	var s Script
	err := ws.ReadJSON(workspace.Scripts, id, &s)
	return s, err
}

// Options control a script generation run.
type Options struct {
	// Force regenerates scripts that already exist.
	Force bool
}

// Result holds the results of a script generation run.
type Result struct {
	Generated int
	Skipped   int
	Rejected  int
	Errors    int
}

// Generator is the script generation stage.
type Generator struct {
	store  Store
	ws     *workspace.Workspace
	llm    Dispatcher
	length float64
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerator creates the script stage. length is the default target in seconds.
func NewGenerator(store Store, ws *workspace.Workspace, llm Dispatcher, length float64, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if length <= 0 {
		length = 30
	}
	return &Generator{store: store, ws: ws, llm: llm, length: length, logger: logger, now: time.Now}
}

// Run generates scripts for passed items.
func (g *Generator) Run(ctx context.Context, opts Options) *Result {
	r := &Result{}
	ids, err := g.ws.ListIDs(workspace.Canonical, ".json")
	if err != nil {
		g.logger.Error("listing canonical content", zap.Error(err))
		r.Errors++
		return r
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		state, err := moderate.StateOf(g.store, g.ws, id)
		if err != nil {
			g.logger.Error("reading moderation state", zap.String("id", id), zap.Error(err))
			r.Errors++
			continue
		}
		if state != moderate.Passed {
			continue
		}
		if !opts.Force {
			done, err := g.stored(id)
			if err != nil {
				g.logger.Error("reading script record", zap.String("id", id), zap.Error(err))
				r.Errors++
				continue
			}
			if done {
				r.Skipped++
				continue
			}
		}

		switch err := g.generate(ctx, id); {
		case err == nil:
			r.Generated++
		case errors.Is(err, ErrInvalidScript):
			g.logger.Warn("script rejected", zap.String("id", id), zap.Error(err))
			r.Rejected++
		default:
			g.logger.Error("generating script", zap.String("id", id), zap.Error(err))
			r.Errors++
		}
	}

	g.logger.Info("script generation complete",
		zap.Int("generated", r.Generated),
		zap.Int("skipped", r.Skipped),
		zap.Int("rejected", r.Rejected),
		zap.Int("errors", r.Errors))
	return r
}

func (g *Generator) generate(ctx context.Context, id string) error {
	var content sanitize.Canonical
	if err := g.ws.ReadJSON(workspace.Canonical, id, &content); err != nil {
		return err
	}

	obj, err := g.llm.DispatchStructured(ctx, BuildPrompt(content, g.length))
	if err != nil {
		return err
	}
	s, err := Validate(obj, g.length)
	if err != nil {
		return err
	}
	if s.DurationDrift() {
		g.logger.Warn("scene durations drift from target",
			zap.String("id", id), zap.Float64("total", s.Total()), zap.Float64("target", s.LengthSeconds))
	}

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	// Row first, then file. See stored.
	name := workspace.JSONName(id)
	err = g.store.UpsertScript(database.ScriptRecord{
		CandidateID:   id,
		Tone:          s.Tone,
		Pacing:        s.Pacing,
		CTA:           s.CTA,
		CaptionStyle:  s.CaptionStyle,
		LengthSeconds: s.LengthSeconds,
		ScriptRef:     g.ws.Ref(workspace.Scripts, name),
		ScriptJSON:    string(data),
		GeneratedAt:   database.Timestamp(g.now()),
	})
	if err != nil {
		return fmt.Errorf("recording script: %w", err)
	}
	return g.ws.WriteJSON(workspace.Scripts, id, s)
}

// stored reports whether id already has both a script row and a script file.
func (g *Generator) stored(id string) (bool, error) {
	if !g.ws.Exists(workspace.Scripts, workspace.JSONName(id)) {
		return false, nil
	}
	rec, err := g.store.GetScript(id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}
