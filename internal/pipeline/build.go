package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/collect"
	"github.com/TobiSchelling/reelsmith/internal/config"
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/fetch"
	"github.com/TobiSchelling/reelsmith/internal/llm"
	"github.com/TobiSchelling/reelsmith/internal/render"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

const fetchTimeout = 15 * time.Second

// Build wires the production collaborators described by cfg.
func Build(cfg *config.Config, db *database.DB, ws *workspace.Workspace, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := Deps{Encoder: render.FFmpegEncoder{Binary: cfg.Render.FFmpeg}}

	if cfg.Sources.Reddit.Enabled {
		rs, err := collect.NewRedditSource(cfg.Sources.Reddit)
		if err != nil {
			return nil, fmt.Errorf("reddit source: %w", err)
		}
		for _, name := range cfg.Sources.Channels {
			deps.Channels = append(deps.Channels, collect.Channel{Source: rs, Name: name})
		}
	}
	if len(cfg.Sources.Feeds) > 0 {
		fs := collect.NewFeedSource(cfg.Sources.Feeds)
		for _, name := range fs.Channels() {
			deps.Channels = append(deps.Channels, collect.Channel{Source: fs, Name: name})
		}
	}
	if cfg.Sources.FetchLinked {
		deps.Enricher = fetch.NewExtractor(fetchTimeout, cfg.Sources.Reddit.UserAgent)
	}

	gen, err := buildGenerator(cfg.Generation, logger)
	if err != nil {
		return nil, err
	}
	deps.LLM = gen

	return New(cfg, db, ws, deps, logger), nil
}

// splitGenerator sends text prompts and speech to different clients.
type splitGenerator struct {
	text  *llm.Client
	audio *llm.Client
}

func (g splitGenerator) DispatchStructured(ctx context.Context, prompt string) (map[string]any, error) {
	return g.text.DispatchStructured(ctx, prompt)
}

func (g splitGenerator) DispatchAudio(ctx context.Context, text string) ([]byte, error) {
	return g.audio.DispatchAudio(ctx, text)
}

func buildGenerator(gen config.Generation, logger *zap.Logger) (Generator, error) {
	keys, err := gen.APIKeys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		logger.Warn("no generation API keys configured; Gemini calls will fail",
			zap.String("env", gen.APIKeyEnv))
	}

	opts := llm.DefaultOptions()
	opts.MaxAttempts = gen.MaxAttempts
	opts.RetryDelay = gen.RetryDelay
	gemini := llm.NewClient(llm.NewGemini(llm.GeminiOptions{
		Model:    gen.Model,
		TTSModel: gen.TTSModel,
		Voice:    gen.Voice,
		Timeout:  gen.Timeout,
	}), llm.NewKeyPool(keys), opts, logger.Named("gemini"))

	if gen.Provider != "ollama" {
		return gemini, nil
	}
	ollama := llm.NewClient(llm.NewOllama(gen.OllamaModel, gen.OllamaURL, gen.Timeout),
		llm.NewKeyPool([]string{llm.LocalKey}), opts, logger.Named("ollama"))
	return splitGenerator{text: ollama, audio: gemini}, nil
}
