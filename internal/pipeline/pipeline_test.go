package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/reelsmith/internal/collect"
	"github.com/TobiSchelling/reelsmith/internal/config"
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/render"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

type fakeSource struct{ posts []collect.Post }

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Listing(context.Context, string, collect.Sort, int) ([]collect.Post, error) {
	return f.posts, nil
}

func (f *fakeSource) TopComments(context.Context, string, int) ([]collect.Comment, error) {
	return []collect.Comment{{Author: "c", Body: "so true", Score: 4}}, nil
}

type fakeGenerator struct{ structured, audio int }

func (f *fakeGenerator) DispatchStructured(_ context.Context, prompt string) (map[string]any, error) {
	f.structured++
	if strings.Contains(prompt, "safety classifier") {
		bad := strings.Contains(prompt, "Title: bad")
		return map[string]any{"flag": bad, "reasons": []any{"test"}}, nil
	}
	return map[string]any{
		"tone":   "funny",
		"pacing": "fast",
		"cta":    "Follow",
		"scenes": []any{
			map[string]any{"text": "one", "duration": 15.0},
			map[string]any{"text": "two", "duration": 15.0},
		},
	}, nil
}

func (f *fakeGenerator) DispatchAudio(context.Context, string) ([]byte, error) {
	f.audio++
	return []byte{0, 0, 1, 0}, nil
}

type fakeEncoder struct{ calls int }

func (f *fakeEncoder) Encode(_ context.Context, job render.Job) error {
	f.calls++
	return os.WriteFile(job.Output, []byte("mp4"), 0o644)
}

func testConfig() *config.Config {
	return &config.Config{
		Sources:   config.Sources{Limit: 10},
		Script:    config.Script{LengthSeconds: 30},
		Render:    config.Render{Width: 270, Height: 480, WrapWidth: 30},
		Retention: config.Retention{Enabled: true, MaxAgeHours: 168},
	}
}

func setup(t *testing.T) (*Pipeline, *database.DB, *workspace.Workspace, *fakeGenerator, *fakeEncoder) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ws, err := workspace.New(filepath.Join(dir, "workspace"))
	require.NoError(t, err)

	src := &fakeSource{posts: []collect.Post{
		{ID: "good1", Title: "good post", Author: "a", Score: 500, NumComments: 40, IsSelf: true,
			SelfText: "body", CreatedUTC: time.Now().Add(-2 * time.Hour)},
		{ID: "bad1", Title: "bad post", Author: "b", Score: 100, NumComments: 5, IsSelf: true,
			SelfText: "body", CreatedUTC: time.Now().Add(-3 * time.Hour)},
	}}
	gen := &fakeGenerator{}
	enc := &fakeEncoder{}
	deps := Deps{
		Channels: []collect.Channel{{Source: src, Name: "AskReddit"}},
		LLM:      gen,
		Encoder:  enc,
	}
	return New(testConfig(), db, ws, deps, zaptest.NewLogger(t)), db, ws, gen, enc
}

func TestRunEndToEnd(t *testing.T) {
	p, db, ws, _, enc := setup(t)

	r, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, r.Steps, len(Stages))
	for _, s := range r.Steps {
		assert.NoError(t, s.Err, s.Name)
	}

	assert.True(t, ws.Exists(workspace.Output, "good1.mp4"))
	assert.True(t, ws.Exists(workspace.Output, "good1.wav"))
	assert.False(t, ws.Exists(workspace.Scripts, "bad1.json"))
	assert.True(t, ws.Exists(workspace.Quarantine, "bad1.json"))
	assert.Equal(t, 1, enc.calls)

	flag, err := db.GetFlag("bad1")
	require.NoError(t, err)
	require.NotNil(t, flag)

	runs, err := db.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, r.RunID, runs[0].ID)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Len(t, runs[0].Steps, len(Stages))
	assert.Zero(t, runs[0].ErrorCount)
}

func TestRunIsIdempotent(t *testing.T) {
	p, _, _, gen, enc := setup(t)

	_, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)
	structured, audio := gen.structured, gen.audio

	_, err = p.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, structured, gen.structured)
	assert.Equal(t, audio, gen.audio)
	assert.Equal(t, 1, enc.calls)
}

func TestRunRefusesOverlap(t *testing.T) {
	p, _, _, _, _ := setup(t)
	require.True(t, p.sem.TryAcquire(1))
	defer p.sem.Release(1)

	_, err := p.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = p.RunStage(context.Background(), StageScore, Options{})
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRunStage(t *testing.T) {
	p, db, _, _, _ := setup(t)

	s, err := p.RunStage(context.Background(), StageCollect, Options{})
	require.NoError(t, err)
	assert.NoError(t, s.Err)
	assert.Contains(t, s.Summary, "Found 2 new posts")

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCandidates)

	_, err = p.RunStage(context.Background(), "publish", Options{})
	assert.True(t, errors.Is(err, ErrUnknownStage))
}

func TestStepCountsItemErrors(t *testing.T) {
	s := step("audio", 2, "Synthesized %d", 1)
	assert.Equal(t, "Synthesized 1", s.Summary)
	assert.EqualError(t, s.Err, "2 item errors")
	assert.NoError(t, step("audio", 0, "ok").Err)
}
