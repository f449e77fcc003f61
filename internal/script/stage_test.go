package script

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/reelsmith/internal/collect"
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/sanitize"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

type fakeDispatcher struct {
	reply   map[string]any
	err     error
	prompts []string
}

func (f *fakeDispatcher) DispatchStructured(_ context.Context, prompt string) (map[string]any, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func setup(t *testing.T) (*database.DB, *workspace.Workspace) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ws, err := workspace.New(filepath.Join(dir, "workspace"))
	require.NoError(t, err)
	return db, ws
}

func addItem(t *testing.T, db *database.DB, ws *workspace.Workspace, id, status string) {
	t.Helper()
	_, err := db.InsertCandidateIfAbsent(database.Candidate{
		ID:            id,
		Source:        "AskReddit",
		Title:         "title " + id,
		Author:        "op",
		DiscoveredAt:  database.Timestamp(time.Now()),
		RawContentRef: "raw/" + id + ".json",
	})
	require.NoError(t, err)
	if status != database.StatusUnreviewed {
		require.NoError(t, db.SetModerationStatus(id, status))
	}

	comments := make([]collect.Comment, 7)
	for i := range comments {
		comments[i] = collect.Comment{Author: "c", Body: "comment", Score: i}
	}
	require.NoError(t, ws.WriteJSON(workspace.Canonical, id, sanitize.Canonical{
		ID: id, Title: "title " + id, Author: "op", Comments: comments,
	}))
}

func TestBuildPromptLimitsComments(t *testing.T) {
	c := sanitize.Canonical{Title: "T", Author: "A"}
	for i := 0; i < 8; i++ {
		c.Comments = append(c.Comments, collect.Comment{Body: "x"})
	}
	p := BuildPrompt(c, 30)
	assert.Contains(t, p, "Input: T, OP: A")
	assert.Equal(t, 5, strings.Count(p, "- x\n"))
}

func TestRunOnlyPassedItems(t *testing.T) {
	db, ws := setup(t)
	addItem(t, db, ws, "ok", database.StatusPassed)
	addItem(t, db, ws, "new", database.StatusUnreviewed)
	d := &fakeDispatcher{reply: validObject()}

	g := NewGenerator(db, ws, d, 30, zaptest.NewLogger(t))
	r := g.Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Generated)
	assert.Len(t, d.prompts, 1)

	s, err := Load(ws, "ok")
	require.NoError(t, err)
	assert.Equal(t, "funny", s.Tone)
	assert.False(t, ws.Exists(workspace.Scripts, "new.json"))

	rec, err := db.GetScript("ok")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "scripts/ok.json", rec.ScriptRef)
	var stored Script
	require.NoError(t, json.Unmarshal([]byte(rec.ScriptJSON), &stored))
	assert.Equal(t, s, stored)

	// Existing scripts are kept unless forced.
	r = g.Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Skipped)
	r = g.Run(context.Background(), Options{Force: true})
	assert.Equal(t, 1, r.Generated)
}

func TestRunRejectsInvalidScriptWithoutWriting(t *testing.T) {
	db, ws := setup(t)
	addItem(t, db, ws, "ok", database.StatusPassed)
	obj := validObject()
	delete(obj, "scenes")

	r := NewGenerator(db, ws, &fakeDispatcher{reply: obj}, 30, zaptest.NewLogger(t)).
		Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Rejected)
	assert.False(t, ws.Exists(workspace.Scripts, "ok.json"))

	rec, err := db.GetScript("ok")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunDispatchErrorCounted(t *testing.T) {
	db, ws := setup(t)
	addItem(t, db, ws, "ok", database.StatusPassed)

	r := NewGenerator(db, ws, &fakeDispatcher{err: errors.New("boom")}, 30, zaptest.NewLogger(t)).
		Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Errors)
	assert.False(t, ws.Exists(workspace.Scripts, "ok.json"))
}

// flakyScripts fails the first UpsertScript call.
type flakyScripts struct {
	*database.DB
	failures int
}

func (f *flakyScripts) UpsertScript(s database.ScriptRecord) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("disk I/O error")
	}
	return f.DB.UpsertScript(s)
}

func TestRunRetriesFailedRecordWrite(t *testing.T) {
	db, ws := setup(t)
	addItem(t, db, ws, "ok", database.StatusPassed)
	store := &flakyScripts{DB: db, failures: 1}
	g := NewGenerator(store, ws, &fakeDispatcher{reply: validObject()}, 30, zaptest.NewLogger(t))

	r := g.Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Errors)
	assert.False(t, ws.Exists(workspace.Scripts, "ok.json"))

	r = g.Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Generated)
	assert.Equal(t, 0, r.Skipped)
	assert.True(t, ws.Exists(workspace.Scripts, "ok.json"))
	rec, err := db.GetScript("ok")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRunRegeneratesWhenRowMissing(t *testing.T) {
	db, ws := setup(t)
	addItem(t, db, ws, "ok", database.StatusPassed)
	require.NoError(t, ws.WriteJSON(workspace.Scripts, "ok", Script{Tone: "dry"}))

	r := NewGenerator(db, ws, &fakeDispatcher{reply: validObject()}, 30, zaptest.NewLogger(t)).
		Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Generated)
	s, err := Load(ws, "ok")
	require.NoError(t, err)
	assert.Equal(t, "funny", s.Tone)
}
