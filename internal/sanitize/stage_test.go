package sanitize

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/reelsmith/internal/collect"
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

func setup(t *testing.T) (*Stage, *database.DB, *workspace.Workspace) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ws, err := workspace.New(filepath.Join(dir, "workspace"))
	require.NoError(t, err)
	return NewStage(db, ws, zaptest.NewLogger(t)), db, ws
}

func rawPost(id string) collect.RawPost {
	return collect.RawPost{
		ID:       id,
		Channel:  "AskReddit",
		Title:    "Email me at op@example.com",
		Author:   "op_user",
		SelfText: "See https://example.com/thing",
		Comments: []collect.Comment{
			{Author: "replier", Body: "call 555-123-4567", Score: 12},
			{Author: "fan", Body: "thanks /u/op_user", Score: 3},
		},
	}
}

func TestFromRaw(t *testing.T) {
	got := FromRaw(rawPost("p1"))
	want := Canonical{
		ID:      "p1",
		Channel: "AskReddit",
		Title:   "Email me at [email removed]",
		Author:  "op_user",
		Body:    "See [link removed]",
		Comments: []collect.Comment{
			{Author: "replier", Body: "call [phone removed]", Score: 12},
			{Author: "fan", Body: "thanks /u/op_user", Score: 3},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromRaw mismatch (-want +got):\n%s", diff)
	}
}

func TestFromRawUsesLinkedTextWhenNoSelftext(t *testing.T) {
	raw := rawPost("p2")
	raw.SelfText = ""
	raw.LinkedText = "Article body mailing x@y.org"
	assert.Equal(t, "Article body mailing [email removed]", FromRaw(raw).Body)
}

func TestRunWritesCanonicalOnce(t *testing.T) {
	s, _, ws := setup(t)
	require.NoError(t, ws.WriteJSON(workspace.Raw, "p1", rawPost("p1")))

	r := s.Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Processed)

	var c Canonical
	require.NoError(t, ws.ReadJSON(workspace.Canonical, "p1", &c))
	assert.Equal(t, "See [link removed]", c.Body)

	r = s.Run(context.Background(), Options{})
	assert.Zero(t, r.Processed)
	assert.Equal(t, 1, r.Skipped)

	r = s.Run(context.Background(), Options{Force: true})
	assert.Equal(t, 1, r.Processed)
}

func TestRunNeverResurrectsQuarantined(t *testing.T) {
	s, db, ws := setup(t)
	require.NoError(t, ws.WriteJSON(workspace.Raw, "held", rawPost("held")))
	require.NoError(t, ws.WriteJSON(workspace.Quarantine, "held", FromRaw(rawPost("held"))))

	require.NoError(t, ws.WriteJSON(workspace.Raw, "resolved", rawPost("resolved")))
	_, err := db.InsertCandidateIfAbsent(database.Candidate{
		ID: "resolved", Source: "AskReddit", Title: "t",
		DiscoveredAt: "2026-02-06T10:00:00Z", RawContentRef: "raw/resolved.json",
	})
	require.NoError(t, err)
	require.NoError(t, db.SetModerationStatus("resolved", database.StatusFlagged))

	r := s.Run(context.Background(), Options{Force: true})

	assert.Equal(t, 2, r.Quarantined)
	assert.Zero(t, r.Processed)
	assert.False(t, ws.Exists(workspace.Canonical, "held.json"))
	assert.False(t, ws.Exists(workspace.Canonical, "resolved.json"))
}

func TestRunCountsUnreadablePayload(t *testing.T) {
	s, _, ws := setup(t)
	require.NoError(t, ws.WriteFile(workspace.Raw, "broken.json", []byte("{not json")))
	require.NoError(t, ws.WriteJSON(workspace.Raw, "ok", rawPost("ok")))

	r := s.Run(context.Background(), Options{})
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, r.Processed)
}
