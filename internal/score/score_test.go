package score

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reelsmith/internal/database"
)

func TestComputeKnownValue(t *testing.T) {
	// age 0: decay 1, velocity = comments.
	want := 0.65*math.Log1p(1000) + 0.25*math.Log1p(100) + 0.4*100 + 0.4
	assert.InDelta(t, want, Compute(1000, 100, 0), 1e-9)
}

func TestComputeZeroEngagement(t *testing.T) {
	assert.InDelta(t, 0.4, Compute(0, 0, 0), 1e-9)
}

func TestComputeDecays(t *testing.T) {
	fresh := Compute(1000, 100, 0)
	old := Compute(1000, 100, 48)
	assert.Greater(t, fresh, old)
}

func TestComputeNeverNegative(t *testing.T) {
	assert.GreaterOrEqual(t, Compute(-50, -10, -5), 0.0)
	assert.GreaterOrEqual(t, Compute(-50, 10, 1000), 0.0)
}

func TestComputeMonotonicInUpvotes(t *testing.T) {
	prev := Compute(0, 10, 5)
	for _, up := range []int{1, 10, 100, 1000, 10000} {
		cur := Compute(up, 10, 5)
		assert.Greater(t, cur, prev, "upvotes=%d", up)
		prev = cur
	}
}

func TestScorerRun(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	for _, c := range []database.Candidate{
		{ID: "hot", Source: "AskReddit", Title: "a", UpvoteCount: 5000, CommentCount: 900, AgeHoursAtDiscovery: 1, DiscoveredAt: "2026-02-06T10:00:00Z", RawContentRef: "raw/hot.json"},
		{ID: "stale", Source: "AskReddit", Title: "b", UpvoteCount: 5000, CommentCount: 900, AgeHoursAtDiscovery: 96, DiscoveredAt: "2026-02-06T10:00:00Z", RawContentRef: "raw/stale.json"},
		{ID: "muted", Source: "Showerthoughts", Title: "c", UpvoteCount: 5000, CommentCount: 900, AgeHoursAtDiscovery: 1, DiscoveredAt: "2026-02-06T10:00:00Z", RawContentRef: "raw/muted.json"},
	} {
		_, err := db.InsertCandidateIfAbsent(c)
		require.NoError(t, err)
	}

	s := NewScorer(db, map[string]float64{"Showerthoughts": 0.5}, nil)
	r := s.Run()
	assert.Equal(t, 3, r.Scored)
	require.NotNil(t, r.Top)
	assert.Equal(t, "hot", r.Top.ID)

	hot, _ := db.GetCandidate("hot")
	muted, _ := db.GetCandidate("muted")
	assert.InDelta(t, Compute(5000, 900, 1), hot.ViralityScore, 1e-9)
	assert.InDelta(t, hot.ViralityScore*0.5, muted.ViralityScore, 1e-9)

	// Static ages make re-scoring idempotent.
	s.Run()
	again, _ := db.GetCandidate("hot")
	assert.InDelta(t, hot.ViralityScore, again.ViralityScore, 1e-12)
}

func TestScorerIgnoresNonPositiveWeights(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	for _, c := range []database.Candidate{
		{ID: "zero", Source: "Showerthoughts", Title: "a", AgeHoursAtDiscovery: 2, DiscoveredAt: "2026-02-06T10:00:00Z", RawContentRef: "raw/zero.json"},
		{ID: "neg", Source: "LifeProTips", Title: "b", AgeHoursAtDiscovery: 2, DiscoveredAt: "2026-02-06T10:00:00Z", RawContentRef: "raw/neg.json"},
	} {
		_, err := db.InsertCandidateIfAbsent(c)
		require.NoError(t, err)
	}

	r := NewScorer(db, map[string]float64{"Showerthoughts": 0, "LifeProTips": -1}, nil).Run()
	assert.Equal(t, 2, r.Scored)
	for _, id := range []string{"zero", "neg"} {
		c, err := db.GetCandidate(id)
		require.NoError(t, err)
		assert.Greater(t, c.ViralityScore, 0.0, id)
		assert.InDelta(t, Compute(0, 0, 2), c.ViralityScore, 1e-9, id)
	}
}
