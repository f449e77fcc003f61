// Package score ranks candidates by engagement and freshness.
package score

import (
	"math"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/database"
)

const (
	upvoteWeight   = 0.65
	commentWeight  = 0.25
	velocityWeight = 0.4
	titleBoost     = 0.4
	decayHours     = 48.0
)

// Compute returns the virality score of a post with the given engagement
// at the given age. The result is never negative.
func Compute(upvotes, comments int, ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	s := math.Log1p(math.Max(0, float64(upvotes)))
	c := math.Log1p(math.Max(0, float64(comments)))
	v := math.Max(0, float64(comments)) / (ageHours + 1)
	decay := math.Exp(-ageHours / decayHours)
	return (upvoteWeight*s + commentWeight*c + velocityWeight*v + titleBoost) * decay
}

// Result holds the results of a scoring run.
type Result struct {
	Scored int
	Errors int
	Top    *database.Candidate
}

// Scorer re-scores every stored candidate.
type Scorer struct {
	db      *database.DB
	weights map[string]float64
	logger  *zap.Logger
}

// NewScorer creates a scorer. weights multiplies the score of candidates
// from the named channels; channels not listed, or given a weight that is
// not positive, weigh 1.
func NewScorer(db *database.DB, weights map[string]float64, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{db: db, weights: weights, logger: logger}
}

// Run scores all candidates from their age at discovery. Ages are not
// recomputed against the clock, so re-running is stable.
func (s *Scorer) Run() *Result {
	r := &Result{}
	candidates, err := s.db.ListCandidates()
	if err != nil {
		s.logger.Error("listing candidates", zap.Error(err))
		r.Errors++
		return r
	}

	var best float64 = -1
	for i := range candidates {
		c := &candidates[i]
		sc := Compute(c.UpvoteCount, c.CommentCount, c.AgeHoursAtDiscovery)
		if w, ok := s.weights[c.Source]; ok && w > 0 {
			sc *= w
		}
		if err := s.db.UpdateScore(c.ID, sc); err != nil {
			s.logger.Error("updating score", zap.String("id", c.ID), zap.Error(err))
			r.Errors++
			continue
		}
		c.ViralityScore = sc
		r.Scored++
		if sc > best {
			best = sc
			r.Top = c
		}
	}

	s.logger.Info("scoring complete", zap.Int("scored", r.Scored), zap.Int("errors", r.Errors))
	return r
}
