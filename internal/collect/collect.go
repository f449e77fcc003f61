// Package collect discovers candidate posts and records them once.
package collect

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// maxComments bounds the comments persisted with each raw payload.
const maxComments = 10

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	NewPosts   int
	Duplicates int
	Errors     int
	Enriched   int
	Channels   map[string]int
}

// Enricher pulls readable text for link posts.
type Enricher interface {
	Extract(ctx context.Context, rawURL string) (string, error)
	Reset()
}

// Channel binds one channel name to the source that serves it.
type Channel struct {
	Source Source
	Name   string
}

// Collector is the ingestion stage.
type Collector struct {
	db       *database.DB
	ws       *workspace.Workspace
	logger   *zap.Logger
	channels []Channel
	limit    int
	enricher Enricher
	now      func() time.Time
}

// NewCollector creates a collector. enricher may be nil.
func NewCollector(db *database.DB, ws *workspace.Workspace, channels []Channel, limit int, enricher Enricher, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		db:       db,
		ws:       ws,
		logger:   logger,
		channels: channels,
		limit:    limit,
		enricher: enricher,
		now:      time.Now,
	}
}

// Collect fetches hot and top-of-day listings for every channel and stores
// posts the store has not seen before.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{Channels: make(map[string]int)}
	if c.enricher != nil {
		c.enricher.Reset()
	}

	for _, ch := range c.channels {
		if ctx.Err() != nil {
			break
		}
		log := c.logger.With(zap.String("source", ch.Source.Name()), zap.String("channel", ch.Name))

		seen := make(map[string]bool)
		var batch []Post
		for _, sort := range []Sort{SortHot, SortTopDay} {
			posts, err := ch.Source.Listing(ctx, ch.Name, sort, c.limit)
			if err != nil {
				log.Error("listing failed", zap.String("sort", string(sort)), zap.Error(err))
				r.Errors++
				continue
			}
			for _, p := range posts {
				if p.ID == "" || seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				if p.Channel == "" {
					p.Channel = ch.Name
				}
				batch = append(batch, p)
			}
		}
		r.TotalFound += len(batch)

		for _, p := range batch {
			if ctx.Err() != nil {
				break
			}
			inserted, err := c.ingest(ctx, ch, p, r)
			if err != nil {
				log.Error("ingest failed", zap.String("id", p.ID), zap.Error(err))
				r.Errors++
				continue
			}
			if inserted {
				r.NewPosts++
				r.Channels[ch.Name]++
			} else {
				r.Duplicates++
			}
		}
	}

	c.logger.Info("collection complete",
		zap.Int("found", r.TotalFound),
		zap.Int("new", r.NewPosts),
		zap.Int("duplicates", r.Duplicates),
		zap.Int("errors", r.Errors))
	return r
}

// ingest persists one post. It reports false for an already-known id.
func (c *Collector) ingest(ctx context.Context, ch Channel, p Post, r *Result) (bool, error) {
	exists, err := c.db.HasCandidate(p.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	comments, err := ch.Source.TopComments(ctx, p.ID, maxComments)
	if err != nil {
		return false, err
	}
	if len(comments) > maxComments {
		comments = comments[:maxComments]
	}

	raw := newRawPost(p, comments)
	if c.enricher != nil && raw.SelfText == "" && !p.IsSelf && p.URL != "" {
		text, err := c.enricher.Extract(ctx, p.URL)
		if err != nil {
			c.logger.Debug("link enrichment failed", zap.String("id", p.ID), zap.Error(err))
		} else if text != "" {
			raw.LinkedText = text
			r.Enriched++
		}
	}

	if err := c.ws.WriteJSON(workspace.Raw, p.ID, raw); err != nil {
		return false, err
	}

	now := c.now().UTC()
	age := 0.0
	if !p.CreatedUTC.IsZero() {
		age = now.Sub(p.CreatedUTC).Hours()
		if age < 0 {
			age = 0
		}
	}

	return c.db.InsertCandidateIfAbsent(database.Candidate{
		ID:                  p.ID,
		Source:              p.Channel,
		Title:               p.Title,
		Author:              p.Author,
		UpvoteCount:         p.Score,
		CommentCount:        p.NumComments,
		DiscoveredAt:        database.Timestamp(now),
		AgeHoursAtDiscovery: age,
		ViralityScore:       0,
		RawContentRef:       c.ws.Ref(workspace.Raw, workspace.JSONName(p.ID)),
		ModerationStatus:    database.StatusUnreviewed,
	})
}
