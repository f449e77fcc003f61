package sanitize

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/collect"
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// Canonical is the sanitized projection of a raw post.
type Canonical struct {
	ID       string            `json:"id"`
	Channel  string            `json:"channel"`
	Title    string            `json:"title"`
	Author   string            `json:"author"`
	Body     string            `json:"body"`
	Comments []collect.Comment `json:"comments"`
}

// FromRaw projects a raw payload onto canonical content. Body falls back to
// the linked article text when the post has no text of its own.
func FromRaw(raw collect.RawPost) Canonical {
	body := Text(raw.SelfText)
	if body == "" {
		body = Text(raw.LinkedText)
	}
	c := Canonical{
		ID:       raw.ID,
		Channel:  raw.Channel,
		Title:    Text(raw.Title),
		Author:   raw.Author,
		Body:     body,
		Comments: make([]collect.Comment, 0, len(raw.Comments)),
	}
	for _, cm := range raw.Comments {
		c.Comments = append(c.Comments, collect.Comment{
			Author: cm.Author,
			Body:   Text(cm.Body),
			Score:  cm.Score,
		})
	}
	return c
}

// Options control a sanitization run.
type Options struct {
	// Force regenerates canonical files that already exist.
	Force bool
}

// Result holds the results of a sanitization run.
type Result struct {
	Processed   int
	Skipped     int
	Quarantined int
	Errors      int
}

// Stage turns raw payloads into canonical content.
type Stage struct {
	db     *database.DB
	ws     *workspace.Workspace
	logger *zap.Logger
}

// NewStage creates the sanitization stage.
func NewStage(db *database.DB, ws *workspace.Workspace, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{db: db, ws: ws, logger: logger}
}

// Run canonicalizes every raw payload that lacks a canonical file.
// Quarantined items are never written back.
func (s *Stage) Run(ctx context.Context, opts Options) *Result {
	r := &Result{}
	ids, err := s.ws.ListIDs(workspace.Raw, ".json")
	if err != nil {
		s.logger.Error("listing raw payloads", zap.Error(err))
		r.Errors++
		return r
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		name := workspace.JSONName(id)

		quarantined, err := s.isQuarantined(id)
		if err != nil {
			s.logger.Error("checking quarantine", zap.String("id", id), zap.Error(err))
			r.Errors++
			continue
		}
		if quarantined {
			r.Quarantined++
			continue
		}
		if !opts.Force && s.ws.Exists(workspace.Canonical, name) {
			r.Skipped++
			continue
		}

		var raw collect.RawPost
		if err := s.ws.ReadJSON(workspace.Raw, id, &raw); err != nil {
			if errors.Is(err, workspace.ErrNotFound) {
				s.logger.Debug("raw payload vanished", zap.String("id", id))
				continue
			}
			s.logger.Error("reading raw payload", zap.String("id", id), zap.Error(err))
			r.Errors++
			continue
		}

		if err := s.ws.WriteJSON(workspace.Canonical, id, FromRaw(raw)); err != nil {
			s.logger.Error("writing canonical", zap.String("id", id), zap.Error(err))
			r.Errors++
			continue
		}
		r.Processed++
	}

	s.logger.Info("sanitization complete",
		zap.Int("processed", r.Processed),
		zap.Int("skipped", r.Skipped),
		zap.Int("quarantined", r.Quarantined),
		zap.Int("errors", r.Errors))
	return r
}

// isQuarantined covers a payload still in quarantine and one whose flag was
// already resolved, which leaves only the candidate's flagged status.
func (s *Stage) isQuarantined(id string) (bool, error) {
	if s.ws.Exists(workspace.Quarantine, workspace.JSONName(id)) {
		return true, nil
	}
	status, err := s.db.GetModerationStatus(id)
	if err != nil {
		return false, err
	}
	return status == database.StatusFlagged, nil
}
