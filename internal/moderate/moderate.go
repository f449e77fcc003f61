package moderate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/sanitize"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// ErrInvalidVerdict is returned when the classifier reply lacks a boolean flag.
var ErrInvalidVerdict = errors.New("moderate: invalid verdict")

const promptTemplate = `You are a safety classifier. Given the following content (post title, OP username, body and top comments) and the short platform rules for TikTok/Instagram/YouTube, answer in strict JSON: {"flag": true|false, "reasons": ["..."]}. Be conservative: if borderline, flag and give reasons.

Platform rules:
- No hate speech or harassment
- No sexually explicit content
- No dangerous activities or self-harm
- No graphic violence
- No illegal goods or services

Content:
%s`

// Dispatcher sends a prompt and parses a structured reply.
type Dispatcher interface {
	DispatchStructured(ctx context.Context, prompt string) (map[string]any, error)
}

// Store is the part of the candidate store moderation writes to.
type Store interface {
	StateReader
	SetModerationStatus(id, status string) error
	UpsertFlag(f database.Flag) error
	ListFlags() ([]database.Flag, error)
}

// Verdict is a parsed classifier reply.
type Verdict struct {
	Flag    bool
	Reasons []string
}

// ParseVerdict validates a classifier reply.
func ParseVerdict(obj map[string]any) (Verdict, error) {
	raw, ok := obj["flag"]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: missing flag", ErrInvalidVerdict)
	}
	flag, ok := raw.(bool)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: flag is %T, not bool", ErrInvalidVerdict, raw)
	}

	v := Verdict{Flag: flag, Reasons: []string{}}
	switch rs := obj["reasons"].(type) {
	case []any:
		for _, r := range rs {
			if s := strings.TrimSpace(fmt.Sprint(r)); s != "" {
				v.Reasons = append(v.Reasons, s)
			}
		}
	case string:
		if s := strings.TrimSpace(rs); s != "" {
			v.Reasons = append(v.Reasons, s)
		}
	}
	if v.Flag && len(v.Reasons) == 0 {
		v.Reasons = append(v.Reasons, "no reason given")
	}
	return v, nil
}

// BuildPrompt renders the safety prompt for canonical content.
func BuildPrompt(c sanitize.Canonical) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nOP: %s\n", c.Title, c.Author)
	if c.Body != "" {
		fmt.Fprintf(&sb, "Body: %s\n", c.Body)
	}
	for _, cm := range c.Comments {
		fmt.Fprintf(&sb, "Comment: %s\n", cm.Body)
	}
	return fmt.Sprintf(promptTemplate, sb.String())
}

// Result holds the results of a moderation run.
type Result struct {
	Reviewed        int
	Passed          int
	Flagged         int
	Errors          int
	Inconsistencies int
}

// Moderator is the moderation stage.
type Moderator struct {
	store          Store
	ws             *workspace.Workspace
	llm            Dispatcher
	logger         *zap.Logger
	recordAttempts int
	recordDelay    time.Duration
	now            func() time.Time
	sleep          func(time.Duration)
}

// NewModerator creates the moderation stage.
func NewModerator(store Store, ws *workspace.Workspace, llm Dispatcher, logger *zap.Logger) *Moderator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Moderator{
		store:          store,
		ws:             ws,
		llm:            llm,
		logger:         logger,
		recordAttempts: 3,
		recordDelay:    200 * time.Millisecond,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// Run reconciles quarantine, then classifies every unreviewed canonical item.
func (m *Moderator) Run(ctx context.Context) *Result {
	r := &Result{}
	r.Inconsistencies += m.Reconcile()

	ids, err := m.ws.ListIDs(workspace.Canonical, ".json")
	if err != nil {
		m.logger.Error("listing canonical content", zap.Error(err))
		r.Errors++
		return r
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		state, err := StateOf(m.store, m.ws, id)
		if err != nil {
			m.logger.Error("reading moderation state", zap.String("id", id), zap.Error(err))
			r.Errors++
			continue
		}
		if state != Unreviewed {
			continue
		}

		r.Reviewed++
		m.moderate(ctx, id, r)
	}

	m.logger.Info("moderation complete",
		zap.Int("reviewed", r.Reviewed),
		zap.Int("passed", r.Passed),
		zap.Int("flagged", r.Flagged),
		zap.Int("errors", r.Errors),
		zap.Int("inconsistencies", r.Inconsistencies))
	return r
}

func (m *Moderator) moderate(ctx context.Context, id string, r *Result) {
	log := m.logger.With(zap.String("id", id))

	var content sanitize.Canonical
	if err := m.ws.ReadJSON(workspace.Canonical, id, &content); err != nil {
		log.Error("reading canonical content", zap.Error(err))
		r.Errors++
		return
	}

	obj, err := m.llm.DispatchStructured(ctx, BuildPrompt(content))
	if err != nil {
		log.Error("classification failed, leaving unreviewed", zap.Error(err))
		r.Errors++
		return
	}
	verdict, err := ParseVerdict(obj)
	if err != nil {
		log.Error("classification rejected, leaving unreviewed", zap.Error(err))
		r.Errors++
		return
	}

	if !verdict.Flag {
		if err := m.store.SetModerationStatus(id, database.StatusPassed); err != nil {
			log.Error("recording pass, leaving unreviewed", zap.Error(err))
			r.Errors++
			return
		}
		log.Info("passed")
		r.Passed++
		return
	}

	if err := m.quarantine(id, verdict.Reasons); err != nil {
		if errors.Is(err, errRecordWrite) {
			log.Error("quarantined payload has no record",
				zap.Bool("inconsistency", true), zap.Strings("reasons", verdict.Reasons), zap.Error(err))
			r.Inconsistencies++
			r.Flagged++
			return
		}
		log.Error("quarantine move failed, leaving unreviewed", zap.Error(err))
		r.Errors++
		return
	}
	log.Info("flagged", zap.Strings("reasons", verdict.Reasons))
	r.Flagged++
}

var errRecordWrite = errors.New("flag record write failed")

// quarantine moves the canonical payload out of the active area, then
// records the flag. The move is the durable step.
func (m *Moderator) quarantine(id string, reasons []string) error {
	name := workspace.JSONName(id)
	if err := m.ws.Move(workspace.Canonical, workspace.Quarantine, name); err != nil {
		return err
	}

	flag := database.Flag{
		CandidateID:           id,
		Reasons:               reasons,
		FlaggedAt:             database.Timestamp(m.now()),
		QuarantinedContentRef: m.ws.Ref(workspace.Quarantine, name),
	}
	var lastErr error
	for attempt := 0; attempt < m.recordAttempts; attempt++ {
		if attempt > 0 {
			m.sleep(m.recordDelay)
		}
		if lastErr = m.store.UpsertFlag(flag); lastErr == nil {
			break
		}
		m.logger.Warn("flag record write failed", zap.String("id", id), zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}

	if err := m.store.SetModerationStatus(id, database.StatusFlagged); err != nil {
		m.logger.Warn("recording flagged status", zap.String("id", id), zap.Error(err))
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %w", errRecordWrite, m.recordAttempts, lastErr)
	}
	return nil
}

// Reconcile logs quarantined payloads without a flag record and flag
// records without a payload. It returns how many it found.
func (m *Moderator) Reconcile() int {
	found := 0
	ids, err := m.ws.ListIDs(workspace.Quarantine, ".json")
	if err != nil {
		m.logger.Error("listing quarantine", zap.Error(err))
		return 0
	}
	flags, err := m.store.ListFlags()
	if err != nil {
		m.logger.Error("listing flag records", zap.Error(err))
		return 0
	}

	recorded := make(map[string]bool, len(flags))
	for _, f := range flags {
		recorded[f.CandidateID] = true
	}
	for _, id := range ids {
		if !recorded[id] {
			m.logger.Error("quarantined payload has no flag record",
				zap.String("id", id), zap.Bool("inconsistency", true))
			found++
		}
	}

	quarantined := make(map[string]bool, len(ids))
	for _, id := range ids {
		quarantined[id] = true
	}
	for _, f := range flags {
		if !quarantined[f.CandidateID] {
			m.logger.Error("flag record has no quarantined payload",
				zap.String("id", f.CandidateID), zap.Bool("inconsistency", true))
			found++
		}
	}
	return found
}
