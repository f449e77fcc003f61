package database

// Moderation states stored in candidates.moderation_status.
const (
	StatusUnreviewed = "unreviewed"
	StatusPassed     = "passed"
	StatusFlagged    = "flagged"
)

// Candidate is a discovered post tracked through the pipeline.
type Candidate struct {
	ID                  string
	Source              string
	Title               string
	Author              string
	UpvoteCount         int
	CommentCount        int
	DiscoveredAt        string
	AgeHoursAtDiscovery float64
	ViralityScore       float64
	RawContentRef       string
	ModerationStatus    string
	ModeratedAt         *string
}

// ScriptRecord is the tabular summary of a generated script.
type ScriptRecord struct {
	CandidateID   string
	Tone          string
	Pacing        string
	CTA           string
	CaptionStyle  string
	LengthSeconds float64
	ScriptRef     string
	ScriptJSON    string
	GeneratedAt   string
}

// Flag records a quarantined candidate awaiting human review.
type Flag struct {
	CandidateID           string
	Reasons               []string
	FlaggedAt             string
	QuarantinedContentRef string
}

// RunStep is the persisted outcome of one pipeline step.
type RunStep struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// Run is the audit record of one pipeline run.
type Run struct {
	ID         string
	StartedAt  string
	FinishedAt *string
	Steps      []RunStep
	ErrorCount int
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalCandidates int
	Unreviewed      int
	Passed          int
	Flagged         int
	Scripts         int
	OpenFlags       int
	Runs            int
	LastRunAt       *string
}
