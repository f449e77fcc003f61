// Package moderate gates canonical content through a safety classifier and
// quarantines what it flags.
package moderate

import (
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// State is the moderation state of one candidate.
type State string

const (
	// NotReady means no canonical content exists yet.
	NotReady   State = "not_ready"
	Unreviewed State = database.StatusUnreviewed
	Passed     State = database.StatusPassed
	Flagged    State = database.StatusFlagged
)

// StateReader is the part of the store StateOf needs.
type StateReader interface {
	GetFlag(candidateID string) (*database.Flag, error)
	GetModerationStatus(id string) (string, error)
}

// StateOf derives the moderation state of id. Any trace of quarantine (a
// flag record, a quarantined payload or a flagged status) wins over the
// canonical file.
func StateOf(store StateReader, ws *workspace.Workspace, id string) (State, error) {
	name := workspace.JSONName(id)
	if ws.Exists(workspace.Quarantine, name) {
		return Flagged, nil
	}
	flag, err := store.GetFlag(id)
	if err != nil {
		return "", err
	}
	if flag != nil {
		return Flagged, nil
	}
	status, err := store.GetModerationStatus(id)
	if err != nil {
		return "", err
	}
	if status == database.StatusFlagged {
		return Flagged, nil
	}
	if !ws.Exists(workspace.Canonical, name) {
		return NotReady, nil
	}
	if status == database.StatusPassed {
		return Passed, nil
	}
	return Unreviewed, nil
}
