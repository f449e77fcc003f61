package moderate

import (
	"errors"
	"fmt"

	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// FlagDeleter is the part of the store Resolve needs.
type FlagDeleter interface {
	GetFlag(candidateID string) (*database.Flag, error)
	DeleteFlag(candidateID string) (bool, error)
}

// Resolve discards a flagged item after human review: the quarantined
// payload goes first, then the record. It reports false when id has no flag
// record. The candidate keeps its flagged status, so sanitization never
// brings the item back.
func Resolve(store FlagDeleter, ws *workspace.Workspace, id string) (bool, error) {
	flag, err := store.GetFlag(id)
	if err != nil {
		return false, err
	}
	if flag == nil {
		return false, nil
	}
	err = ws.Remove(workspace.Quarantine, workspace.JSONName(id))
	if err != nil && !errors.Is(err, workspace.ErrNotFound) {
		return false, fmt.Errorf("removing quarantined payload: %w", err)
	}
	if _, err := store.DeleteFlag(id); err != nil {
		return false, fmt.Errorf("deleting flag record: %w", err)
	}
	return true, nil
}
