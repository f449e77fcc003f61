package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// retained lists the areas retention sweeps. Quarantine waits for a human
// and is never swept.
var retained = []Area{Raw, Canonical, Scripts, Frames, Output}

// CleanupResult summarizes one retention sweep.
type CleanupResult struct {
	FilesDeleted int
	DirsRemoved  int
	Errors       int
}

// Cleanup deletes files last modified before now-maxAge and prunes
// directories left empty. Area roots themselves are kept.
func (w *Workspace) Cleanup(maxAge time.Duration, now time.Time, logger *zap.Logger) CleanupResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	cutoff := now.Add(-maxAge)
	var result CleanupResult

	for _, area := range retained {
		base := filepath.Join(w.root, string(area))
		var dirs []string

		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				logger.Error("walking workspace", zap.String("path", path), zap.Error(err))
				result.Errors++
				return nil
			}
			if d.IsDir() {
				if path != base {
					dirs = append(dirs, path)
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				result.Errors++
				return nil
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err != nil {
					logger.Error("deleting old file", zap.String("path", path), zap.Error(err))
					result.Errors++
					return nil
				}
				logger.Debug("deleted old file", zap.String("path", path))
				result.FilesDeleted++
			}
			return nil
		})
		if err != nil {
			result.Errors++
		}

		// Deepest first so parents empty out before they are checked.
		sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
		for _, dir := range dirs {
			entries, err := os.ReadDir(dir)
			if err != nil || len(entries) > 0 {
				continue
			}
			if err := os.Remove(dir); err != nil {
				logger.Error("removing empty dir", zap.String("path", dir), zap.Error(err))
				result.Errors++
				continue
			}
			result.DirsRemoved++
		}
	}

	logger.Info("cleanup complete",
		zap.Int("files_deleted", result.FilesDeleted),
		zap.Int("dirs_removed", result.DirsRemoved))
	return result
}
