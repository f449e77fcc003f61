// Package workspace stores pipeline payloads on disk, one directory per stage.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a payload does not exist in its area.
var ErrNotFound = errors.New("workspace: not found")

// Area is one stage partition of the workspace.
type Area string

const (
	Raw        Area = "raw"
	Canonical  Area = "canonical"
	Scripts    Area = "scripts"
	Quarantine Area = "quarantine"
	Output     Area = "output"
	Frames     Area = "frames"
)

// Areas lists every partition in pipeline order.
var Areas = []Area{Raw, Canonical, Scripts, Quarantine, Output, Frames}

// Workspace is a stage-partitioned directory tree rooted at one path.
type Workspace struct {
	root string
}

// New creates the workspace tree under root if needed.
func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	for _, a := range Areas {
		if err := os.MkdirAll(filepath.Join(abs, string(a)), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s area: %w", a, err)
		}
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Path returns the absolute path of name inside area.
func (w *Workspace) Path(area Area, name string) string {
	return filepath.Join(w.root, string(area), name)
}

// Ref returns the workspace-relative reference stored in the database.
func (w *Workspace) Ref(area Area, name string) string {
	return filepath.ToSlash(filepath.Join(string(area), name))
}

// JSONName is the file name of an item's JSON payload.
func JSONName(id string) string { return id + ".json" }

// Exists reports whether name is present in area.
func (w *Workspace) Exists(area Area, name string) bool {
	_, err := os.Stat(w.Path(area, name))
	return err == nil
}

// WriteFile atomically replaces name in area with data. Readers see either
// the old content or the new content, never a partial file.
func (w *Workspace) WriteFile(area Area, name string, data []byte) error {
	return w.WriteWith(area, name, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// WriteWith atomically replaces name in area with whatever write puts into
// a temporary file in the same directory.
func (w *Workspace) WriteWith(area Area, name string, write func(f *os.File) error) error {
	dest := w.Path(area, name)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if err := write(tmp); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return fmt.Errorf("renaming into %s: %w", dest, err)
	}
	return nil
}

// WriteJSON atomically writes v as indented JSON to area/<id>.json.
func (w *Workspace) WriteJSON(area Area, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", area, id, err)
	}
	return w.WriteFile(area, JSONName(id), data)
}

// ReadJSON decodes area/<id>.json into v.
func (w *Workspace) ReadJSON(area Area, id string, v any) error {
	data, err := os.ReadFile(w.Path(area, JSONName(id)))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", area, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", area, id, err)
	}
	return nil
}

// Move renames name from one area to another in a single step.
func (w *Workspace) Move(from, to Area, name string) error {
	src := w.Path(from, name)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", from, name, ErrNotFound)
	}
	dest := w.Path(to, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("moving %s/%s to %s: %w", from, name, to, err)
	}
	return nil
}

// Remove deletes name from area. Directories are removed recursively.
func (w *Workspace) Remove(area Area, name string) error {
	p := w.Path(area, name)
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", area, name, ErrNotFound)
	}
	return os.RemoveAll(p)
}

// ListIDs returns the sorted base names (without ext) of files in area
// that end in ext. Temp files are skipped.
func (w *Workspace) ListIDs(area Area, ext string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, string(area)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	sort.Strings(ids)
	return ids, nil
}

// FileInfo describes one file listed from an area.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime int64
}

// ListFiles returns files in area with the given extension, newest first.
func (w *Workspace) ListFiles(area Area, ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, string(area)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime().Unix()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime != out[j].ModTime {
			return out[i].ModTime > out[j].ModTime
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
