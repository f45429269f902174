// Package changeset reports which files under a workspace a run created,
// modified or deleted, by comparing metadata snapshots taken before and
// after the run.
package changeset

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Change kinds.
const (
	Created  = "created"
	Modified = "modified"
	Deleted  = "deleted"
)

// summarizeThreshold is the child count above which a directory is recorded
// but not descended into.
const summarizeThreshold = 500

// summarized directories are recorded with their child count only.
var summarized = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
	"__pycache__":  true,
}

// Entry records a single path's metadata at snapshot time.
type Entry struct {
	Size    int64       `json:"size"`
	ModTime time.Time   `json:"mod_time"`
	Mode    fs.FileMode `json:"mode"`
	IsDir   bool        `json:"is_dir"`
	// Children is set for directories that were summarized.
	Children int `json:"children,omitempty"`
}

// Snapshot maps slash-separated paths relative to the workspace to entries.
type Snapshot map[string]Entry

// Take walks root and records every entry below it. Directories named in
// summarized, or holding more than summarizeThreshold children, are recorded
// without their contents. Entries that vanish during the walk are skipped.
func Take(root string) (Snapshot, error) {
	snap := make(Snapshot)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		entry := Entry{
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
			IsDir:   d.IsDir(),
		}
		if !d.IsDir() {
			snap[rel] = entry
			return nil
		}

		children, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		if summarized[d.Name()] || len(children) > summarizeThreshold {
			entry.Children = len(children)
			snap[rel] = entry
			return filepath.SkipDir
		}
		snap[rel] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Change is one path that differs between two snapshots.
type Change struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	IsDir   bool   `json:"is_dir,omitempty"`
	OldSize int64  `json:"old_size,omitempty"`
	NewSize int64  `json:"new_size,omitempty"`
}

// Diff compares two snapshots. Paths only in after are created, paths only
// in before are deleted, and files whose size or mtime moved are modified.
// A directory only counts as modified when it was summarized and its child
// count changed; otherwise its own changes already show up as entries.
// Changes are sorted by path.
func Diff(before, after Snapshot) []Change {
	var changes []Change

	for path, a := range after {
		b, ok := before[path]
		if !ok {
			changes = append(changes, Change{Path: path, Kind: Created, IsDir: a.IsDir, NewSize: a.Size})
			continue
		}
		if modified(b, a) {
			changes = append(changes, Change{Path: path, Kind: Modified, IsDir: a.IsDir, OldSize: b.Size, NewSize: a.Size})
		}
	}
	for path, b := range before {
		if _, ok := after[path]; !ok {
			changes = append(changes, Change{Path: path, Kind: Deleted, IsDir: b.IsDir, OldSize: b.Size})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes
}

func modified(b, a Entry) bool {
	if b.IsDir != a.IsDir {
		return true
	}
	if a.IsDir {
		return b.Children != a.Children
	}
	return b.Size != a.Size || !b.ModTime.Equal(a.ModTime)
}

// Count tallies changes by kind.
func Count(changes []Change) (created, modifiedCount, deleted int) {
	for _, c := range changes {
		switch c.Kind {
		case Created:
			created++
		case Modified:
			modifiedCount++
		case Deleted:
			deleted++
		}
	}
	return
}
