package changeset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestTakeBasicFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "file1.txt"), "hello")
	writeFile(t, filepath.Join(dir, "subdir", "nested.txt"), "nested")

	snap, err := Take(dir)
	require.NoError(t, err)
	assert.Len(t, snap, 3)
	assert.Equal(t, int64(5), snap["file1.txt"].Size)
	assert.True(t, snap["subdir"].IsDir)
	assert.Equal(t, int64(6), snap["subdir/nested.txt"].Size)
}

func TestTakeSummarizesKnownDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/main")
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, "node_modules", fmt.Sprintf("pkg%d", i)), "x")
	}

	snap, err := Take(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, snap[".git"].Children)
	assert.NotContains(t, snap, ".git/HEAD")
	assert.Equal(t, 5, snap["node_modules"].Children)
	assert.NotContains(t, snap, "node_modules/pkg0")
}

func TestTakeEmptyDir(t *testing.T) {
	snap, err := Take(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestTakeMissingRoot(t *testing.T) {
	_, err := Take(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	now := time.Now()
	before := Snapshot{
		"kept.txt":     {Size: 10, ModTime: now},
		"edited.txt":   {Size: 10, ModTime: now},
		"touched.txt":  {Size: 10, ModTime: now},
		"gone.txt":     {Size: 7, ModTime: now},
		"src":          {IsDir: true, ModTime: now},
		"node_modules": {IsDir: true, ModTime: now, Children: 3},
	}
	after := Snapshot{
		"kept.txt":     {Size: 10, ModTime: now},
		"edited.txt":   {Size: 20, ModTime: now.Add(time.Second)},
		"touched.txt":  {Size: 10, ModTime: now.Add(time.Second)},
		"new.txt":      {Size: 4, ModTime: now},
		"src":          {IsDir: true, ModTime: now.Add(time.Second)},
		"node_modules": {IsDir: true, ModTime: now, Children: 4},
	}

	changes := Diff(before, after)
	assert.Equal(t, []Change{
		{Path: "edited.txt", Kind: Modified, OldSize: 10, NewSize: 20},
		{Path: "gone.txt", Kind: Deleted, OldSize: 7},
		{Path: "new.txt", Kind: Created, NewSize: 4},
		{Path: "node_modules", Kind: Modified, IsDir: true},
		{Path: "touched.txt", Kind: Modified, OldSize: 10, NewSize: 10},
	}, changes)

	created, modified, deleted := Count(changes)
	assert.Equal(t, 1, created)
	assert.Equal(t, 3, modified)
	assert.Equal(t, 1, deleted)
}

func TestDiffIdentical(t *testing.T) {
	snap := Snapshot{"a.txt": {Size: 1, ModTime: time.Now()}}
	assert.Empty(t, Diff(snap, snap))
}

func TestTakeAndDiffRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), "same")
	writeFile(t, filepath.Join(dir, "drop.txt"), "bye")

	before, err := Take(dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "drop.txt")))
	writeFile(t, filepath.Join(dir, "out", "result.json"), "{}")

	after, err := Take(dir)
	require.NoError(t, err)

	changes := Diff(before, after)
	require.Len(t, changes, 3)
	assert.Equal(t, Change{Path: "drop.txt", Kind: Deleted, OldSize: 3}, changes[0])
	assert.Equal(t, Change{Path: "out", Kind: Created, IsDir: true, NewSize: after["out"].Size}, changes[1])
	assert.Equal(t, Change{Path: "out/result.json", Kind: Created, NewSize: 2}, changes[2])
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, "/ws", nil)
	assert.Contains(t, buf.String(), "No changes in /ws.")

	buf.Reset()
	PrintSummary(&buf, "/ws", []Change{
		{Path: "a.txt", Kind: Created, NewSize: 2048},
		{Path: "b.txt", Kind: Modified, OldSize: 1, NewSize: 2},
		{Path: "c", Kind: Deleted, IsDir: true},
	})
	out := buf.String()
	assert.Contains(t, out, "Workspace changes (/ws)")
	assert.Contains(t, out, "+ a.txt")
	assert.Contains(t, out, "(2.0 KB)")
	assert.Contains(t, out, "~ b.txt")
	assert.Contains(t, out, "(1 B → 2 B)")
	assert.Contains(t, out, "- c/")
	assert.NotContains(t, out, "changes total")
}

func TestPrintSummaryTruncates(t *testing.T) {
	var changes []Change
	for i := 0; i < maxDisplayChanges+5; i++ {
		changes = append(changes, Change{Path: fmt.Sprintf("f%02d", i), Kind: Created})
	}

	var buf bytes.Buffer
	PrintSummary(&buf, "/ws", changes)
	out := buf.String()
	assert.Contains(t, out, "f19")
	assert.NotContains(t, out, "f20")
	assert.Contains(t, out, "(25 changes total: 25 created, 0 modified, 0 deleted)")
}
