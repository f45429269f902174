// Package sandbox confines file paths requested by tools to a sandbox root
// and an optional set of extra host paths that are bind-mounted alongside it.
//
// Resolution is purely lexical. The sandboxed process may not share the
// host's filesystem view, so symlinks are not followed here; callers that
// operate on the host filesystem directly can use ResolveNoSymlinks.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mitchellh/go-homedir"
)

// ErrSandboxEscape is returned (wrapped in *EscapeError) when no boundary
// admits the requested path.
var ErrSandboxEscape = errors.New("path escapes sandbox")

// EscapeError describes a rejected path.
type EscapeError struct {
	Path     string // path as requested
	Resolved string // normalized absolute form that was tested
	Root     string
	Reason   string // optional, e.g. "symlink component"
}

func (e *EscapeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (%s, root %s)", ErrSandboxEscape, e.Path, e.Reason, e.Root)
	}
	return fmt.Sprintf("%s: %s resolves to %s outside root %s", ErrSandboxEscape, e.Path, e.Resolved, e.Root)
}

func (e *EscapeError) Unwrap() error { return ErrSandboxEscape }

// Resolution is the result of a successful Resolve. It is recomputed on
// every call and never cached.
type Resolution struct {
	Resolved string `json:"resolved"` // absolute, cleaned path
	Relative string `json:"relative"` // path relative to Boundary; "" when equal to it
	Boundary string `json:"boundary"` // the root or allowed path that admitted Resolved
}

// Resolve normalizes filePath against cwd and checks that it is equal to or
// nested under root, or failing that under one of allowedPaths (first match
// wins). Relative filePath and cwd values are taken relative to the process
// working directory only as a last resort; callers should pass absolute
// directories.
func Resolve(filePath, cwd, root string, allowedPaths ...string) (Resolution, error) {
	base, err := absolute(cwd, "")
	if err != nil {
		return Resolution{}, err
	}
	boundary, err := absolute(root, base)
	if err != nil {
		return Resolution{}, err
	}
	resolved, err := absolute(filePath, base)
	if err != nil {
		return Resolution{}, err
	}

	if rel, ok := Contains(boundary, resolved); ok {
		return Resolution{Resolved: resolved, Relative: rel, Boundary: boundary}, nil
	}

	for _, allowed := range allowedPaths {
		if strings.TrimSpace(allowed) == "" {
			continue
		}
		extra, err := absolute(allowed, base)
		if err != nil {
			continue
		}
		if rel, ok := Contains(extra, resolved); ok {
			return Resolution{Resolved: resolved, Relative: rel, Boundary: extra}, nil
		}
	}

	return Resolution{}, &EscapeError{Path: filePath, Resolved: resolved, Root: boundary}
}

// ResolveNoSymlinks is Resolve followed by an Lstat walk from the admitting
// boundary down to the resolved path. Any existing symlink component is
// rejected; components that do not exist yet are allowed so new files can be
// created.
func ResolveNoSymlinks(filePath, cwd, root string, allowedPaths ...string) (Resolution, error) {
	res, err := Resolve(filePath, cwd, root, allowedPaths...)
	if err != nil {
		return Resolution{}, err
	}
	if res.Relative == "" {
		return res, nil
	}

	current := res.Boundary
	for _, part := range strings.Split(res.Relative, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return res, nil
			}
			return Resolution{}, fmt.Errorf("stat %s: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return Resolution{}, &EscapeError{
				Path:     filePath,
				Resolved: res.Resolved,
				Root:     res.Boundary,
				Reason:   "symlink component " + current,
			}
		}
	}
	return res, nil
}

// Contains reports whether target is equal to or nested under base and
// returns target relative to base ("" when equal). Both paths must already
// be absolute and cleaned; the check is separator-aware, so "/a/bc" is not
// under "/a/b".
func Contains(base, target string) (string, bool) {
	if target == base {
		return "", true
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || filepath.IsAbs(rel) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// absolute expands ~, normalizes exotic whitespace and returns a cleaned
// absolute path. Relative inputs are joined onto base; an empty input yields
// base itself.
func absolute(p, base string) (string, error) {
	p = normalizeSpaces(p)
	if p == "" {
		if base == "" {
			return os.Getwd()
		}
		return base, nil
	}

	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	if base == "" {
		return filepath.Abs(expanded)
	}
	return filepath.Join(base, expanded), nil
}

// normalizeSpaces maps non-ASCII whitespace (NBSP, narrow spaces, ...) to a
// plain space. Models sometimes emit them inside paths.
func normalizeSpaces(p string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII && unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, p)
}
