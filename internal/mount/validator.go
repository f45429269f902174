package mount

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/faize-ai/hostguard/internal/sandbox"
	"github.com/mitchellh/go-homedir"
)

// ErrBlocked is wrapped by every Validate rejection.
var ErrBlocked = errors.New("mount blocked")

// Validator rejects bind sources that would expose protected host paths
// (credential stores and the like) inside a sandbox container.
type Validator struct {
	blocked []string // absolute, symlinks resolved where they exist
}

// NewValidator normalizes blockedPaths once; blank entries are skipped.
func NewValidator(blockedPaths []string) (*Validator, error) {
	v := &Validator{}
	for _, p := range blockedPaths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		_, resolved, err := hostPath(p)
		if err != nil {
			return nil, fmt.Errorf("blocked path %q: %w", p, err)
		}
		v.blocked = append(v.blocked, resolved)
	}
	return v, nil
}

// Validate rejects m when its source is a blocked path, lies under one, or
// contains one. Only the source is checked: the container side cannot
// reach host files.
func (v *Validator) Validate(m *Mount) error {
	if m == nil {
		return fmt.Errorf("mount cannot be nil")
	}

	lexical, resolved, err := hostPath(m.Source)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBlocked, m.Source, err)
	}

	for _, blocked := range v.blocked {
		if _, under := sandbox.Contains(blocked, resolved); under {
			if resolved != lexical {
				return fmt.Errorf("%w: %s resolves to protected path %s", ErrBlocked, m.Source, blocked)
			}
			return fmt.Errorf("%w: %s is a protected path", ErrBlocked, blocked)
		}
		if _, exposes := sandbox.Contains(resolved, blocked); exposes {
			return fmt.Errorf("%w: %s contains protected path %s", ErrBlocked, m.Source, blocked)
		}
	}
	return nil
}

// hostPath returns p expanded and made absolute, and the same path with
// symlinks resolved (e.g. /etc -> /private/etc on macOS). Paths that do not
// exist yet resolve to themselves.
func hostPath(p string) (lexical, resolved string, err error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", "", err
	}
	lexical, err = filepath.Abs(expanded)
	if err != nil {
		return "", "", err
	}
	if resolved, err = filepath.EvalSymlinks(lexical); err != nil {
		return lexical, lexical, nil
	}
	return lexical, resolved, nil
}
