package mount

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

var optionPattern = regexp.MustCompile(`^[A-Za-z0-9_.=-]+$`)

// Mount is a host path bound into the sandbox container.
type Mount struct {
	Source   string // Host path (expanded absolute path)
	Target   string // Container path (defaults to same as source)
	ReadOnly bool
	// Options are engine bind options ("ro", "z", "nocopy", ...) passed
	// through as given. When set they replace the ReadOnly suffix.
	Options []string
}

// String renders the mount in engine -v syntax: host:container[:options].
func (m Mount) String() string {
	switch {
	case len(m.Options) > 0:
		return m.Source + ":" + m.Target + ":" + strings.Join(m.Options, ",")
	case m.ReadOnly:
		return m.Source + ":" + m.Target + ":ro"
	default:
		return m.Source + ":" + m.Target
	}
}

// Parse parses an operator bind specification.
//
// Formats:
//   - "~/.npmrc" -> same path inside the container, engine default mode
//   - "~/.cache/pip:ro" -> same path inside the container, with options
//   - "/path:/container/path" -> engine default mode
//   - "/path:/container/path:ro,Z" -> comma-separated engine options
//
// Without options the engine default applies (read-write for binds). Options
// are checked for shape only; the engine owns their meaning.
func Parse(spec string) (*Mount, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("mount specification cannot be empty")
	}

	parts := strings.Split(spec, ":")
	if len(parts) > 3 {
		return nil, fmt.Errorf("invalid mount specification: too many colons")
	}

	source, err := expandPath(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid source path: %w", err)
	}
	m := &Mount{Source: source, Target: filepath.ToSlash(source)}

	options, hasOptions := "", false
	switch len(parts) {
	case 2:
		if strings.HasPrefix(parts[1], "/") {
			m.Target = path.Clean(parts[1])
		} else {
			options, hasOptions = parts[1], true
		}
	case 3:
		if m.Target, err = containerPath(parts[1]); err != nil {
			return nil, fmt.Errorf("invalid target path: %w", err)
		}
		options, hasOptions = parts[2], true
	}

	if hasOptions {
		if m.Options, err = parseOptions(options); err != nil {
			return nil, err
		}
		for _, opt := range m.Options {
			if opt == "ro" {
				m.ReadOnly = true
			}
		}
	}

	return m, nil
}

func parseOptions(s string) ([]string, error) {
	var opts []string
	seen := make(map[string]bool)
	for _, opt := range strings.Split(s, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return nil, fmt.Errorf("invalid options %q: empty option", s)
		}
		if !optionPattern.MatchString(opt) {
			return nil, fmt.Errorf("invalid option %q", opt)
		}
		seen[opt] = true
		opts = append(opts, opt)
	}
	if seen["ro"] && seen["rw"] {
		return nil, fmt.Errorf("invalid options %q: ro and rw conflict", s)
	}
	return opts, nil
}

// expandPath expands ~ to the home directory and returns a cleaned absolute
// host path.
func expandPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to convert to absolute path: %w", err)
	}

	return filepath.Clean(abs), nil
}

// containerPath validates and cleans a path inside the container. Container
// paths are always slash-separated and absolute, whatever the host OS.
func containerPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("container path %q must be absolute", p)
	}
	return path.Clean(p), nil
}
