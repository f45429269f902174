// Package git locates the repository a command runs in, which is the
// natural sandbox root when none is configured.
package git

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// FindRoot returns the git repository root for the given directory,
// or an empty string if the directory is not inside a git repository.
func FindRoot(dir string) string {
	cmd := exec.Command("git", "-C", dir, "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return filepath.FromSlash(strings.TrimSpace(string(out)))
}

// SandboxRoot picks the sandbox root for work in dir: configured when set,
// else the enclosing repository root, else dir itself.
func SandboxRoot(configured, dir string) string {
	if configured != "" {
		return configured
	}
	if root := FindRoot(dir); root != "" {
		return root
	}
	return dir
}
