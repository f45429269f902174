//go:build !windows

package proctree

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type unixTerminator struct {
	logger *zap.Logger
	list   childLister
}

// New returns the Terminator for the current platform.
func New(logger *zap.Logger) Terminator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &unixTerminator{logger: logger, list: pgrepChildren}
}

// Terminate sends SIGKILL to the process group led by pid. When pid is not a
// group leader it snapshots the descendants, kills each of them and finally
// the root. Pids of 0, 1 and below are ignored.
func (t *unixTerminator) Terminate(pid int) {
	if pid <= 1 {
		return
	}

	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil {
		t.logger.Debug("killed process group", zap.Int("pid", pid))
		return
	}
	t.logger.Debug("group kill failed, walking process tree", zap.Int("pid", pid), zap.Error(err))

	for _, child := range collectDescendants(pid, t.list) {
		t.kill(child)
	}
	t.kill(pid)
}

func (t *unixTerminator) kill(pid int) {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		t.logger.Debug("kill failed", zap.Int("pid", pid), zap.Error(err))
	}
}

// pgrepChildren lists the direct children of pid with `pgrep -P`.
// pgrep exits 1 when nothing matches.
func pgrepChildren(pid int) ([]int, error) {
	out, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("pgrep -P %d: %w", pid, err)
	}
	return parsePids(string(out)), nil
}

func parsePids(out string) []int {
	var pids []int
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
