//go:build windows

package proctree

import (
	"os/exec"
	"strconv"
	"syscall"

	"go.uber.org/zap"
)

type windowsTerminator struct {
	logger *zap.Logger
}

// New returns the Terminator for the current platform.
func New(logger *zap.Logger) Terminator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &windowsTerminator{logger: logger}
}

// Terminate runs `taskkill /T /F /PID pid`, which kills the whole tree in one call.
func (t *windowsTerminator) Terminate(pid int) {
	if pid <= 0 {
		return
	}

	cmd := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if out, err := cmd.CombinedOutput(); err != nil {
		t.logger.Debug("taskkill failed",
			zap.Int("pid", pid),
			zap.ByteString("output", out),
			zap.Error(err))
	}
}
