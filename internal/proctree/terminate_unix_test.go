//go:build !windows

package proctree

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// gone reports whether pid no longer runs. Zombies count as gone: they are
// dead and only wait for a reaper.
func gone(pid int) bool {
	out, err := exec.Command("ps", "-o", "stat=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return true
	}
	stat := strings.TrimSpace(string(out))
	return stat == "" || strings.HasPrefix(stat, "Z")
}

// startTree runs a shell that backgrounds two sleepers and waits on them,
// then returns the shell and its children once both are visible.
func startTree(t *testing.T, groupLeader bool) (*exec.Cmd, []int) {
	t.Helper()
	if _, err := exec.LookPath("pgrep"); err != nil {
		t.Skip("pgrep not available")
	}

	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & sleep 30 & wait")
	if groupLeader {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	var children []int
	require.Eventually(t, func() bool {
		children, _ = pgrepChildren(cmd.Process.Pid)
		return len(children) == 2
	}, 5*time.Second, 20*time.Millisecond)
	return cmd, children
}

func waitExit(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("root process survived termination")
	}
}

func TestTerminateGroupLeader(t *testing.T) {
	cmd, children := startTree(t, true)

	New(zaptest.NewLogger(t)).Terminate(cmd.Process.Pid)
	waitExit(t, cmd)

	for _, child := range children {
		assert.Eventually(t, func() bool { return gone(child) }, 5*time.Second, 20*time.Millisecond,
			"descendant %d survived", child)
	}
}

func TestTerminateWalksTreeWhenNotGroupLeader(t *testing.T) {
	cmd, children := startTree(t, false)

	New(zaptest.NewLogger(t)).Terminate(cmd.Process.Pid)
	waitExit(t, cmd)

	for _, child := range children {
		assert.Eventually(t, func() bool { return gone(child) }, 5*time.Second, 20*time.Millisecond,
			"descendant %d survived", child)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	cmd, _ := startTree(t, true)
	term := New(zaptest.NewLogger(t))

	term.Terminate(cmd.Process.Pid)
	waitExit(t, cmd)

	assert.NotPanics(t, func() {
		term.Terminate(cmd.Process.Pid)
		term.Terminate(cmd.Process.Pid)
	})
}

func TestTerminateIgnoresReservedPids(t *testing.T) {
	term := &unixTerminator{
		logger: zaptest.NewLogger(t),
		list: func(pid int) ([]int, error) {
			t.Fatalf("listed children of reserved pid %d", pid)
			return nil, nil
		},
	}

	for _, pid := range []int{-1, 0, 1} {
		term.Terminate(pid)
	}
}

func TestParsePids(t *testing.T) {
	assert.Equal(t, []int{12, 345}, parsePids("12\n345\n"))
	assert.Empty(t, parsePids(""))
	assert.Equal(t, []int{7}, parsePids("junk\n7\n"))
}
