package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faize-ai/hostguard/internal/container"
	"go.uber.org/zap"
)

// containerRemoveTimeout bounds the best-effort `<engine> rm -f`.
const containerRemoveTimeout = 15 * time.Second

// Run is one supervised execution. All methods are safe for concurrent use.
type Run struct {
	id     string
	req    SpawnRequest
	sup    *Supervisor
	logger *zap.Logger

	stdout *outputBuffer
	stderr *outputBuffer

	// lastOutput is the unix-nano time of the most recent output byte.
	lastOutput atomic.Int64

	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	pid           int
	containerName string
	started       bool
	startedAt     time.Time
	reason        ExitReason // latched by the first trigger
	overall       *time.Timer
	idle          *time.Timer
	prepCancel    context.CancelFunc // aborts image preparation before start

	done chan struct{}
	desc ExitDescriptor
}

func newRun(s *Supervisor, id string, req SpawnRequest) *Run {
	r := &Run{
		id:     id,
		req:    req,
		sup:    s,
		logger: s.logger.With(zap.String("run_id", id)),
		done:   make(chan struct{}),
	}
	if req.ScopeKey != "" {
		r.logger = r.logger.With(zap.String("scope", req.ScopeKey))
	}
	r.stdout = newOutputBuffer(s.cfg.MaxOutputBytes, r.touch)
	r.stderr = newOutputBuffer(s.cfg.MaxOutputBytes, r.touch)
	return r
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// ScopeKey returns the scope the run was spawned under, or "".
func (r *Run) ScopeKey() string { return r.req.ScopeKey }

// Request returns the request the run was spawned from.
func (r *Run) Request() SpawnRequest { return r.req }

// Pid returns the root process id, or 0 before start and after spawn errors.
func (r *Run) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

// ContainerName returns the container name in container mode.
func (r *Run) ContainerName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.containerName
}

// StartedAt returns when the process started.
func (r *Run) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Done is closed once the descriptor is available.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends and returns its descriptor. Every call
// returns the same descriptor.
func (r *Run) Wait() ExitDescriptor {
	<-r.done
	return r.desc
}

// Cancel terminates the run with ReasonManualCancel. Cancelling a finished
// run, or cancelling twice, does nothing.
func (r *Run) Cancel() {
	r.trigger(ReasonManualCancel)
}

// Snapshot returns the output captured so far.
func (r *Run) Snapshot() (stdout, stderr string) {
	return r.stdout.String(), r.stderr.String()
}

// Write sends p to the child's stdin. Only StdinOpen runs accept input.
func (r *Run) Write(p []byte) (int, error) {
	r.mu.Lock()
	stdin := r.stdin
	r.mu.Unlock()

	if stdin == nil {
		return 0, ErrStdinClosed
	}
	return stdin.Write(p)
}

// CloseStdin closes the child's stdin, signalling end of input.
func (r *Run) CloseStdin() error {
	r.mu.Lock()
	stdin := r.stdin
	r.stdin = nil
	r.mu.Unlock()

	if stdin == nil {
		return nil
	}
	return stdin.Close()
}

func (r *Run) touch() {
	r.lastOutput.Store(time.Now().UnixNano())
}

// start launches the process. A run cancelled while it waited for its scope
// finishes without ever starting.
func (r *Run) start() {
	if err := r.prepare(); err != nil {
		r.mu.Lock()
		cancelled := r.reason != ""
		r.mu.Unlock()
		if cancelled {
			r.finish(nil, nil)
			return
		}
		r.fail(err)
		return
	}

	r.mu.Lock()
	if r.reason != "" {
		r.mu.Unlock()
		r.finish(nil, nil)
		return
	}

	argv, env, err := r.commandLine()
	if err != nil {
		r.mu.Unlock()
		r.fail(err)
		return
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = r.req.Cwd
	cmd.Env = env
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.WaitDelay = r.sup.cfg.WaitDelay
	setProcessGroup(cmd)

	var stdin io.WriteCloser
	if r.req.Stdin == StdinOpen {
		if stdin, err = cmd.StdinPipe(); err != nil {
			r.mu.Unlock()
			r.fail(fmt.Errorf("stdin pipe: %w", err))
			return
		}
	}

	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		r.fail(err)
		return
	}

	r.cmd = cmd
	r.stdin = stdin
	r.pid = cmd.Process.Pid
	r.started = true
	r.startedAt = time.Now()
	r.lastOutput.Store(r.startedAt.UnixNano())

	timeout := r.req.Timeout
	if timeout <= 0 {
		timeout = r.sup.cfg.DefaultTimeout
	}
	r.overall = time.AfterFunc(timeout, func() { r.trigger(ReasonTimeout) })
	if window := r.req.NoOutputTimeout; window > 0 {
		r.idle = time.AfterFunc(window, r.checkIdle)
	}
	r.mu.Unlock()

	r.logger.Info("process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("mode", string(r.req.Mode)),
		zap.String("command", argv[0]))

	go r.wait()
}

// prepare makes sure the container image exists before the first launch
// that needs it. Confirmed images are remembered per engine.
func (r *Run) prepare() error {
	if r.req.Mode != ModeContainer {
		return nil
	}
	image := r.req.Container.Docker.Image
	if image == "" {
		return nil
	}
	key := r.sup.cfg.Engine + "\x00" + image
	if _, ok := r.sup.images.Load(key); ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.mu.Lock()
	if r.reason != "" {
		r.mu.Unlock()
		return nil
	}
	r.prepCancel = cancel
	r.mu.Unlock()

	if err := container.EnsureImage(ctx, r.sup.cfg.Engine, image); err != nil {
		return fmt.Errorf("ensure image: %w", err)
	}
	r.sup.images.Store(key, struct{}{})
	return nil
}

// checkIdle fires when the no-output window may have elapsed. Output resets
// the window by moving lastOutput forward; the timer is re-armed for the
// remainder instead of being reset on every byte.
func (r *Run) checkIdle() {
	window := r.req.NoOutputTimeout
	quiet := time.Since(time.Unix(0, r.lastOutput.Load()))
	if quiet >= window {
		r.trigger(ReasonNoOutputTimeout)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reason == "" && r.idle != nil {
		r.idle.Reset(window - quiet)
	}
}

// trigger latches reason if nothing ended the run yet and kills the process
// tree. Only the first trigger has any effect.
func (r *Run) trigger(reason ExitReason) bool {
	r.mu.Lock()
	if r.reason != "" {
		r.mu.Unlock()
		return false
	}
	r.reason = reason
	r.stopTimersLocked()
	pid, started, prepCancel := r.pid, r.started, r.prepCancel
	r.mu.Unlock()

	if !started {
		if prepCancel != nil {
			prepCancel()
		}
		return true
	}

	r.logger.Info("terminating process tree", zap.Int("pid", pid), zap.String("reason", string(reason)))
	r.sup.term.Terminate(pid)
	return true
}

func (r *Run) stopTimersLocked() {
	if r.overall != nil {
		r.overall.Stop()
	}
	if r.idle != nil {
		r.idle.Stop()
	}
}

func (r *Run) wait() {
	err := r.cmd.Wait()

	r.mu.Lock()
	if r.reason == "" {
		r.reason = naturalReason(r.cmd.ProcessState)
	}
	r.stopTimersLocked()
	reason := r.reason
	name := r.containerName
	stdin := r.stdin
	r.stdin = nil
	r.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}

	// Killing the engine client leaves the container running.
	if name != "" && reason != ReasonExit && reason != ReasonSignal {
		r.removeContainer(name)
	}

	r.finish(r.cmd.ProcessState, err)
}

// fail ends a run that could not start.
func (r *Run) fail(err error) {
	r.mu.Lock()
	if r.reason == "" {
		r.reason = ReasonSpawnError
	}
	r.stopTimersLocked()
	r.mu.Unlock()

	r.logger.Warn("spawn failed", zap.Error(err))
	r.finish(nil, err)
}

// finish builds the descriptor, releases the scope and wakes waiters.
func (r *Run) finish(state *os.ProcessState, waitErr error) {
	r.mu.Lock()
	d := ExitDescriptor{
		RunID:            r.id,
		SessionID:        r.req.SessionID,
		BackendID:        r.req.BackendID,
		ScopeKey:         r.req.ScopeKey,
		Mode:             r.req.Mode,
		Pid:              r.pid,
		ContainerName:    r.containerName,
		Reason:           r.reason,
		TimedOut:         r.reason == ReasonTimeout || r.reason == ReasonNoOutputTimeout,
		NoOutputTimedOut: r.reason == ReasonNoOutputTimeout,
		StartedAt:        r.startedAt,
		EndedAt:          time.Now(),
	}
	r.mu.Unlock()

	if state != nil {
		if state.Exited() {
			code := state.ExitCode()
			d.ExitCode = &code
		} else {
			d.ExitSignal = exitSignal(state)
		}
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		d.Error = waitErr.Error()
	}

	d.Stdout, d.Stderr = r.stdout.String(), r.stderr.String()
	d.StdoutTruncated, d.StderrTruncated = r.stdout.Truncated(), r.stderr.Truncated()
	d.StdoutBytes, d.StderrBytes = r.stdout.TotalWritten(), r.stderr.TotalWritten()

	r.desc = d
	r.sup.release(r)
	close(r.done)

	fields := []zap.Field{zap.String("reason", string(d.Reason)), zap.Duration("duration", d.Duration())}
	if d.ExitCode != nil {
		fields = append(fields, zap.Int("exit_code", *d.ExitCode))
	}
	if d.ExitSignal != "" {
		fields = append(fields, zap.String("signal", d.ExitSignal))
	}
	r.logger.Info("run finished", fields...)
}

// naturalReason classifies an exit nobody triggered.
func naturalReason(state *os.ProcessState) ExitReason {
	if state != nil && !state.Exited() {
		return ReasonSignal
	}
	return ReasonExit
}

// commandLine returns the argv and environment to exec. Called with r.mu held.
func (r *Run) commandLine() ([]string, []string, error) {
	if r.req.Mode != ModeContainer {
		return r.req.Argv, mergeEnv(os.Environ(), r.req.Env), nil
	}

	creq := r.req.Container
	opts := creq.Options
	if r.req.ScopeKey == "" && opts.Name == "" {
		opts.Name = container.ContainerName(creq.Docker.ContainerPrefix, "run-"+r.id)
	}
	name := opts.Name
	if name == "" {
		name = container.ContainerName(creq.Docker.ContainerPrefix, r.req.ScopeKey)
	}

	extra := make(map[string]string, len(opts.ExtraEnv)+len(r.req.Env)+3)
	for k, v := range opts.ExtraEnv {
		extra[k] = v
	}
	for k, v := range r.req.Env {
		extra[k] = v
	}
	if creq.Docker.ShouldIssueBridgeToken() {
		token, err := container.NewBridgeToken()
		if err != nil {
			return nil, nil, err
		}
		for k, v := range container.BridgeEnv(token, r.req.ScopeKey, name) {
			extra[k] = v
		}
	}
	opts.ExtraEnv = extra
	opts.Name = name
	if opts.Cwd == "" {
		opts.Cwd = r.req.Cwd
	}

	spec, err := container.Build(creq.Docker, creq.WorkspaceDir, creq.AgentWorkspaceDir, r.req.ScopeKey, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("build container spec: %w", err)
	}
	r.containerName = spec.Name

	argv := append([]string{r.sup.cfg.Engine}, spec.RunArgs(r.req.Argv, r.req.Stdin == StdinOpen)...)
	return argv, os.Environ(), nil
}

func (r *Run) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), containerRemoveTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.sup.cfg.Engine, "rm", "-f", name).CombinedOutput()
	if err != nil {
		r.logger.Debug("container removal failed",
			zap.String("container", name),
			zap.ByteString("output", out),
			zap.Error(err))
	}
}

// mergeEnv overlays overrides on base ("KEY=VALUE" entries). Overridden keys
// are replaced in place, new keys are appended in sorted order.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	out := make([]string, 0, len(base)+len(overrides))
	applied := make(map[string]bool, len(overrides))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if v, ok := overrides[key]; ok {
			if !applied[key] {
				out = append(out, key+"="+v)
				applied[key] = true
			}
			continue
		}
		out = append(out, entry)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !applied[k] && k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
