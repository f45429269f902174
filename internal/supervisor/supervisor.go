// Package supervisor spawns commands as tracked runs, bounds them with an
// overall deadline and a no-output deadline, and tears down the whole process
// tree on timeout or cancellation.
//
// Runs are registered by id and, optionally, by scope key. A scope key holds
// at most one live run: a second Spawn under the same key fails with
// ErrScopeBusy unless it asks to replace the holder, in which case the holder
// is cancelled and awaited before the new process starts.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/faize-ai/hostguard/internal/proctree"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrScopeBusy is returned when the scope key already has a live run.
	ErrScopeBusy = errors.New("scope already has an active run")
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid spawn request")
	// ErrShutdown is returned by Spawn after Shutdown was called.
	ErrShutdown = errors.New("supervisor is shut down")
	// ErrStdinClosed is returned when writing to a run without an open stdin.
	ErrStdinClosed = errors.New("stdin is not open")
)

// Config holds supervisor-wide defaults.
type Config struct {
	DefaultTimeout time.Duration // applied when a request has no timeout (default: 30m)
	MaxOutputBytes int           // tail kept per stream (default: 1MB)
	WaitDelay      time.Duration // pipe drain bound after the root exits (default: 2s)
	Engine         string        // container engine binary (default: docker)
}

// Supervisor owns the registry of live runs.
type Supervisor struct {
	cfg    Config
	term   proctree.Terminator
	logger *zap.Logger

	mu     sync.Mutex
	runs   map[string]*Run
	scopes map[string]*Run
	closed bool

	// images holds engine+image keys already confirmed present.
	images sync.Map
}

// New creates a Supervisor. A nil terminator selects the platform default.
func New(cfg Config, term proctree.Terminator, logger *zap.Logger) *Supervisor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Minute
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 1024 * 1024
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 2 * time.Second
	}
	if cfg.Engine == "" {
		cfg.Engine = "docker"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if term == nil {
		term = proctree.New(logger)
	}

	return &Supervisor{
		cfg:    cfg,
		term:   term,
		logger: logger,
		runs:   make(map[string]*Run),
		scopes: make(map[string]*Run),
	}
}

// Spawn starts req and returns its Run. It returns an error only for invalid
// requests, a busy scope, or a shut down supervisor; failures to start the
// process are reported through the run's descriptor as ReasonSpawnError.
//
// With ReplaceExistingScope, Spawn blocks until the previous holder of the
// scope has fully terminated. ctx bounds only that wait.
func (s *Supervisor) Spawn(ctx context.Context, req SpawnRequest) (*Run, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	run := newRun(s, uuid.NewString(), req)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	var prior *Run
	if req.ScopeKey != "" {
		if holder, ok := s.scopes[req.ScopeKey]; ok {
			if !req.ReplaceExistingScope {
				s.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", ErrScopeBusy, req.ScopeKey)
			}
			prior = holder
		}
		// The new run claims the scope before the holder is gone, so a
		// concurrent replacer queues behind it rather than behind the holder.
		s.scopes[req.ScopeKey] = run
	}
	s.runs[run.id] = run
	s.mu.Unlock()

	if prior != nil {
		s.logger.Info("replacing run in scope",
			zap.String("scope", req.ScopeKey),
			zap.String("run_id", prior.id),
			zap.String("replacement_id", run.id))
		prior.trigger(ReasonManualCancel)

		select {
		case <-prior.done:
		case <-ctx.Done():
			// The scope stays claimed until the holder is really gone.
			err := fmt.Errorf("waiting for scope %s: %w", req.ScopeKey, ctx.Err())
			go func() {
				<-prior.done
				run.fail(err)
			}()
			return run, nil
		}
	}

	run.start()
	return run, nil
}

// Get returns the live run with the given id.
func (s *Supervisor) Get(id string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	return run, ok
}

// Lookup returns the run currently holding scopeKey.
func (s *Supervisor) Lookup(scopeKey string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.scopes[scopeKey]
	return run, ok
}

// Active returns all live runs.
func (s *Supervisor) Active() []*Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	return runs
}

// CancelScope cancels the run holding scopeKey. It reports whether one was found.
func (s *Supervisor) CancelScope(scopeKey string) bool {
	run, ok := s.Lookup(scopeKey)
	if !ok {
		return false
	}
	run.Cancel()
	return true
}

// Shutdown refuses new spawns, cancels every live run and waits for them to
// finish or for ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.mu.Unlock()

	for _, run := range runs {
		run.trigger(ReasonManualCancel)
	}
	for _, run := range runs {
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// release drops run from the registry. The scope entry is only removed when
// run still holds it; a replacement may already own the key.
func (s *Supervisor) release(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, run.id)
	if key := run.req.ScopeKey; key != "" && s.scopes[key] == run {
		delete(s.scopes, key)
	}
}

func normalize(req SpawnRequest) (SpawnRequest, error) {
	if len(req.Argv) == 0 || req.Argv[0] == "" {
		return req, fmt.Errorf("%w: argv is empty", ErrInvalidRequest)
	}
	if req.Timeout < 0 || req.NoOutputTimeout < 0 {
		return req, fmt.Errorf("%w: timeouts must not be negative", ErrInvalidRequest)
	}

	switch req.Mode {
	case "":
		req.Mode = ModeChild
	case ModeChild:
	case ModeContainer:
		if req.Container == nil {
			return req, fmt.Errorf("%w: container mode needs a container request", ErrInvalidRequest)
		}
	default:
		return req, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}

	switch req.Stdin {
	case "":
		req.Stdin = StdinClosed
	case StdinClosed, StdinOpen:
	default:
		return req, fmt.Errorf("%w: unknown stdin mode %q", ErrInvalidRequest, req.Stdin)
	}

	req.Argv = append([]string(nil), req.Argv...)
	return req, nil
}
