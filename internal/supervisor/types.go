package supervisor

import (
	"time"

	"github.com/faize-ai/hostguard/internal/config"
	"github.com/faize-ai/hostguard/internal/container"
)

// Mode selects how a run is isolated.
type Mode string

const (
	// ModeChild runs argv directly as a child process.
	ModeChild Mode = "child"
	// ModeContainer runs argv inside a fresh container via the engine CLI.
	ModeContainer Mode = "container"
)

// StdinMode controls the child's standard input.
type StdinMode string

const (
	// StdinClosed gives the child an already-closed stdin so it can never
	// block waiting for input.
	StdinClosed StdinMode = "pipe-closed"
	// StdinOpen keeps a pipe open for Run.Write.
	StdinOpen StdinMode = "pipe-open"
)

// ExitReason says which trigger ended a run. Exactly one is latched per run.
type ExitReason string

const (
	ReasonExit            ExitReason = "exit"
	ReasonNoOutputTimeout ExitReason = "no-output-timeout"
	ReasonTimeout         ExitReason = "timeout"
	ReasonManualCancel    ExitReason = "manual-cancel"
	ReasonSignal          ExitReason = "signal"
	ReasonSpawnError      ExitReason = "spawn-error"
)

// ContainerRequest carries the container inputs for ModeContainer runs.
type ContainerRequest struct {
	Docker            config.Docker
	WorkspaceDir      string
	AgentWorkspaceDir string
	Options           container.Options
}

// SpawnRequest describes one command execution.
type SpawnRequest struct {
	SessionID string
	BackendID string
	// ScopeKey, when set, allows at most one live run under that key.
	ScopeKey string
	Mode     Mode
	Argv     []string
	Cwd      string
	// Env overrides the inherited environment in child mode and is injected
	// into the container in container mode.
	Env   map[string]string
	Stdin StdinMode
	// Timeout bounds the whole run. Zero means the supervisor default.
	Timeout time.Duration
	// NoOutputTimeout ends the run when neither stream produced a byte for
	// that long. Zero disables it.
	NoOutputTimeout time.Duration
	// ReplaceExistingScope cancels and awaits the run holding ScopeKey
	// instead of failing with ErrScopeBusy.
	ReplaceExistingScope bool
	Container            *ContainerRequest
}

// ExitDescriptor is the single result of a run.
type ExitDescriptor struct {
	RunID            string     `json:"runId"`
	SessionID        string     `json:"sessionId,omitempty"`
	BackendID        string     `json:"backendId,omitempty"`
	ScopeKey         string     `json:"scopeKey,omitempty"`
	Mode             Mode       `json:"mode"`
	Pid              int        `json:"pid,omitempty"`
	ContainerName    string     `json:"containerName,omitempty"`
	Reason           ExitReason `json:"reason"`
	ExitCode         *int       `json:"exitCode"`
	ExitSignal       string     `json:"exitSignal,omitempty"`
	TimedOut         bool       `json:"timedOut"`
	NoOutputTimedOut bool       `json:"noOutputTimedOut"`
	Stdout           string     `json:"stdout"`
	Stderr           string     `json:"stderr"`
	StdoutTruncated  bool       `json:"stdoutTruncated,omitempty"`
	StderrTruncated  bool       `json:"stderrTruncated,omitempty"`
	// StdoutBytes and StderrBytes count every byte produced, kept or not.
	StdoutBytes      int64      `json:"stdoutBytes"`
	StderrBytes      int64      `json:"stderrBytes"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          time.Time  `json:"endedAt"`
}

// Duration returns how long the process ran.
func (d ExitDescriptor) Duration() time.Duration {
	if d.StartedAt.IsZero() {
		return 0
	}
	return d.EndedAt.Sub(d.StartedAt)
}
