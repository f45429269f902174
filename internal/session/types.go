package session

import (
	"time"

	"github.com/faize-ai/hostguard/internal/changeset"
	"github.com/faize-ai/hostguard/internal/supervisor"
)

// tailLimit caps the output kept per stream in a journal record.
const tailLimit = 4096

// Record is the journal entry for one finished run. It is informational:
// nothing is restored from it on restart.
type Record struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"session_id,omitempty"`
	BackendID        string     `json:"backend_id,omitempty"`
	ScopeKey         string     `json:"scope_key,omitempty"`
	Mode             string     `json:"mode"`
	Argv             []string   `json:"argv"`
	Cwd              string     `json:"cwd,omitempty"`
	ContainerName    string     `json:"container_name,omitempty"`
	Pid              int        `json:"pid,omitempty"`
	Reason           string     `json:"reason"` // exit | no-output-timeout | timeout | manual-cancel | signal | spawn-error
	ExitCode         *int       `json:"exit_code,omitempty"`
	ExitSignal       string     `json:"exit_signal,omitempty"`
	TimedOut         bool       `json:"timed_out,omitempty"`
	NoOutputTimedOut bool       `json:"no_output_timed_out,omitempty"`
	Error            string     `json:"error,omitempty"`
	StdoutTail       string     `json:"stdout_tail,omitempty"`
	StderrTail       string     `json:"stderr_tail,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	// Changes is set when the run was asked to report workspace changes.
	Changes []changeset.Change `json:"changes,omitempty"`
}

// NewRecord builds the journal entry for a finished run.
func NewRecord(req supervisor.SpawnRequest, d supervisor.ExitDescriptor) *Record {
	r := &Record{
		ID:               d.RunID,
		SessionID:        d.SessionID,
		BackendID:        d.BackendID,
		ScopeKey:         d.ScopeKey,
		Mode:             string(d.Mode),
		Argv:             append([]string(nil), req.Argv...),
		Cwd:              req.Cwd,
		ContainerName:    d.ContainerName,
		Pid:              d.Pid,
		Reason:           string(d.Reason),
		ExitCode:         d.ExitCode,
		ExitSignal:       d.ExitSignal,
		TimedOut:         d.TimedOut,
		NoOutputTimedOut: d.NoOutputTimedOut,
		Error:            d.Error,
		StdoutTail:       tail(d.Stdout),
		StderrTail:       tail(d.Stderr),
		StartedAt:        d.StartedAt,
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = d.EndedAt
	}
	if !d.EndedAt.IsZero() {
		ended := d.EndedAt
		r.EndedAt = &ended
	}
	return r
}

// Duration returns how long the run lasted, or 0 if it never ended.
func (r *Record) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

func tail(s string) string {
	if len(s) <= tailLimit {
		return s
	}
	return s[len(s)-tailLimit:]
}
