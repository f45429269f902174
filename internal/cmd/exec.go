package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/faize-ai/hostguard/internal/changeset"
	"github.com/faize-ai/hostguard/internal/container"
	"github.com/faize-ai/hostguard/internal/git"
	"github.com/faize-ai/hostguard/internal/mount"
	"github.com/faize-ai/hostguard/internal/network"
	"github.com/faize-ai/hostguard/internal/proctree"
	"github.com/faize-ai/hostguard/internal/sandbox"
	"github.com/faize-ai/hostguard/internal/session"
	"github.com/faize-ai/hostguard/internal/supervisor"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	execScope           string
	execSession         string
	execBackend         string
	execContainer       bool
	execCwd             string
	execEnv             []string
	execTimeout         time.Duration
	execNoOutputTimeout time.Duration
	execReplace         bool
	execStdin           string
	execJSON            bool
	execCommand         string
	execChanges         bool
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Run a command under supervision",
	Long: `Run a command as a supervised child process or inside a sandbox container.

The working directory must resolve inside the sandbox root (or one of the
allowed paths). Without a configured root, the enclosing git repository of the
current directory is used, or the current directory itself. The run ends on natural exit, on the overall timeout, when it
produces no output for --no-output-timeout, or on Ctrl-C; in every case the
whole process tree is terminated. hostguard exits with the command's status,
124 on timeout, 130 on cancel and 127 when the command could not start.

Examples:
  hostguard exec -- make test
  hostguard exec --cwd src --timeout 10m -- go build ./...
  hostguard exec --scope tool-1 --replace --command "npm run dev"
  hostguard exec --container --json -- python3 script.py
  hostguard exec --changes -- ./codegen.sh`,
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execScope, "scope", "", "scope key; at most one live run per scope")
	execCmd.Flags().StringVar(&execSession, "session", "", "session id recorded with the run")
	execCmd.Flags().StringVar(&execBackend, "backend", "", "backend id recorded with the run")
	execCmd.Flags().BoolVar(&execContainer, "container", false, "run inside a sandbox container")
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "working directory, resolved against the sandbox (default: current directory)")
	execCmd.Flags().StringArrayVarP(&execEnv, "env", "e", []string{}, "environment override KEY=VALUE (repeatable)")
	execCmd.Flags().DurationVarP(&execTimeout, "timeout", "t", 0, "overall timeout (default from config)")
	execCmd.Flags().DurationVar(&execNoOutputTimeout, "no-output-timeout", 0, "terminate after this long without output (default from config, 0 disables)")
	execCmd.Flags().BoolVar(&execReplace, "replace", false, "cancel the run holding --scope instead of failing")
	execCmd.Flags().StringVar(&execStdin, "stdin", "closed", "stdin mode: closed or open (forward hostguard's stdin)")
	execCmd.Flags().BoolVar(&execJSON, "json", false, "print the exit descriptor as JSON instead of the output")
	execCmd.Flags().StringVarP(&execCommand, "command", "c", "", "command line to split shell-style instead of positional args")
	execCmd.Flags().BoolVar(&execChanges, "changes", false, "report files the run created, modified or deleted in the workspace")

	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	argv, err := commandArgv(execCommand, args)
	if err != nil {
		return err
	}

	env, err := parseEnv(execEnv)
	if err != nil {
		return err
	}

	stdinMode, err := parseStdinMode(execStdin)
	if err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	root := git.SandboxRoot(cfg.Sandbox.Root, wd)

	resolution, err := sandbox.Resolve(execCwd, wd, root, cfg.Sandbox.AllowedPaths...)
	if err != nil {
		return err
	}
	Debug("Working directory %s (boundary %s)", resolution.Resolved, resolution.Boundary)

	noOutputTimeout := cfg.Defaults.NoOutputTimeout
	if cmd.Flags().Changed("no-output-timeout") {
		noOutputTimeout = execNoOutputTimeout
	}

	req := supervisor.SpawnRequest{
		SessionID:            execSession,
		BackendID:            execBackend,
		ScopeKey:             execScope,
		Mode:                 supervisor.ModeChild,
		Argv:                 argv,
		Cwd:                  resolution.Resolved,
		Env:                  env,
		Stdin:                stdinMode,
		Timeout:              execTimeout,
		NoOutputTimeout:      noOutputTimeout,
		ReplaceExistingScope: execReplace,
	}

	if execContainer {
		validator, err := mount.NewValidator(cfg.BlockedPaths)
		if err != nil {
			return fmt.Errorf("failed to create mount validator: %w", err)
		}
		logNetworkExposure(logger, cfg.Sandbox.Docker.Network)
		// The boundary that admitted the cwd is mounted, so the cwd maps
		// to a directory under the container workdir.
		req.Mode = supervisor.ModeContainer
		req.Container = &supervisor.ContainerRequest{
			Docker:            cfg.Sandbox.Docker,
			WorkspaceDir:      resolution.Boundary,
			AgentWorkspaceDir: cfg.Sandbox.AgentWorkspace,
			Options: container.Options{
				WorkspaceAccess: cfg.Sandbox.WorkspaceAccess,
				Validator:       validator,
			},
		}
	}

	sup := supervisor.New(supervisor.Config{
		DefaultTimeout: cfg.Defaults.Timeout,
		MaxOutputBytes: cfg.Defaults.MaxOutputBytes,
		WaitDelay:      cfg.Defaults.WaitDelay,
		Engine:         cfg.Engine,
	}, proctree.New(logger), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var before changeset.Snapshot
	if execChanges {
		if before, err = changeset.Take(resolution.Boundary); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", resolution.Boundary, err)
		}
	}

	run, err := sup.Spawn(ctx, req)
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			run.Cancel()
		case <-run.Done():
		}
	}()

	if stdinMode == supervisor.StdinOpen {
		go func() {
			_, _ = io.Copy(run, os.Stdin)
			_ = run.CloseStdin()
		}()
	}

	desc := run.Wait()

	var changes []changeset.Change
	if execChanges {
		after, err := changeset.Take(resolution.Boundary)
		if err != nil {
			logger.Warn("failed to snapshot workspace after run", zap.String("run_id", desc.RunID), zap.Error(err))
		} else {
			changes = changeset.Diff(before, after)
		}
	}

	record := session.NewRecord(req, desc)
	record.Changes = changes
	if store, err := session.NewStore(); err != nil {
		logger.Warn("run journal unavailable", zap.Error(err))
	} else if err := store.Save(record); err != nil {
		logger.Warn("failed to journal run", zap.String("run_id", desc.RunID), zap.Error(err))
	}

	if execJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := execResult{ExitDescriptor: desc, Changes: changes}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode descriptor: %w", err)
		}
	} else {
		_, _ = io.WriteString(os.Stdout, desc.Stdout)
		_, _ = io.WriteString(os.Stderr, desc.Stderr)
		if desc.Reason != supervisor.ReasonExit {
			fmt.Fprintf(os.Stderr, "hostguard: run %s ended: %s\n", desc.RunID, describeEnd(desc))
		}
		for _, notice := range truncationNotices(desc) {
			fmt.Fprintln(os.Stderr, "hostguard: "+notice)
		}
		if execChanges {
			changeset.PrintSummary(os.Stderr, resolution.Boundary, changes)
		}
	}

	if code := exitCode(desc); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// execResult is the --json output: the exit descriptor plus, with
// --changes, the workspace changes.
type execResult struct {
	supervisor.ExitDescriptor
	Changes []changeset.Change `json:"changes,omitempty"`
}

// commandArgv picks the argv from --command or the positional args.
func commandArgv(command string, args []string) ([]string, error) {
	if command != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("use either --command or positional arguments, not both")
		}
		argv, err := shlex.Split(command)
		if err != nil {
			return nil, fmt.Errorf("invalid --command: %w", err)
		}
		args = argv
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no command given")
	}
	return args, nil
}

func parseEnv(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --env %q: want KEY=VALUE", entry)
		}
		env[key] = value
	}
	return env, nil
}

func parseStdinMode(s string) (supervisor.StdinMode, error) {
	switch s {
	case "", "closed":
		return supervisor.StdinClosed, nil
	case "open":
		return supervisor.StdinOpen, nil
	default:
		return "", fmt.Errorf("invalid --stdin %q: must be closed or open", s)
	}
}

// exitCode maps a descriptor to hostguard's own exit status.
func exitCode(d supervisor.ExitDescriptor) int {
	switch d.Reason {
	case supervisor.ReasonExit:
		if d.ExitCode != nil {
			return *d.ExitCode
		}
		return 1
	case supervisor.ReasonTimeout, supervisor.ReasonNoOutputTimeout:
		return 124
	case supervisor.ReasonManualCancel:
		return 130
	case supervisor.ReasonSpawnError:
		return 127
	default:
		return 1
	}
}

func describeEnd(d supervisor.ExitDescriptor) string {
	switch d.Reason {
	case supervisor.ReasonSpawnError:
		return "failed to start: " + d.Error
	case supervisor.ReasonSignal:
		return "killed by signal " + d.ExitSignal
	case supervisor.ReasonTimeout:
		return fmt.Sprintf("timed out after %s", d.Duration().Round(time.Millisecond))
	case supervisor.ReasonNoOutputTimeout:
		return fmt.Sprintf("no output, terminated after %s", d.Duration().Round(time.Millisecond))
	default:
		return string(d.Reason)
	}
}

// truncationNotices explains streams whose head was dropped from the output.
func truncationNotices(d supervisor.ExitDescriptor) []string {
	var notices []string
	if d.StdoutTruncated {
		notices = append(notices, fmt.Sprintf("stdout truncated, kept last %d of %d bytes", len(d.Stdout), d.StdoutBytes))
	}
	if d.StderrTruncated {
		notices = append(notices, fmt.Sprintf("stderr truncated, kept last %d of %d bytes", len(d.Stderr), d.StderrBytes))
	}
	return notices
}

// logNetworkExposure reports container network access that an isolated
// sandbox would not have.
func logNetworkExposure(logger *zap.Logger, mode string) {
	switch {
	case network.SharesHost(mode):
		logger.Warn("container shares the host network namespace", zap.String("network", mode))
	case !network.IsIsolated(mode):
		logger.Debug("container has network access", zap.String("network", mode))
	}
}
