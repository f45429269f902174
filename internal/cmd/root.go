package cmd

import (
	"fmt"
	"os"

	"github.com/faize-ai/hostguard/internal/config"
	"github.com/faize-ai/hostguard/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

// ExitError carries the exit status hostguard itself should exit with.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Debug prints a message if debug mode is enabled
func Debug(format string, args ...interface{}) {
	if debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hostguard",
	Short: "hostguard - supervised command execution for AI agents",
	Long: `hostguard runs agent-requested commands on the host under supervision:
every run has a wall-clock and a no-output timeout, is torn down together
with everything it spawned, and can be confined to a sandbox container.

Run a command:
  hostguard exec -- make test
  hostguard exec --scope tool-1 --replace --no-output-timeout 2m -- npm ci
  hostguard exec --container --command "go test ./..."

Check a path against the sandbox:
  hostguard resolve ../secrets.txt

Inspect past runs:
  hostguard runs
  hostguard prune --older-than 24h`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.hostguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadRuntime loads the configuration and builds the logger for a subcommand.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log, debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	Debug("Config loaded successfully")
	return cfg, logger, nil
}
