package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/faize-ai/hostguard/internal/container"
	"github.com/faize-ai/hostguard/internal/git"
	"github.com/faize-ai/hostguard/internal/mount"
	"github.com/kballard/go-shellquote"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var (
	containerArgsScope          string
	containerArgsWorkspace      string
	containerArgsAgentWorkspace string
	containerArgsAccess         string
	containerArgsCwd            string
	containerArgsEnv            []string
	containerArgsInteractive    bool
	containerArgsJSON           bool
)

var containerArgsCmd = &cobra.Command{
	Use:   "container-args [flags] [-- command [args...]]",
	Short: "Print the container engine command line for a sandbox run",
	Long: `Print the engine invocation hostguard would use for a container run,
without running it. Mounts are listed in the order the engine applies them:
the workspace, the agent workspace (read-only), then configured binds.

Examples:
  hostguard container-args
  hostguard container-args --scope agent:main -- sh -lc 'make test'
  hostguard container-args --json --workspace ~/code/app
  hostguard container-args --cwd ~/code/app/web -- npm test`,
	RunE: runContainerArgs,
}

func init() {
	containerArgsCmd.Flags().StringVar(&containerArgsScope, "scope", "", "scope key used for the container name and labels")
	containerArgsCmd.Flags().StringVar(&containerArgsWorkspace, "workspace", "", "workspace directory (default: sandbox root, then the enclosing git repository, then current directory)")
	containerArgsCmd.Flags().StringVar(&containerArgsAgentWorkspace, "agent-workspace", "", "agent workspace directory (default from config)")
	containerArgsCmd.Flags().StringVar(&containerArgsAccess, "access", "", "workspace access: none, ro or rw (default from config)")
	containerArgsCmd.Flags().StringVar(&containerArgsCwd, "cwd", "", "host directory inside the workspace to start in (default: workspace root)")
	containerArgsCmd.Flags().StringArrayVarP(&containerArgsEnv, "env", "e", []string{}, "runtime environment KEY=VALUE (repeatable)")
	containerArgsCmd.Flags().BoolVarP(&containerArgsInteractive, "interactive", "i", false, "keep stdin open (-i)")
	containerArgsCmd.Flags().BoolVar(&containerArgsJSON, "json", false, "print the argv as a JSON array")

	rootCmd.AddCommand(containerArgsCmd)
}

func runContainerArgs(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}

	workspace := containerArgsWorkspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		workspace = git.SandboxRoot(cfg.Sandbox.Root, wd)
	}
	workspace = expandHome(workspace)

	agentWorkspace := cfg.Sandbox.AgentWorkspace
	if containerArgsAgentWorkspace != "" {
		agentWorkspace = expandHome(containerArgsAgentWorkspace)
	}

	access := cfg.Sandbox.WorkspaceAccess
	if containerArgsAccess != "" {
		access = containerArgsAccess
	}

	env, err := parseEnv(containerArgsEnv)
	if err != nil {
		return err
	}

	validator, err := mount.NewValidator(cfg.BlockedPaths)
	if err != nil {
		return fmt.Errorf("failed to create mount validator: %w", err)
	}

	spec, err := container.Build(cfg.Sandbox.Docker, workspace, agentWorkspace, containerArgsScope, container.Options{
		WorkspaceAccess: access,
		ExtraEnv:        env,
		Cwd:             expandHome(containerArgsCwd),
		Validator:       validator,
	})
	if err != nil {
		return err
	}

	argv := append([]string{cfg.Engine}, spec.RunArgs(args, containerArgsInteractive)...)

	if containerArgsJSON {
		return json.NewEncoder(os.Stdout).Encode(argv)
	}

	fmt.Println(shellquote.Join(argv...))
	return nil
}

func expandHome(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
