package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/faize-ai/hostguard/internal/git"
	"github.com/faize-ai/hostguard/internal/sandbox"
	"github.com/spf13/cobra"
)

var (
	resolveCwd        string
	resolveRoot       string
	resolveAllow      []string
	resolveNoSymlinks bool
	resolveJSON       bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Check a path against the sandbox boundary",
	Long: `Resolve a path the way file tools do before touching it.

The path is made absolute against --cwd and normalized lexically, then
accepted only if it is the sandbox root, an allowed path, or nested under one
of them. Anything else is rejected as a sandbox escape.

Examples:
  hostguard resolve src/main.go
  hostguard resolve --root ~/agents/main --allow ~/shared ../shared/notes.md
  hostguard resolve --no-symlinks build/output.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCwd, "cwd", "", "directory relative paths are resolved against (default: current directory)")
	resolveCmd.Flags().StringVar(&resolveRoot, "root", "", "sandbox root (default from config, then the enclosing git repository, then --cwd)")
	resolveCmd.Flags().StringArrayVar(&resolveAllow, "allow", []string{}, "additional allowed path (repeatable, added to config)")
	resolveCmd.Flags().BoolVar(&resolveNoSymlinks, "no-symlinks", false, "also reject existing symlink components on the host")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the resolution as JSON")

	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}

	cwd := resolveCwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	root := resolveRoot
	if root == "" {
		root = git.SandboxRoot(cfg.Sandbox.Root, cwd)
	}

	allowed := append(append([]string{}, cfg.Sandbox.AllowedPaths...), resolveAllow...)

	resolve := sandbox.Resolve
	if resolveNoSymlinks {
		resolve = sandbox.ResolveNoSymlinks
	}

	res, err := resolve(args[0], cwd, root, allowed...)
	if err != nil {
		return err
	}

	if resolveJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Println(res.Resolved)
	Debug("Relative %q to boundary %s", res.Relative, res.Boundary)
	return nil
}
