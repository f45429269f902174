package cmd

import (
	"fmt"
	"strconv"

	"github.com/faize-ai/hostguard/internal/proctree"
	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill <pid>...",
	Short: "Terminate processes and everything they spawned",
	Long: `Terminate each given process together with all of its descendants.

On Unix the process group is killed when the pid leads one; otherwise the
descendants are discovered through their parent pids and killed one by one
before the root. On Windows the tree is killed with taskkill /T.

Processes that are already gone are ignored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	pids, err := parsePids(args)
	if err != nil {
		return err
	}

	_, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	term := proctree.New(logger)
	for _, pid := range pids {
		term.Terminate(pid)
		fmt.Printf("Terminated process tree: %d\n", pid)
	}

	return nil
}

func parsePids(args []string) ([]int, error) {
	pids := make([]int, 0, len(args))
	for _, arg := range args {
		pid, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pid %q", arg)
		}
		if pid <= 1 {
			return nil, fmt.Errorf("refusing to terminate pid %d", pid)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
