// Package proctree kills a process together with everything it spawned.
//
// The platform strategy is picked at build time: Windows delegates to
// taskkill's recursive mode, Unix tries a process-group kill and falls back
// to walking the parent-pid tree.
package proctree

// Terminator kills a root process and all of its descendants.
// Terminate is best-effort: processes that are already gone are not errors.
type Terminator interface {
	Terminate(pid int)
}

// Func adapts an ordinary function to a Terminator.
type Func func(pid int)

// Terminate calls f(pid).
func (f Func) Terminate(pid int) { f(pid) }

// childLister returns the direct children of pid.
type childLister func(pid int) ([]int, error)

// collectDescendants walks the tree below root breadth-first until no new
// pids show up and returns the snapshot in discovery order. Nothing is killed
// while walking, so re-parented children are not missed mid-discovery.
// Listing failures for one pid only prune that branch.
func collectDescendants(root int, list childLister) []int {
	seen := map[int]bool{root: true}
	queue := []int{root}
	var snapshot []int

	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]

		children, err := list(pid)
		if err != nil {
			continue
		}
		for _, child := range children {
			if child <= 1 || seen[child] {
				continue
			}
			seen[child] = true
			snapshot = append(snapshot, child)
			queue = append(queue, child)
		}
	}

	return snapshot
}
