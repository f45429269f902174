// Package container turns sandbox configuration into the argument list for
// an external container engine. Building is pure: the same inputs always
// produce the same arguments, in the same order.
package container

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/faize-ai/hostguard/internal/config"
	"github.com/faize-ai/hostguard/internal/mount"
	"github.com/faize-ai/hostguard/internal/sandbox"
)

// AgentWorkspaceMount is where the agent's own workspace is mounted when it
// differs from the primary workspace.
const AgentWorkspaceMount = "/agent"

// Label keys stamped on every sandbox container.
const (
	LabelSandbox  = "hostguard.sandbox"
	LabelScopeKey = "hostguard.scopeKey"
)

var builtinLabels = []string{LabelSandbox, LabelScopeKey}

// Options carries per-launch inputs that are not part of the static config.
type Options struct {
	// WorkspaceAccess is none, ro or rw. Empty means rw.
	WorkspaceAccess string
	// ExtraEnv is merged over the configured env for this launch only.
	ExtraEnv map[string]string
	// Labels are added after the built-in labels.
	Labels map[string]string
	// Name overrides the name derived from the prefix and scope key.
	Name string
	// Cwd is a host directory inside the workspace. The container starts
	// in the matching directory under the configured workdir.
	Cwd string
	// Validator, when set, rejects binds whose source is a protected path.
	Validator *mount.Validator
}

// Spec is a fully resolved container launch.
type Spec struct {
	Name         string
	Image        string
	Workdir      string
	Labels       map[string]string
	ReadOnlyRoot bool
	Tmpfs        []string
	Network      string
	User         string
	Env          map[string]string
	CapDrop      []string
	SecurityOpts []string
	DNS          []string
	ExtraHosts   []string
	PidsLimit    int
	Memory       string
	MemorySwap   string
	CPUs         float64
	Ulimits      map[string]string
	// Setup runs in the container before the command; a failure aborts it.
	Setup string
	// Mounts are applied in order; a later mount shadows an earlier one at
	// an overlapping target.
	Mounts []mount.Mount
}

// Build assembles the Spec for one launch. Mounts are ordered: the
// workspace at cfg.Workdir, then the agent workspace read-only at
// AgentWorkspaceMount, then operator binds in configured order. Operator
// binds come last so they can mask paths populated by the first two.
func Build(cfg config.Docker, workspaceDir, agentWorkspaceDir, scopeKey string, opts Options) (*Spec, error) {
	if strings.TrimSpace(cfg.Image) == "" {
		return nil, fmt.Errorf("container image is not configured")
	}
	if !strings.HasPrefix(cfg.Workdir, "/") {
		return nil, fmt.Errorf("container workdir %q must be absolute", cfg.Workdir)
	}
	if workspaceDir == "" {
		return nil, fmt.Errorf("workspace directory is required")
	}

	access := opts.WorkspaceAccess
	if access == "" {
		access = config.AccessRW
	}
	switch access {
	case config.AccessNone, config.AccessRO, config.AccessRW:
	default:
		return nil, fmt.Errorf("invalid workspace access %q", access)
	}

	workspaceDir, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("workspace directory: %w", err)
	}
	if agentWorkspaceDir != "" {
		if agentWorkspaceDir, err = filepath.Abs(agentWorkspaceDir); err != nil {
			return nil, fmt.Errorf("agent workspace directory: %w", err)
		}
	}

	workdir := cfg.Workdir
	if opts.Cwd != "" {
		cwd, err := filepath.Abs(opts.Cwd)
		if err != nil {
			return nil, fmt.Errorf("cwd: %w", err)
		}
		rel, inside := sandbox.Contains(workspaceDir, cwd)
		if !inside {
			return nil, fmt.Errorf("cwd %s is outside the workspace %s", cwd, workspaceDir)
		}
		workdir = path.Join(cfg.Workdir, filepath.ToSlash(rel))
	}

	mounts := []mount.Mount{{
		Source:   workspaceDir,
		Target:   cfg.Workdir,
		ReadOnly: access == config.AccessRO && workspaceDir == agentWorkspaceDir,
	}}
	if agentWorkspaceDir != "" && agentWorkspaceDir != workspaceDir && access != config.AccessNone {
		mounts = append(mounts, mount.Mount{
			Source:   agentWorkspaceDir,
			Target:   AgentWorkspaceMount,
			ReadOnly: true,
		})
	}
	for _, bind := range cfg.Binds {
		m, err := mount.Parse(bind)
		if err != nil {
			return nil, fmt.Errorf("bind %q: %w", bind, err)
		}
		if opts.Validator != nil {
			if err := opts.Validator.Validate(m); err != nil {
				return nil, fmt.Errorf("bind %q: %w", bind, err)
			}
		}
		mounts = append(mounts, *m)
	}

	name := opts.Name
	if name == "" {
		name = ContainerName(cfg.ContainerPrefix, scopeKey)
	}

	labels := map[string]string{LabelSandbox: "1"}
	if scopeKey != "" {
		labels[LabelScopeKey] = scopeKey
	}
	for k, v := range opts.Labels {
		if k == "" || v == "" || isBuiltinLabel(k) {
			continue
		}
		labels[k] = v
	}

	env := make(map[string]string)
	for k, v := range cfg.EnvMap() {
		env[k] = v
	}
	for k, v := range opts.ExtraEnv {
		if strings.TrimSpace(k) == "" {
			continue
		}
		env[k] = v
	}

	securityOpts := []string{"no-new-privileges"}
	if cfg.SeccompProfile != "" {
		securityOpts = append(securityOpts, "seccomp="+cfg.SeccompProfile)
	}
	if cfg.ApparmorProfile != "" {
		securityOpts = append(securityOpts, "apparmor="+cfg.ApparmorProfile)
	}

	return &Spec{
		Name:         name,
		Image:        cfg.Image,
		Workdir:      workdir,
		Labels:       labels,
		ReadOnlyRoot: cfg.ShouldMountRootReadOnly(),
		Tmpfs:        nonEmpty(cfg.Tmpfs),
		Network:      cfg.Network,
		User:         cfg.User,
		Env:          env,
		CapDrop:      nonEmpty(cfg.CapDrop),
		SecurityOpts: securityOpts,
		DNS:          nonEmpty(cfg.DNS),
		ExtraHosts:   nonEmpty(cfg.ExtraHosts),
		PidsLimit:    cfg.PidsLimit,
		Memory:       strings.TrimSpace(cfg.Memory),
		MemorySwap:   strings.TrimSpace(cfg.MemorySwap),
		CPUs:         cfg.CPUs,
		Ulimits:      cfg.UlimitMap(),
		Setup:        strings.TrimSpace(cfg.SetupCommand),
		Mounts:       mounts,
	}, nil
}

// Args returns the engine flags for the spec followed by the image.
func (s *Spec) Args() []string {
	args := []string{"--name", s.Name}

	for _, k := range builtinLabels {
		if v, ok := s.Labels[k]; ok {
			args = append(args, "--label", k+"="+v)
		}
	}
	for _, k := range sortedKeys(s.Labels) {
		if isBuiltinLabel(k) {
			continue
		}
		args = append(args, "--label", k+"="+s.Labels[k])
	}

	if s.ReadOnlyRoot {
		args = append(args, "--read-only")
	}
	for _, entry := range s.Tmpfs {
		args = append(args, "--tmpfs", entry)
	}
	if s.Network != "" {
		args = append(args, "--network", s.Network)
	}
	if s.User != "" {
		args = append(args, "--user", s.User)
	}
	for _, k := range sortedKeys(s.Env) {
		args = append(args, "-e", k+"="+s.Env[k])
	}
	for _, capability := range s.CapDrop {
		args = append(args, "--cap-drop", capability)
	}
	for _, opt := range s.SecurityOpts {
		args = append(args, "--security-opt", opt)
	}
	for _, entry := range s.DNS {
		args = append(args, "--dns", entry)
	}
	for _, entry := range s.ExtraHosts {
		args = append(args, "--add-host", entry)
	}
	if s.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(s.PidsLimit))
	}
	if s.Memory != "" {
		args = append(args, "--memory", s.Memory)
	}
	if s.MemorySwap != "" {
		args = append(args, "--memory-swap", s.MemorySwap)
	}
	if s.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(s.CPUs, 'f', -1, 64))
	}
	for _, name := range sortedKeys(s.Ulimits) {
		if v := strings.TrimSpace(s.Ulimits[name]); v != "" {
			args = append(args, "--ulimit", name+"="+v)
		}
	}

	args = append(args, "--workdir", s.Workdir)
	for _, m := range s.Mounts {
		args = append(args, "-v", m.String())
	}

	return append(args, s.Image)
}

// RunArgs returns the full engine argv after the engine binary:
// run --rm [-i] <flags> <image> <argv...>. With a setup command, argv is
// exec'd by a login shell once setup succeeded.
func (s *Spec) RunArgs(argv []string, interactive bool) []string {
	args := []string{"run", "--rm"}
	if interactive {
		args = append(args, "-i")
	}
	args = append(args, s.Args()...)
	if s.Setup != "" {
		args = append(args, "sh", "-lc", "set -e\n"+s.Setup+"\nexec \"$@\"", "sh")
	}
	return append(args, argv...)
}

func isBuiltinLabel(k string) bool {
	for _, b := range builtinLabels {
		if k == b {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
