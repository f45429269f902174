package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/faize-ai/hostguard/internal/network"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// HardcodedBlockedPaths are security-critical paths that CANNOT be overridden by user config.
// These paths contain credentials and secrets that must never be bound into a sandbox container.
var HardcodedBlockedPaths = []string{
	"~/.ssh",
	"~/.aws",
	"~/.config/gcloud",
	"~/.gnupg",
	"~/.password-store",
	"~/.docker/config.json",
}

// DefaultImage is the sandbox image used when none is configured. When it
// is missing locally it is created by tagging DefaultBaseImage.
const (
	DefaultImage     = "hostguard-sandbox:bookworm-slim"
	DefaultBaseImage = "debian:bookworm-slim"
)

// Workspace access levels for the container workspace mounts.
const (
	AccessNone = "none"
	AccessRO   = "ro"
	AccessRW   = "rw"
)

// Config represents the hostguard configuration
type Config struct {
	Engine       string   `mapstructure:"engine"`
	Defaults     Defaults `mapstructure:"defaults"`
	Sandbox      Sandbox  `mapstructure:"sandbox"`
	BlockedPaths []string `mapstructure:"blocked_paths"`
	Log          Log      `mapstructure:"log"`
}

// Defaults holds per-run limits applied when a request leaves them unset.
type Defaults struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	NoOutputTimeout time.Duration `mapstructure:"no_output_timeout"`
	MaxOutputBytes  int           `mapstructure:"max_output_bytes"`
	WaitDelay       time.Duration `mapstructure:"wait_delay"`
}

// Sandbox describes the filesystem boundary and the container used for
// container-mode runs.
type Sandbox struct {
	Root            string   `mapstructure:"root"`
	AllowedPaths    []string `mapstructure:"allowed_paths"`
	AgentWorkspace  string   `mapstructure:"agent_workspace"`
	WorkspaceAccess string   `mapstructure:"workspace_access"`
	Docker          Docker   `mapstructure:"docker"`
}

// Docker is the container configuration handed to the container builder. Env and
// Ulimits are "NAME=VALUE" lists because config keys are case-insensitive.
type Docker struct {
	Image           string   `mapstructure:"image"`
	ContainerPrefix string   `mapstructure:"container_prefix"`
	Workdir         string   `mapstructure:"workdir"`
	ReadOnlyRoot    *bool    `mapstructure:"read_only_root"`
	Tmpfs           []string `mapstructure:"tmpfs"`
	Network         string   `mapstructure:"network"`
	User            string   `mapstructure:"user"`
	CapDrop         []string `mapstructure:"cap_drop"`
	Env             []string `mapstructure:"env"`
	Binds           []string `mapstructure:"binds"`
	SeccompProfile  string   `mapstructure:"seccomp_profile"`
	ApparmorProfile string   `mapstructure:"apparmor_profile"`
	DNS             []string `mapstructure:"dns"`
	ExtraHosts      []string `mapstructure:"extra_hosts"`
	PidsLimit       int      `mapstructure:"pids_limit"`
	Memory          string   `mapstructure:"memory"`
	MemorySwap      string   `mapstructure:"memory_swap"`
	CPUs            float64  `mapstructure:"cpus"`
	Ulimits         []string `mapstructure:"ulimits"`
	BridgeToken     *bool    `mapstructure:"bridge_token"`
	SetupCommand    string   `mapstructure:"setup_command"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ShouldMountRootReadOnly returns whether the container root filesystem is read-only.
// Defaults to true when not explicitly set.
func (d *Docker) ShouldMountRootReadOnly() bool {
	if d.ReadOnlyRoot == nil {
		return true
	}
	return *d.ReadOnlyRoot
}

// ShouldIssueBridgeToken returns whether each container launch gets a fresh
// bridge token in its environment. Defaults to false when not explicitly set.
func (d *Docker) ShouldIssueBridgeToken() bool {
	if d.BridgeToken == nil {
		return false
	}
	return *d.BridgeToken
}

// EnvMap returns Env as a map. Later entries win; entries without a name are skipped.
func (d *Docker) EnvMap() map[string]string {
	return pairs(d.Env)
}

// UlimitMap returns Ulimits as a name -> "soft[:hard]" map.
func (d *Docker) UlimitMap() map[string]string {
	return pairs(d.Ulimits)
}

func pairs(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, value, _ := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// Load loads the configuration from path, or from ~/.hostguard/config.yaml
// when path is empty. A missing default config file yields defaults; a
// missing explicit file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		configDir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix("HOSTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Sandbox.Root = expandPath(cfg.Sandbox.Root)
	cfg.Sandbox.AgentWorkspace = expandPath(cfg.Sandbox.AgentWorkspace)
	cfg.Sandbox.AllowedPaths = expandPaths(cfg.Sandbox.AllowedPaths)
	cfg.BlockedPaths = expandPaths(cfg.BlockedPaths)

	// Merge hardcoded blocked paths (security-critical, cannot be overridden)
	cfg.BlockedPaths = mergeBlockedPaths(cfg.BlockedPaths, expandPaths(HardcodedBlockedPaths))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise surface as confusing engine
// or runtime errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Engine) == "" {
		return fmt.Errorf("invalid config: engine must be set")
	}
	if c.Defaults.Timeout < 0 || c.Defaults.NoOutputTimeout < 0 || c.Defaults.WaitDelay < 0 {
		return fmt.Errorf("invalid config: durations must not be negative")
	}
	if c.Defaults.MaxOutputBytes < 0 {
		return fmt.Errorf("invalid config: max_output_bytes must not be negative")
	}

	switch c.Sandbox.WorkspaceAccess {
	case AccessNone, AccessRO, AccessRW:
	default:
		return fmt.Errorf("invalid config: workspace_access %q must be none, ro or rw", c.Sandbox.WorkspaceAccess)
	}

	d := c.Sandbox.Docker
	if !strings.HasPrefix(d.Workdir, "/") {
		return fmt.Errorf("invalid config: docker workdir %q must be an absolute container path", d.Workdir)
	}
	if err := network.ValidateMode(d.Network); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, entry := range d.DNS {
		if err := network.ValidateDNS(entry); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	for _, entry := range d.ExtraHosts {
		if err := network.ValidateExtraHost(entry); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	for _, entry := range d.Env {
		if name, _, ok := strings.Cut(entry, "="); !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid config: docker env entry %q must be NAME=VALUE", entry)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", "docker")

	v.SetDefault("defaults.timeout", "30m")
	v.SetDefault("defaults.no_output_timeout", "0s")
	v.SetDefault("defaults.max_output_bytes", 1024*1024)
	v.SetDefault("defaults.wait_delay", "2s")

	v.SetDefault("sandbox.root", "")
	v.SetDefault("sandbox.allowed_paths", []string{})
	v.SetDefault("sandbox.agent_workspace", "")
	v.SetDefault("sandbox.workspace_access", AccessRW)

	v.SetDefault("sandbox.docker.image", DefaultImage)
	v.SetDefault("sandbox.docker.container_prefix", "hostguard-sbx-")
	v.SetDefault("sandbox.docker.workdir", "/workspace")
	v.SetDefault("sandbox.docker.read_only_root", true)
	v.SetDefault("sandbox.docker.tmpfs", []string{"/tmp", "/var/tmp", "/run"})
	v.SetDefault("sandbox.docker.network", network.ModeNone)
	v.SetDefault("sandbox.docker.cap_drop", []string{"ALL"})
	v.SetDefault("sandbox.docker.env", []string{"LANG=C.UTF-8"})
	v.SetDefault("sandbox.docker.binds", []string{})
	v.SetDefault("sandbox.docker.bridge_token", false)
	v.SetDefault("sandbox.docker.setup_command", "")

	blockedPaths := []string{
		"~/.ssh",
		"~/.aws",
		"~/.config/gcloud",
		"~/.gnupg",
		"~/.password-store",
		"~/.mozilla",
		"~/.config/google-chrome",
		"~/.docker",
		// Additional credential stores
		"~/.netrc",
		"~/.npmrc",
		"~/.pypirc",
		"~/.m2/settings.xml",
		"~/.gradle/gradle.properties",
		"~/.kube",
		"~/.config/gh",
		"~/.config/hub",
		"~/.azure",
	}

	switch runtime.GOOS {
	case "darwin":
		blockedPaths = append(blockedPaths, "~/Library/Keychains")
	case "linux":
		blockedPaths = append(blockedPaths, "~/.local/share/keyrings")
	}

	v.SetDefault("blocked_paths", blockedPaths)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// expandPath expands a leading ~; empty paths stay empty.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// expandPaths expands ~ in paths to home directory
func expandPaths(paths []string) []string {
	expanded := make([]string, len(paths))
	for i, path := range paths {
		expanded[i] = expandPath(path)
	}
	return expanded
}

// ConfigDir returns the hostguard configuration directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hostguard"), nil
}

// mergeBlockedPaths merges two lists of blocked paths, removing duplicates.
// The hardcoded paths are always included regardless of user config.
func mergeBlockedPaths(userPaths, hardcodedPaths []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(userPaths)+len(hardcodedPaths))

	for _, path := range hardcodedPaths {
		if !seen[path] {
			seen[path] = true
			result = append(result, path)
		}
	}

	for _, path := range userPaths {
		if !seen[path] {
			seen[path] = true
			result = append(result, path)
		}
	}

	return result
}
