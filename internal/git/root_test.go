package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initGitRepo initializes a git repository in dir, setting minimal config
// to avoid pollution from the global git config.
func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	cmd := exec.Command("git", "init", dir)
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git init failed: %s", out)
}

// realDir resolves symlinks in t.TempDir paths (macOS /var -> /private/var),
// which git reports resolved.
func realDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestFindRoot(t *testing.T) {
	dir := realDir(t)
	initGitRepo(t, dir)

	subdir := filepath.Join(dir, "some", "nested", "subdir")
	require.NoError(t, os.MkdirAll(subdir, 0o755))

	assert.Equal(t, dir, FindRoot(dir))
	assert.Equal(t, dir, FindRoot(subdir))
}

func TestFindRootOutsideRepo(t *testing.T) {
	assert.Equal(t, "", FindRoot(realDir(t)))
}

func TestSandboxRoot(t *testing.T) {
	repo := realDir(t)
	initGitRepo(t, repo)
	nested := filepath.Join(repo, "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	plain := realDir(t)

	assert.Equal(t, "/srv/agents/main", SandboxRoot("/srv/agents/main", nested))
	assert.Equal(t, repo, SandboxRoot("", nested))
	assert.Equal(t, plain, SandboxRoot("", plain))
}
