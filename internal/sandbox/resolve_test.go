package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "agents", "main")
	other := filepath.Join(string(filepath.Separator), "srv", "agents", "shared")

	tests := []struct {
		name         string
		path         string
		cwd          string
		allowed      []string
		wantResolved string
		wantRelative string
		wantBoundary string
		wantEscape   bool
	}{
		{
			name:         "root itself",
			path:         root,
			cwd:          root,
			wantResolved: root,
			wantRelative: "",
			wantBoundary: root,
		},
		{
			name:         "empty path is cwd",
			path:         "",
			cwd:          root,
			wantResolved: root,
			wantRelative: "",
			wantBoundary: root,
		},
		{
			name:         "relative file",
			path:         "src/main.go",
			cwd:          root,
			wantResolved: filepath.Join(root, "src", "main.go"),
			wantRelative: filepath.Join("src", "main.go"),
			wantBoundary: root,
		},
		{
			name:         "relative to nested cwd",
			path:         "../docs/README.md",
			cwd:          filepath.Join(root, "src"),
			wantResolved: filepath.Join(root, "docs", "README.md"),
			wantRelative: filepath.Join("docs", "README.md"),
			wantBoundary: root,
		},
		{
			name:         "dot segments that stay inside",
			path:         filepath.Join(root, "a", ".", "b", "..", "c"),
			cwd:          root,
			wantResolved: filepath.Join(root, "a", "c"),
			wantRelative: filepath.Join("a", "c"),
			wantBoundary: root,
		},
		{
			name:       "traversal with root as literal prefix",
			path:       root + "/../../../etc/passwd",
			cwd:        root,
			wantEscape: true,
		},
		{
			name:       "absolute path outside",
			path:       "/etc/passwd",
			cwd:        root,
			wantEscape: true,
		},
		{
			name:       "sibling with shared prefix",
			path:       root + "-evil/file",
			cwd:        root,
			wantEscape: true,
		},
		{
			name:       "relative escape",
			path:       "../../../../etc/shadow",
			cwd:        root,
			wantEscape: true,
		},
		{
			name:         "allowed path exactly",
			path:         other,
			cwd:          root,
			allowed:      []string{other},
			wantResolved: other,
			wantRelative: "",
			wantBoundary: other,
		},
		{
			name:         "nested under allowed path",
			path:         filepath.Join(other, "notes", "todo.md"),
			cwd:          root,
			allowed:      []string{"", other},
			wantResolved: filepath.Join(other, "notes", "todo.md"),
			wantRelative: filepath.Join("notes", "todo.md"),
			wantBoundary: other,
		},
		{
			name:       "traversal out of allowed path",
			path:       other + "/../../../etc/passwd",
			cwd:        root,
			allowed:    []string{other},
			wantEscape: true,
		},
		{
			name:         "non-ascii space normalized",
			path:         "my\u00a0file.txt",
			cwd:          root,
			wantResolved: filepath.Join(root, "my file.txt"),
			wantRelative: "my file.txt",
			wantBoundary: root,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.path, tt.cwd, root, tt.allowed...)
			if tt.wantEscape {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrSandboxEscape), "error %v should wrap ErrSandboxEscape", err)

				var escape *EscapeError
				require.True(t, errors.As(err, &escape))
				assert.Equal(t, tt.path, escape.Path)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantResolved, got.Resolved)
			assert.Equal(t, tt.wantRelative, got.Relative)
			assert.Equal(t, tt.wantBoundary, got.Boundary)
		})
	}
}

func TestResolveTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Resolve("~/project/file.txt", home, filepath.Join(home, "project"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "project", "file.txt"), got.Resolved)
	assert.Equal(t, "file.txt", got.Relative)
}

func TestContains(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		target  string
		wantRel string
		want    bool
	}{
		{name: "exact match", base: "/home/user/.ssh", target: "/home/user/.ssh", wantRel: "", want: true},
		{name: "subdirectory", base: "/home/user/.ssh", target: "/home/user/.ssh/id_rsa", wantRel: "id_rsa", want: true},
		{name: "similar prefix", base: "/home/user/.ssh", target: "/home/user/.sshrc", want: false},
		{name: "completely different", base: "/home/user/.ssh", target: "/var/log", want: false},
		{name: "parent directory", base: "/home/user/.ssh", target: "/home/user", want: false},
		{name: "dotdot-prefixed name", base: "/srv", target: "/srv/..hidden", wantRel: "..hidden", want: true},
		{name: "nested", base: "/home/user/.ssh", target: "/home/user/.ssh/config.d/personal", wantRel: "config.d/personal", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, ok := Contains(filepath.FromSlash(tt.base), filepath.FromSlash(tt.target))
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, filepath.FromSlash(tt.wantRel), rel)
		})
	}
}

func TestResolveNoSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0644))

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skip("cannot create symlinks")
	}

	t.Run("regular file", func(t *testing.T) {
		got, err := ResolveNoSymlinks("src/main.go", root, root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("src", "main.go"), got.Relative)
	})

	t.Run("new file in missing directory", func(t *testing.T) {
		got, err := ResolveNoSymlinks("build/out/new.txt", root, root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "build", "out", "new.txt"), got.Resolved)
	})

	t.Run("symlink component rejected", func(t *testing.T) {
		_, err := ResolveNoSymlinks("escape/secret.txt", root, root)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSandboxEscape)
		assert.Contains(t, err.Error(), "symlink component")
	})

	t.Run("lexical resolve still admits the link", func(t *testing.T) {
		_, err := Resolve("escape/secret.txt", root, root)
		assert.NoError(t, err)
	})
}
