//go:build !windows

package container

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/faize-ai/hostguard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine knows only the images listed in present and logs every call.
// "pull" fails when failPull is set.
func stubEngine(t *testing.T, failPull bool, present ...string) (engine, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	engine = filepath.Join(dir, "engine")

	pull := "exit 0"
	if failPull {
		pull = "echo 'registry unreachable' >&2; exit 1"
	}
	known := ""
	if len(present) > 0 {
		known = "  case \"$3\" in " + strings.Join(present, "|") + ") exit 0 ;; esac\n"
	}
	script := "#!/bin/sh\n" +
		"echo \"$*\" >> " + logPath + "\n" +
		"case \"$1\" in\n" +
		"image)\n" +
		known +
		"  echo \"no such image: $3\" >&2; exit 1 ;;\n" +
		"pull) " + pull + " ;;\n" +
		"tag) exit 0 ;;\n" +
		"esac\n"
	require.NoError(t, os.WriteFile(engine, []byte(script), 0755))
	return engine, logPath
}

func calls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestEnsureImagePresent(t *testing.T) {
	engine, logPath := stubEngine(t, false, "team/agent:1")

	require.NoError(t, EnsureImage(context.Background(), engine, "team/agent:1"))
	assert.Equal(t, []string{"image inspect team/agent:1"}, calls(t, logPath))
}

func TestEnsureImageCreatesDefault(t *testing.T) {
	engine, logPath := stubEngine(t, false)

	require.NoError(t, EnsureImage(context.Background(), engine, config.DefaultImage))
	assert.Equal(t, []string{
		"image inspect " + config.DefaultImage,
		"pull " + config.DefaultBaseImage,
		"tag " + config.DefaultBaseImage + " " + config.DefaultImage,
	}, calls(t, logPath))
}

func TestEnsureImageMissingCustom(t *testing.T) {
	engine, logPath := stubEngine(t, false)

	err := EnsureImage(context.Background(), engine, "team/agent:missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageNotFound)
	assert.Contains(t, err.Error(), "team/agent:missing")
	assert.Equal(t, []string{"image inspect team/agent:missing"}, calls(t, logPath))
}

func TestEnsureImagePullFailure(t *testing.T) {
	engine, _ := stubEngine(t, true)

	err := EnsureImage(context.Background(), engine, config.DefaultImage)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrImageNotFound)
	assert.Contains(t, err.Error(), "registry unreachable")
}

func TestEnsureImageCancelled(t *testing.T) {
	engine, _ := stubEngine(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := EnsureImage(ctx, engine, config.DefaultImage)
	assert.ErrorIs(t, err, context.Canceled)
}
