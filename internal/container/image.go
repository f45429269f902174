package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/faize-ai/hostguard/internal/config"
)

// ErrImageNotFound is returned when the configured image is not present
// locally and cannot be created from the default base image.
var ErrImageNotFound = errors.New("sandbox image not found")

// EnsureImage makes sure image exists for engine. The default sandbox image
// is created on demand by pulling and tagging config.DefaultBaseImage; any
// other missing image is an error the operator has to fix.
func EnsureImage(ctx context.Context, engine, image string) error {
	if err := engineCommand(ctx, engine, "image", "inspect", image); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	if image != config.DefaultImage {
		return fmt.Errorf("%w: %s (build or pull it first)", ErrImageNotFound, image)
	}
	if err := engineCommand(ctx, engine, "pull", config.DefaultBaseImage); err != nil {
		return fmt.Errorf("pull %s: %w", config.DefaultBaseImage, err)
	}
	if err := engineCommand(ctx, engine, "tag", config.DefaultBaseImage, image); err != nil {
		return fmt.Errorf("tag %s as %s: %w", config.DefaultBaseImage, image, err)
	}
	return nil
}

func engineCommand(ctx context.Context, engine string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, engine, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", engine, args[0], err, msg)
		}
		return fmt.Errorf("%s %s: %w", engine, args[0], err)
	}
	return nil
}
