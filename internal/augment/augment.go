// Package augment injects the automation descriptor into the artifact tree.
//
// The descriptor is opaque to the pipeline: it is copied verbatim, never
// parsed. The operation is idempotent ensure-directory-then-copy and touches
// no other path in the artifact tree. Writes are atomic so a crash mid-copy
// never leaves a torn descriptor for the publisher to pick up.
package augment

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// Augmentor adds auxiliary files to an artifact tree before publishing.
type Augmentor interface {
	Augment(ctx context.Context, artifactPath string) error
}

// DescriptorAugmentor copies the automation descriptor into a fixed
// subdirectory of the artifact tree.
type DescriptorAugmentor struct {
	sourcePath     string // descriptor location, relative paths resolve against the source tree
	destinationDir string // relative directory inside the artifact tree
}

// New returns a DescriptorAugmentor from descriptor configuration.
// sourceRoot anchors a relative descriptor source path.
func New(cfg config.DescriptorConfig, sourceRoot string) *DescriptorAugmentor {
	src := cfg.Source
	if !filepath.IsAbs(src) {
		src = filepath.Join(sourceRoot, src)
	}
	return &DescriptorAugmentor{
		sourcePath:     src,
		destinationDir: cfg.Destination,
	}
}

// Augment ensures the destination directory exists and copies the descriptor
// into it, overwriting any existing file at that path.
func (a *DescriptorAugmentor) Augment(_ context.Context, artifactPath string) error {
	data, err := os.ReadFile(a.sourcePath)
	if err != nil {
		return errors.DescriptorMissing(a.sourcePath, err)
	}

	destDir := filepath.Join(artifactPath, a.destinationDir)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return errors.AugmentWriteFailed(destDir, err)
	}

	destPath := filepath.Join(destDir, filepath.Base(a.sourcePath))
	if err := atomic.WriteFile(destPath, bytes.NewReader(data)); err != nil {
		return errors.AugmentWriteFailed(destPath, err)
	}

	slog.Info("Descriptor injected",
		logfields.File(filepath.Base(a.sourcePath)),
		logfields.Path(destPath))
	return nil
}

// DestinationPath returns the descriptor's path relative to the artifact root.
func (a *DescriptorAugmentor) DestinationPath() string {
	return filepath.Join(a.destinationDir, filepath.Base(a.sourcePath))
}
