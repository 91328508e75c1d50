// Package builder turns a source tree into a build artifact tree.
//
// The real work is done by an external site generator; ExecBuilder is a thin
// adapter around its invocation. The adapter adds nothing of its own to the
// output so the generator's determinism is preserved: identical source and
// generator version yield byte-identical artifact trees.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// Builder produces an artifact tree from a source tree and returns its path.
type Builder interface {
	Build(ctx context.Context, sourcePath string) (string, error)
}

// New selects the builder for the generator configuration: ExecBuilder when a
// command is configured, the built-in markdown renderer otherwise.
func New(cfg config.GeneratorConfig) Builder {
	if cfg.Command == "" {
		return &MarkdownBuilder{outputDir: cfg.OutputDir}
	}
	return &ExecBuilder{command: cfg.Command, args: cfg.Args, outputDir: cfg.OutputDir}
}

// ExecBuilder invokes an external site generator binary.
type ExecBuilder struct {
	command   string
	args      []string
	outputDir string // relative to the source tree
}

// NewExecBuilder returns an ExecBuilder for the given invocation.
func NewExecBuilder(command string, args []string, outputDir string) *ExecBuilder {
	return &ExecBuilder{command: command, args: args, outputDir: outputDir}
}

// Build runs the generator with the source tree as working directory and
// returns the artifact tree path. The generator owns the artifact layout; the
// adapter only checks that output was produced.
func (b *ExecBuilder) Build(ctx context.Context, sourcePath string) (string, error) {
	if _, err := exec.LookPath(b.command); err != nil {
		return "", errors.BuildFailed(b.command, err)
	}

	artifactPath := filepath.Join(sourcePath, b.outputDir)

	// Stale output from a previous generator run must not leak into this one.
	if err := os.RemoveAll(artifactPath); err != nil {
		return "", errors.BuildFailed(b.command, err)
	}

	cmd := exec.CommandContext(ctx, b.command, b.args...)
	cmd.Dir = sourcePath
	var stderr bytes.Buffer
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	slog.Info("Running site generator",
		slog.String("command", b.command),
		logfields.Path(sourcePath))

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", errors.BuildFailed(b.command, err)
	}

	info, err := os.Stat(artifactPath)
	if err != nil || !info.IsDir() {
		return "", errors.BuildOutputMissing(artifactPath)
	}

	slog.Info("Site generated", logfields.Path(artifactPath))
	return artifactPath, nil
}
