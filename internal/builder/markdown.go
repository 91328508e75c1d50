package builder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// MarkdownBuilder is the built-in fallback generator for plain markdown trees.
// It renders every .md file to an .html page and copies everything else
// verbatim as a static asset. Output is a pure function of the input tree, so
// repeated builds of unchanged source are byte-identical.
type MarkdownBuilder struct {
	outputDir string
}

// NewMarkdownBuilder returns a MarkdownBuilder writing into outputDir
// (relative to the source tree).
func NewMarkdownBuilder(outputDir string) *MarkdownBuilder {
	return &MarkdownBuilder{outputDir: outputDir}
}

var titleCaser = cases.Title(language.English)

// Build renders the source tree into sourcePath/outputDir.
func (b *MarkdownBuilder) Build(ctx context.Context, sourcePath string) (string, error) {
	artifactPath := filepath.Join(sourcePath, b.outputDir)

	if err := os.RemoveAll(artifactPath); err != nil {
		return "", errors.BuildFailed("builtin", err)
	}
	if err := os.MkdirAll(artifactPath, 0o750); err != nil {
		return "", errors.BuildFailed("builtin", err)
	}

	pages := 0
	err := filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		// The output dir and VCS metadata are not content.
		if d.IsDir() {
			if rel == b.outputDir || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.EqualFold(filepath.Ext(path), ".md") {
			pages++
			return b.renderPage(path, filepath.Join(artifactPath, htmlName(rel)))
		}
		return copyFile(path, filepath.Join(artifactPath, rel))
	})
	if err != nil {
		return "", errors.BuildFailed("builtin", err)
	}

	slog.Info("Rendered markdown tree",
		slog.Int("pages", pages),
		logfields.Path(artifactPath))
	return artifactPath, nil
}

// renderPage converts one markdown file into a standalone HTML page.
func (b *MarkdownBuilder) renderPage(src, dst string) error {
	body, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	var rendered bytes.Buffer
	if err := goldmark.Convert(body, &rendered); err != nil {
		return fmt.Errorf("render %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", pageTitle(body, src))
	page.Write(rendered.Bytes())
	page.WriteString("</body>\n</html>\n")

	return os.WriteFile(dst, page.Bytes(), 0o644)
}

// pageTitle takes the first ATX heading, falling back to a title-cased file name.
func pageTitle(body []byte, path string) string {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return titleCaser.String(strings.ReplaceAll(strings.ReplaceAll(base, "-", " "), "_", " "))
}

// htmlName maps a markdown relative path to its page path. README files
// become index pages for their directory.
func htmlName(rel string) string {
	dir, file := filepath.Split(rel)
	base := strings.TrimSuffix(file, filepath.Ext(file))
	if strings.EqualFold(base, "readme") {
		base = "index"
	}
	return filepath.Join(dir, base+".html")
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
