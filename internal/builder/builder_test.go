package builder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
)

func TestExecBuilderSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	src := t.TempDir()

	b := NewExecBuilder("sh", []string{"-c", "mkdir -p public && printf hello > public/index.html"}, "public")
	artifact, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(artifact, "index.html"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("artifact content = %q", data)
	}
}

func TestExecBuilderRemovesStaleOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "public"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "public", "stale.html"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewExecBuilder("sh", []string{"-c", "mkdir -p public && printf new > public/index.html"}, "public")
	artifact, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := os.Stat(filepath.Join(artifact, "stale.html")); !os.IsNotExist(err) {
		t.Fatal("stale output should not survive a rebuild")
	}
}

func TestExecBuilderGeneratorFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	b := NewExecBuilder("sh", []string{"-c", "echo broken source >&2; exit 3"}, "public")
	_, err := b.Build(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected generator failure")
	}
	if !errors.IsCategory(err, errors.CategoryBuild) {
		t.Fatalf("expected build category, got %v", err)
	}
}

func TestExecBuilderMissingCommand(t *testing.T) {
	b := NewExecBuilder("definitely-not-a-generator", nil, "public")
	_, err := b.Build(context.Background(), t.TempDir())
	if err == nil || !errors.IsCategory(err, errors.CategoryBuild) {
		t.Fatalf("expected build error for missing binary, got %v", err)
	}
}

func TestExecBuilderNoOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	b := NewExecBuilder("sh", []string{"-c", "true"}, "public")
	_, err := b.Build(context.Background(), t.TempDir())
	if err == nil || !errors.IsCategory(err, errors.CategoryBuild) {
		t.Fatalf("expected build error for empty output, got %v", err)
	}
}

func TestMarkdownBuilderRendersTree(t *testing.T) {
	src := t.TempDir()
	writeSrc := func(rel, content string) {
		t.Helper()
		path := filepath.Join(src, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeSrc("README.md", "# Welcome\n\nHello.")
	writeSrc("guide/setup.md", "# Setup Guide\n\nSteps.")
	writeSrc("assets/style.css", "body {}")

	b := NewMarkdownBuilder("public")
	artifact, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	index, err := os.ReadFile(filepath.Join(artifact, "index.html"))
	if err != nil {
		t.Fatalf("README should become index.html: %v", err)
	}
	for _, want := range []string{"<title>Welcome</title>", "<h1>Welcome</h1>"} {
		if !contains(index, want) {
			t.Errorf("index.html missing %q", want)
		}
	}

	if _, err := os.Stat(filepath.Join(artifact, "guide", "setup.html")); err != nil {
		t.Errorf("nested page missing: %v", err)
	}
	css, err := os.ReadFile(filepath.Join(artifact, "assets", "style.css"))
	if err != nil || string(css) != "body {}" {
		t.Errorf("static asset not copied verbatim: %v %q", err, css)
	}
}

func TestMarkdownBuilderDeterministic(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "page.md"), []byte("# Page\n\ntext"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewMarkdownBuilder("public")

	first, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	one, err := os.ReadFile(filepath.Join(first, "page.html"))
	if err != nil {
		t.Fatal(err)
	}

	second, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	two, err := os.ReadFile(filepath.Join(second, "page.html"))
	if err != nil {
		t.Fatal(err)
	}

	if string(one) != string(two) {
		t.Fatal("rebuild of unchanged source must be byte-identical")
	}
}

func TestMarkdownBuilderSkipsOutputDir(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "page.md"), []byte("# P"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewMarkdownBuilder("public")
	if _, err := b.Build(context.Background(), src); err != nil {
		t.Fatalf("first build: %v", err)
	}
	artifact, err := b.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	// A previous artifact must never be re-ingested as content.
	if _, err := os.Stat(filepath.Join(artifact, "public")); !os.IsNotExist(err) {
		t.Fatal("output dir leaked into artifact tree")
	}
}

func TestNewSelectsBuilder(t *testing.T) {
	if _, ok := New(config.GeneratorConfig{OutputDir: "public"}).(*MarkdownBuilder); !ok {
		t.Fatal("empty command should select the builtin builder")
	}
	if _, ok := New(config.GeneratorConfig{Command: "hugo", OutputDir: "public"}).(*ExecBuilder); !ok {
		t.Fatal("command should select ExecBuilder")
	}
}

func TestPageTitleFallback(t *testing.T) {
	if got := pageTitle([]byte("no heading here"), "my-great_page.md"); got != "My Great Page" {
		t.Fatalf("pageTitle fallback = %q", got)
	}
}

func contains(b []byte, s string) bool {
	return strings.Contains(string(b), s)
}
