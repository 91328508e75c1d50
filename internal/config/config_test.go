package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
source:
  path: ./content
descriptor:
  source: .automation/deploy.yaml
publish:
  url: https://example.com/site.git
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Generator.OutputDir != "public" {
		t.Errorf("output_dir default = %q", cfg.Generator.OutputDir)
	}
	if cfg.Descriptor.Destination != ".automation" {
		t.Errorf("destination default = %q", cfg.Descriptor.Destination)
	}
	if cfg.Publish.Ref != "gh-pages" {
		t.Errorf("ref default = %q", cfg.Publish.Ref)
	}
	if len(cfg.Publish.Exclude) != 0 {
		t.Errorf("exclusion filter should default to empty, got %v", cfg.Publish.Exclude)
	}
	if cfg.Daemon.DebounceDuration() != 2*time.Second {
		t.Errorf("debounce default = %v", cfg.Daemon.DebounceDuration())
	}
	if !cfg.Daemon.WatchEnabled() {
		t.Error("watch should default to enabled")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("SITEPUB_TEST_URL", "https://env.example.com/site.git")
	cfg, err := Load(writeConfig(t, `
source:
  path: ./content
descriptor:
  source: deploy.yaml
publish:
  url: ${SITEPUB_TEST_URL}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Publish.URL != "https://env.example.com/site.git" {
		t.Fatalf("env expansion failed: %q", cfg.Publish.URL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no source", func(c *Config) { c.Source = SourceConfig{} }, "source"},
		{"repo without url", func(c *Config) { c.Source = SourceConfig{Repo: &RepoConfig{}} }, "url is required"},
		{"absolute output dir", func(c *Config) { c.Generator.OutputDir = "/tmp/out" }, "output_dir"},
		{"escaping output dir", func(c *Config) { c.Generator.OutputDir = "../out" }, "output_dir"},
		{"no descriptor", func(c *Config) { c.Descriptor.Source = "" }, "descriptor.source"},
		{"absolute destination", func(c *Config) { c.Descriptor.Destination = "/etc" }, "destination"},
		{"no publish url", func(c *Config) { c.Publish.URL = "" }, "publish.url"},
		{"bad exclude pattern", func(c *Config) { c.Publish.Exclude = []string{"[unclosed"} }, "invalid pattern"},
		{"token without env", func(c *Config) { c.Publish.Auth = &AuthConfig{Type: "token"} }, "token_env"},
		{"unknown auth type", func(c *Config) { c.Publish.Auth = &AuthConfig{Type: "kerberos"} }, "unsupported type"},
		{"bad interval", func(c *Config) { c.Daemon.Interval = "soon" }, "daemon.interval"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Source:     SourceConfig{Path: "./content"},
				Descriptor: DescriptorConfig{Source: "deploy.yaml"},
				Publish:    PublishConfig{URL: "https://example.com/site.git"},
			}
			cfg.applyDefaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthTokenResolution(t *testing.T) {
	auth := &AuthConfig{Type: "token", TokenEnv: "SITEPUB_TEST_TOKEN"}

	if _, err := auth.Token(); err == nil {
		t.Fatal("unset env var should be an error")
	}

	t.Setenv("SITEPUB_TEST_TOKEN", "s3cret")
	tok, err := auth.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "s3cret" {
		t.Fatalf("Token = %q", tok)
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := Init(path, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(path, false); err == nil {
		t.Fatal("second Init without force should fail")
	}
	if err := Init(path, true); err != nil {
		t.Fatalf("Init with force: %v", err)
	}
}
