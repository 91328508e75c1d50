// Package config loads and validates the sitepub configuration file.
//
// Configuration is YAML with environment variable expansion: ${VAR} references
// in the file are substituted from the process environment before parsing, and
// a .env/.env.local file is loaded first if present. Credentials are configured
// as environment variable NAMES (token_env), never as literal values, so a
// committed config file cannot leak a token.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Descriptor DescriptorConfig `yaml:"descriptor"`
	Publish    PublishConfig    `yaml:"publish"`
	Verify     VerifyConfig     `yaml:"verify"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// SourceConfig locates the authored source tree. Exactly one of Path or Repo
// is used; Repo wins when both are set so a daemon can track a remote tree.
type SourceConfig struct {
	Path string      `yaml:"path,omitempty"`
	Repo *RepoConfig `yaml:"repo,omitempty"`
}

// RepoConfig describes a git repository to clone as the source tree.
type RepoConfig struct {
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch,omitempty"`
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// GeneratorConfig describes how to invoke the external site generator.
// An empty Command selects the built-in markdown renderer.
type GeneratorConfig struct {
	Command   string   `yaml:"command,omitempty"`
	Args      []string `yaml:"args,omitempty"`
	OutputDir string   `yaml:"output_dir,omitempty"` // relative to the source tree
}

// DescriptorConfig locates the automation descriptor and its destination
// inside the artifact tree. The descriptor content is opaque; it is copied
// verbatim and never parsed.
type DescriptorConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination,omitempty"` // relative dir inside the artifact tree
}

// PublishConfig describes the hosting repository and ref to publish to.
type PublishConfig struct {
	URL            string      `yaml:"url"`
	Ref            string      `yaml:"ref,omitempty"`
	Exclude        []string    `yaml:"exclude,omitempty"`  // ordered path patterns; empty excludes nothing
	Preserve       []string    `yaml:"preserve,omitempty"` // hosting-ref paths retained across replaces
	AlwaysRevision bool        `yaml:"always_revision,omitempty"`
	Auth           *AuthConfig `yaml:"auth,omitempty"`
	AuthorName     string      `yaml:"author_name,omitempty"`
	AuthorEmail    string      `yaml:"author_email,omitempty"`
}

// VerifyConfig controls the optional post-build link verification stage.
type VerifyConfig struct {
	Enabled      bool `yaml:"enabled,omitempty"`
	FailOnBroken bool `yaml:"fail_on_broken,omitempty"`
}

// DaemonConfig controls the long-running trigger mode.
// Durations are strings ("2s", "5m") validated at load time.
type DaemonConfig struct {
	Listen   string `yaml:"listen,omitempty"`
	Interval string `yaml:"interval,omitempty"` // periodic rebuild, empty disables
	Debounce string `yaml:"debounce,omitempty"` // quiet window for source watch events
	Watch    *bool  `yaml:"watch,omitempty"`    // watch source.path for changes (local sources only)
	History  string `yaml:"history,omitempty"`  // sqlite run-history path, empty uses in-memory
}

// NotifyConfig controls optional NATS run notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// IntervalDuration returns the parsed rebuild interval, or zero when disabled.
func (d DaemonConfig) IntervalDuration() time.Duration {
	if d.Interval == "" {
		return 0
	}
	dur, err := time.ParseDuration(d.Interval)
	if err != nil {
		return 0
	}
	return dur
}

// DebounceDuration returns the parsed watch debounce window.
func (d DaemonConfig) DebounceDuration() time.Duration {
	dur, err := time.ParseDuration(d.Debounce)
	if err != nil || dur <= 0 {
		return defaultDebounce
	}
	return dur
}

// WatchEnabled reports whether source watching is on (default true for local sources).
func (d DaemonConfig) WatchEnabled() bool {
	if d.Watch == nil {
		return true
	}
	return *d.Watch
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
