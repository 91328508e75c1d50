package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Validate checks the configuration for structural problems. It is called by
// Load after defaults are applied but is exported so tests and the daemon's
// reload path can re-validate a mutated config.
func (c *Config) Validate() error {
	if c.Source.Path == "" && c.Source.Repo == nil {
		return fmt.Errorf("source: either path or repo must be set")
	}
	if c.Source.Repo != nil && c.Source.Repo.URL == "" {
		return fmt.Errorf("source.repo: url is required")
	}

	if filepath.IsAbs(c.Generator.OutputDir) {
		return fmt.Errorf("generator.output_dir must be relative to the source tree: %s", c.Generator.OutputDir)
	}
	if strings.Contains(c.Generator.OutputDir, "..") {
		return fmt.Errorf("generator.output_dir must not escape the source tree: %s", c.Generator.OutputDir)
	}

	if c.Descriptor.Source == "" {
		return fmt.Errorf("descriptor.source is required")
	}
	if filepath.IsAbs(c.Descriptor.Destination) || strings.Contains(c.Descriptor.Destination, "..") {
		return fmt.Errorf("descriptor.destination must be a relative path inside the artifact tree: %s", c.Descriptor.Destination)
	}

	if c.Publish.URL == "" {
		return fmt.Errorf("publish.url is required")
	}
	if c.Publish.Ref == "" {
		return fmt.Errorf("publish.ref is required")
	}
	for _, pattern := range c.Publish.Exclude {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("publish.exclude: invalid pattern %q: %w", pattern, err)
		}
	}
	for _, pattern := range c.Publish.Preserve {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("publish.preserve: invalid pattern %q: %w", pattern, err)
		}
	}
	if err := validateAuth(c.Publish.Auth, "publish.auth"); err != nil {
		return err
	}
	if c.Source.Repo != nil {
		if err := validateAuth(c.Source.Repo.Auth, "source.repo.auth"); err != nil {
			return err
		}
	}

	if c.Daemon.Interval != "" {
		if _, err := time.ParseDuration(c.Daemon.Interval); err != nil {
			return fmt.Errorf("daemon.interval: %w", err)
		}
	}
	if c.Daemon.Debounce != "" {
		if _, err := time.ParseDuration(c.Daemon.Debounce); err != nil {
			return fmt.Errorf("daemon.debounce: %w", err)
		}
	}

	return nil
}

func validateAuth(a *AuthConfig, field string) error {
	if a == nil {
		return nil
	}
	switch a.Type {
	case "", "none", "ssh":
		return nil
	case "token":
		if a.TokenEnv == "" {
			return fmt.Errorf("%s: token type requires token_env", field)
		}
	case "basic":
		if a.Username == "" || a.PasswordEnv == "" {
			return fmt.Errorf("%s: basic type requires username and password_env", field)
		}
	default:
		return fmt.Errorf("%s: unsupported type %q", field, a.Type)
	}
	return nil
}
