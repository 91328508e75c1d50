package config

import (
	"fmt"
	"os"
)

const starterConfig = `# sitepub configuration
source:
  path: ./content
  # Or track a remote content repository instead:
  # repo:
  #   url: https://example.com/you/content.git
  #   branch: main

generator:
  # External site generator invoked with the source tree as working directory.
  # Leave command empty to use the built-in markdown renderer.
  command: hugo
  args: ["--minify"]
  output_dir: public

descriptor:
  # Automation descriptor copied verbatim into the published output.
  source: .automation/deploy.yaml
  destination: .automation

publish:
  url: https://example.com/you/site.git
  ref: gh-pages
  # Ordered path patterns removed from the artifact before publishing.
  # Empty means the full tree is published.
  exclude: []
  # Paths already on the hosting ref to keep across replaces (e.g. CNAME).
  preserve: []
  always_revision: false
  auth:
    type: token
    token_env: SITEPUB_TOKEN

verify:
  enabled: false
  fail_on_broken: false

daemon:
  listen: :8080
  interval: ""
  debounce: 2s
  history: sitepub.db

notify:
  nats_url: ""
  subject: sitepub.runs
`

// Init writes a commented starter configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}
