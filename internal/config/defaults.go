package config

import "time"

const (
	defaultOutputDir      = "public"
	defaultDestination    = ".automation"
	defaultRef            = "gh-pages"
	defaultListen         = ":8080"
	defaultDebounceString = "2s"
	defaultAuthorName     = "sitepub"
	defaultAuthorEmail    = "sitepub@localhost"
	defaultNotifySubject  = "sitepub.runs"
)

const defaultDebounce = 2 * time.Second

// applyDefaults fills in defaults after unmarshal.
func (c *Config) applyDefaults() {
	if c.Generator.OutputDir == "" {
		c.Generator.OutputDir = defaultOutputDir
	}
	if c.Descriptor.Destination == "" {
		c.Descriptor.Destination = defaultDestination
	}
	if c.Publish.Ref == "" {
		c.Publish.Ref = defaultRef
	}
	if c.Publish.AuthorName == "" {
		c.Publish.AuthorName = defaultAuthorName
	}
	if c.Publish.AuthorEmail == "" {
		c.Publish.AuthorEmail = defaultAuthorEmail
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = defaultListen
	}
	if c.Daemon.Debounce == "" {
		c.Daemon.Debounce = defaultDebounceString
	}
	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		c.Notify.Subject = defaultNotifySubject
	}
	if c.Source.Repo != nil && c.Source.Repo.Branch == "" {
		c.Source.Repo.Branch = "main"
	}
}
