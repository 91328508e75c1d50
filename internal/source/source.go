// Package source materializes the authored source tree for a pipeline run.
//
// Two acquirers exist: LocalSource validates an existing directory, GitSource
// clones a content repository into the run workspace. Either way the returned
// path is treated as read-only for the remainder of the run.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/git"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// Acquirer materializes a source tree and returns its path.
type Acquirer interface {
	Acquire(ctx context.Context) (string, error)
}

// NewAcquirer builds the acquirer matching the source configuration.
// workspaceDir is the per-run scratch directory for clones.
func NewAcquirer(cfg config.SourceConfig, workspaceDir string) Acquirer {
	if cfg.Repo != nil {
		return &GitSource{repo: *cfg.Repo, workspaceDir: workspaceDir}
	}
	return &LocalSource{path: cfg.Path}
}

// LocalSource uses an existing local directory as the source tree.
type LocalSource struct {
	path string
}

// NewLocalSource returns a LocalSource for path.
func NewLocalSource(path string) *LocalSource {
	return &LocalSource{path: path}
}

// Acquire validates that the directory exists and is readable.
func (s *LocalSource) Acquire(_ context.Context) (string, error) {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return "", errors.SourceUnavailable(s.path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.SourceUnavailable(abs, err)
	}
	if !info.IsDir() {
		return "", errors.SourceUnavailable(abs, fmt.Errorf("not a directory"))
	}

	// A directory we cannot list is as good as missing.
	if _, err := os.ReadDir(abs); err != nil {
		return "", errors.SourceUnavailable(abs, err)
	}

	slog.Debug("Using local source tree", logfields.Path(abs))
	return abs, nil
}

// GitSource clones a content repository into the workspace.
type GitSource struct {
	repo         config.RepoConfig
	workspaceDir string
}

// NewGitSource returns a GitSource cloning repo into workspaceDir.
func NewGitSource(repo config.RepoConfig, workspaceDir string) *GitSource {
	return &GitSource{repo: repo, workspaceDir: workspaceDir}
}

// Acquire clones the configured repository and returns the checkout path.
// The clone is fresh every run; no incremental state is kept.
func (s *GitSource) Acquire(ctx context.Context) (string, error) {
	repoPath := filepath.Join(s.workspaceDir, "source")

	if err := os.RemoveAll(repoPath); err != nil {
		return "", errors.SourceUnavailable(repoPath, err)
	}

	cloneOptions := &gogit.CloneOptions{
		URL: s.repo.URL,
	}
	if s.repo.Branch != "" {
		cloneOptions.ReferenceName = git.BranchRef(s.repo.Branch)
		cloneOptions.SingleBranch = true
	}

	auth, err := git.AuthMethod(s.repo.Auth)
	if err != nil {
		return "", errors.SourceCloneFailed(s.repo.URL, err)
	}
	cloneOptions.Auth = auth

	slog.Debug("Cloning source repository",
		logfields.URL(s.repo.URL),
		slog.String("branch", s.repo.Branch),
		logfields.Path(repoPath))

	repository, err := gogit.PlainCloneContext(ctx, repoPath, false, cloneOptions)
	if err != nil {
		return "", errors.SourceCloneFailed(s.repo.URL, err)
	}

	if ref, err := repository.Head(); err == nil {
		slog.Info("Source repository cloned",
			logfields.URL(s.repo.URL),
			logfields.Revision(shortHash(ref.Hash())),
			logfields.Path(repoPath))
	}

	return repoPath, nil
}

func shortHash(h plumbing.Hash) string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
