package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/git"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// GitPublisher publishes an artifact tree to a branch of a git repository.
//
// Strategy: init a scratch repository whose default branch is the hosting
// ref, fetch the ref's current tip (if any), materialize that tree, replace
// it with the filtered artifact tree, commit, and push. The push carries the
// previously observed remote tip as a required ref, so it fails over a
// conflicting concurrent writer instead of overwriting it.
type GitPublisher struct {
	url            string
	ref            string
	exclude        *PathFilter
	preserve       *PathFilter
	alwaysRevision bool
	auth           *config.AuthConfig
	authorName     string
	authorEmail    string
	workDir        string // per-run scratch dir for the checkout

	afterFetch func() // test seam, runs between observing the remote tip and pushing
}

// NewGitPublisher builds a publisher from publish configuration.
func NewGitPublisher(cfg config.PublishConfig, workDir string) *GitPublisher {
	return &GitPublisher{
		url:            cfg.URL,
		ref:            cfg.Ref,
		exclude:        NewPathFilter(cfg.Exclude),
		preserve:       NewPathFilter(cfg.Preserve),
		alwaysRevision: cfg.AlwaysRevision,
		auth:           cfg.Auth,
		authorName:     cfg.AuthorName,
		authorEmail:    cfg.AuthorEmail,
		workDir:        workDir,
	}
}

// Publish replaces the hosting ref's tree with the effective artifact tree.
// When the effective tree equals the ref's current tree the publish is a
// no-op unless always_revision is configured.
func (p *GitPublisher) Publish(ctx context.Context, artifactPath string) (*Outcome, error) {
	unlock := lockRef(p.url + "#" + p.ref)
	defer unlock()

	auth, err := git.AuthMethod(p.auth)
	if err != nil {
		return nil, errors.PublishAuthFailed(p.ref, err)
	}

	checkout := filepath.Join(p.workDir, "publish")
	if err := os.RemoveAll(checkout); err != nil {
		return nil, errors.WorkspaceError("clear publish checkout", err)
	}

	repo, err := gogit.PlainInitWithOptions(checkout, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: git.BranchRef(p.ref)},
	})
	if err != nil {
		return nil, errors.WorkspaceError("init publish checkout", err)
	}
	if _, err := repo.CreateRemote(&gitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{p.url},
	}); err != nil {
		return nil, errors.WorkspaceError("configure publish remote", err)
	}

	remoteHash, err := p.fetchRef(ctx, repo, auth)
	if err != nil {
		return nil, err
	}
	if p.afterFetch != nil {
		p.afterFetch()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.WorkspaceError("open publish worktree", err)
	}

	if remoteHash != plumbing.ZeroHash {
		// Materialize the ref's current tree so unchanged-tree detection and
		// preserved paths see the real remote state.
		if err := repo.Storer.SetReference(plumbing.NewHashReference(git.BranchRef(p.ref), remoteHash)); err != nil {
			return nil, errors.WorkspaceError("set publish ref", err)
		}
		if err := wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: remoteHash}); err != nil {
			return nil, errors.WorkspaceError("reset publish checkout", err)
		}
	}

	for _, pattern := range p.exclude.patterns {
		slog.Debug("Excluding artifact paths", logfields.Pattern(pattern))
	}

	if err := clearTree(checkout, p.preserve); err != nil {
		return nil, errors.WorkspaceError("clear previous tree", err)
	}
	files, err := copyTree(artifactPath, checkout, p.exclude)
	if err != nil {
		return nil, errors.WorkspaceError("copy artifact tree", err)
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return nil, errors.WorkspaceError("stage effective tree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, errors.WorkspaceError("compute tree status", err)
	}

	if status.IsClean() && !p.alwaysRevision {
		slog.Info("Hosting ref already matches artifact tree, skipping publish",
			logfields.Ref(p.ref),
			logfields.Revision(remoteHash.String()))
		return &Outcome{Ref: p.ref, Revision: remoteHash.String(), Files: files, NoChange: true}, nil
	}

	sig := &object.Signature{Name: p.authorName, Email: p.authorEmail, When: time.Now()}
	commit, err := wt.Commit(fmt.Sprintf("Publish %d files", files), &gogit.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: p.alwaysRevision,
	})
	if err != nil {
		return nil, errors.WorkspaceError("commit effective tree", err)
	}

	if err := p.push(ctx, repo, auth, remoteHash); err != nil {
		return nil, err
	}

	slog.Info("Published",
		logfields.Ref(p.ref),
		logfields.Revision(commit.String()),
		slog.Int("files", files))
	return &Outcome{Ref: p.ref, Revision: commit.String(), Files: files}, nil
}

// fetchRef fetches the hosting ref's tip. A missing ref or an entirely empty
// remote yields ZeroHash: the first publish bootstraps the branch.
func (p *GitPublisher) fetchRef(ctx context.Context, repo *gogit.Repository, auth transport.AuthMethod) (plumbing.Hash, error) {
	refspec := gitcfg.RefSpec(fmt.Sprintf("%s:refs/remotes/origin/%s", git.BranchRef(p.ref), p.ref))
	err := repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{refspec},
		Auth:       auth,
	})

	switch {
	case err == nil, stderrors.Is(err, gogit.NoErrAlreadyUpToDate):
	case stderrors.Is(err, transport.ErrEmptyRemoteRepository),
		stderrors.Is(err, gogit.NoMatchingRefSpecError{}):
		slog.Info("Hosting ref does not exist yet, will be created",
			logfields.Ref(p.ref), logfields.URL(p.url))
		return plumbing.ZeroHash, nil
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed):
		return plumbing.ZeroHash, errors.PublishAuthFailed(p.ref, err)
	default:
		return plumbing.ZeroHash, errors.PublishTransportFailed(p.ref, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", p.ref), true)
	if err != nil {
		if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, errors.PublishTransportFailed(p.ref, err)
	}
	return remoteRef.Hash(), nil
}

// push updates the hosting ref. The previously fetched tip is passed as a
// required remote ref so a concurrent writer surfaces as a conflict.
func (p *GitPublisher) push(ctx context.Context, repo *gogit.Repository, auth transport.AuthMethod, expected plumbing.Hash) error {
	branch := git.BranchRef(p.ref)
	opts := &gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{gitcfg.RefSpec(fmt.Sprintf("%s:%s", branch, branch))},
		Auth:       auth,
	}
	if expected != plumbing.ZeroHash {
		opts.RequireRemoteRefs = []gitcfg.RefSpec{gitcfg.RefSpec(fmt.Sprintf("%s:%s", expected.String(), branch))}
	}

	err := repo.PushContext(ctx, opts)
	switch {
	case err == nil, stderrors.Is(err, gogit.NoErrAlreadyUpToDate):
		return nil
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed):
		return errors.PublishAuthFailed(p.ref, err)
	case isConflict(err):
		return errors.PublishConflict(p.ref, err)
	default:
		return errors.PublishTransportFailed(p.ref, err)
	}
}

// isConflict recognizes a rejected update caused by a concurrent writer.
func isConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "required to be") ||
		strings.Contains(msg, "cannot lock ref")
}

// clearTree removes everything under dir except the .git directory and paths
// matching the preserve filter.
func clearTree(dir string, preserve *PathFilter) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // removed with its parent
			}
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" && filepath.Dir(path) == dir {
				return filepath.SkipDir
			}
			if preserve.Matches(rel) {
				return filepath.SkipDir
			}
			return nil // descend; empty dirs are invisible to git anyway
		}
		if preserve.Matches(rel) {
			return nil
		}
		return os.Remove(path)
	})
}

// copyTree copies the artifact into dir, skipping excluded paths and paths
// already held by the preserve pass. Returns the number of files copied.
func copyTree(artifact, dir string, exclude *PathFilter) (int, error) {
	files := 0
	err := filepath.WalkDir(artifact, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(artifact, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if exclude.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		dst := filepath.Join(dir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o750)
		}
		if _, err := os.Lstat(dst); err == nil {
			// Left behind by the preserve pass; preserved content wins.
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
			return err
		}
		files++
		return nil
	})
	return files, err
}
