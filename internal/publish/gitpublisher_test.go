package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
)

func initBareRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func newPublisher(t *testing.T, remote string, mutate func(*config.PublishConfig)) *GitPublisher {
	t.Helper()
	cfg := config.PublishConfig{
		URL:         remote,
		Ref:         "gh-pages",
		AuthorName:  "sitepub",
		AuthorEmail: "sitepub@localhost",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewGitPublisher(cfg, t.TempDir())
}

func writeArtifact(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// publishedTree reads the full tree of the hosting ref from the bare remote.
func publishedTree(t *testing.T, remote, ref string) map[string]string {
	t.Helper()
	repo, err := gogit.PlainOpen(remote)
	require.NoError(t, err)

	branchRef, err := repo.Reference(plumbing.NewBranchReferenceName(ref), true)
	require.NoError(t, err)

	commit, err := repo.CommitObject(branchRef.Hash())
	require.NoError(t, err)
	tree, err := commit.Tree()
	require.NoError(t, err)

	files := make(map[string]string)
	require.NoError(t, tree.Files().ForEach(func(f *object.File) error {
		content, err := f.Contents()
		if err != nil {
			return err
		}
		files[f.Name] = content
		return nil
	}))
	return files
}

// advanceRef commits and pushes files to the hosting ref directly, standing in
// for an out-of-process writer that does not hold the publisher's ref lock.
func advanceRef(t *testing.T, remote, ref string, files map[string]string) plumbing.Hash {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainClone(dir, false, &gogit.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(ref),
		SingleBranch:  true,
	})
	require.NoError(t, err)

	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&gogit.AddOptions{All: true}))
	sig := &object.Signature{Name: "writer", Email: "writer@localhost", When: time.Now()}
	hash, err := wt.Commit("concurrent update", &gogit.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)

	branch := plumbing.NewBranchReferenceName(ref)
	require.NoError(t, repo.Push(&gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{gitcfg.RefSpec(fmt.Sprintf("%s:%s", branch, branch))},
	}))
	return hash
}

func refHash(t *testing.T, remote, ref string) plumbing.Hash {
	t.Helper()
	repo, err := gogit.PlainOpen(remote)
	require.NoError(t, err)
	branchRef, err := repo.Reference(plumbing.NewBranchReferenceName(ref), true)
	require.NoError(t, err)
	return branchRef.Hash()
}

func TestPublishBootstrapsRef(t *testing.T) {
	remote := initBareRemote(t)
	artifact := writeArtifact(t, map[string]string{
		"index.html":              "<html>A</html>",
		"b.html":                  "<html>B</html>",
		".automation/deploy.yaml": "rule: X",
	})

	out, err := newPublisher(t, remote, nil).Publish(context.Background(), artifact)
	require.NoError(t, err)
	assert.False(t, out.NoChange)
	assert.Equal(t, "gh-pages", out.Ref)
	assert.Equal(t, 3, out.Files)

	tree := publishedTree(t, remote, "gh-pages")
	assert.Equal(t, map[string]string{
		"index.html":              "<html>A</html>",
		"b.html":                  "<html>B</html>",
		".automation/deploy.yaml": "rule: X",
	}, tree)

	// The bootstrap commit has no parents.
	repo, err := gogit.PlainOpen(remote)
	require.NoError(t, err)
	commit, err := repo.CommitObject(refHash(t, remote, "gh-pages"))
	require.NoError(t, err)
	assert.Zero(t, commit.NumParents())
}

func TestPublishFullReplace(t *testing.T) {
	remote := initBareRemote(t)
	p := newPublisher(t, remote, nil)

	first := writeArtifact(t, map[string]string{"old.html": "old", "kept.html": "v1"})
	_, err := p.Publish(context.Background(), first)
	require.NoError(t, err)

	second := writeArtifact(t, map[string]string{"kept.html": "v2", "new.html": "new"})
	out, err := newPublisher(t, remote, nil).Publish(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, out.NoChange)

	// The hosting ref's tree equals the new artifact tree exactly:
	// stale paths are gone, changed paths updated, nothing extra.
	assert.Equal(t, map[string]string{
		"kept.html": "v2",
		"new.html":  "new",
	}, publishedTree(t, remote, "gh-pages"))
}

func TestPublishUnchangedTreeIsNoOp(t *testing.T) {
	remote := initBareRemote(t)
	files := map[string]string{"index.html": "same"}

	_, err := newPublisher(t, remote, nil).Publish(context.Background(), writeArtifact(t, files))
	require.NoError(t, err)
	before := refHash(t, remote, "gh-pages")

	out, err := newPublisher(t, remote, nil).Publish(context.Background(), writeArtifact(t, files))
	require.NoError(t, err)
	assert.True(t, out.NoChange)
	assert.Equal(t, before.String(), out.Revision)
	assert.Equal(t, before, refHash(t, remote, "gh-pages"), "no-op publish must not move the ref")
}

func TestPublishAlwaysRevision(t *testing.T) {
	remote := initBareRemote(t)
	files := map[string]string{"index.html": "same"}
	mutate := func(c *config.PublishConfig) { c.AlwaysRevision = true }

	_, err := newPublisher(t, remote, mutate).Publish(context.Background(), writeArtifact(t, files))
	require.NoError(t, err)
	before := refHash(t, remote, "gh-pages")

	out, err := newPublisher(t, remote, mutate).Publish(context.Background(), writeArtifact(t, files))
	require.NoError(t, err)
	assert.False(t, out.NoChange)
	assert.NotEqual(t, before, refHash(t, remote, "gh-pages"), "always_revision must create a new revision")
	assert.Equal(t, files, publishedTree(t, remote, "gh-pages"), "tree content stays identical")
}

func TestPublishExclusionFilter(t *testing.T) {
	remote := initBareRemote(t)
	artifact := writeArtifact(t, map[string]string{
		"index.html":      "page",
		"app.js.map":      "sourcemap",
		"drafts/wip.html": "draft",
	})

	out, err := newPublisher(t, remote, func(c *config.PublishConfig) {
		c.Exclude = []string{"*.map", "drafts"}
	}).Publish(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Files)

	assert.Equal(t, map[string]string{"index.html": "page"}, publishedTree(t, remote, "gh-pages"))
}

func TestPublishPreserveRetainsHostingPaths(t *testing.T) {
	remote := initBareRemote(t)

	// First publish places a CNAME on the hosting ref.
	_, err := newPublisher(t, remote, nil).Publish(context.Background(),
		writeArtifact(t, map[string]string{"index.html": "v1", "CNAME": "example.com"}))
	require.NoError(t, err)

	// Later artifact no longer carries the CNAME; preserve keeps it.
	_, err = newPublisher(t, remote, func(c *config.PublishConfig) {
		c.Preserve = []string{"CNAME"}
	}).Publish(context.Background(), writeArtifact(t, map[string]string{"index.html": "v2"}))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"index.html": "v2",
		"CNAME":      "example.com",
	}, publishedTree(t, remote, "gh-pages"))
}

func TestPublishTransportFailure(t *testing.T) {
	p := newPublisher(t, filepath.Join(t.TempDir(), "missing.git"), nil)
	_, err := p.Publish(context.Background(), writeArtifact(t, map[string]string{"a": "b"}))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPublish), "got %v", err)
	assert.True(t, errors.IsRetryable(err), "transport failures are retryable by the trigger")
}

func TestPublishIdempotentTrees(t *testing.T) {
	// Two consecutive successful runs over unchanged input leave an
	// identical published tree (and, with the no-op default, the same rev).
	remote := initBareRemote(t)
	files := map[string]string{"a.html": "A", "sub/b.html": "B"}

	_, err := newPublisher(t, remote, nil).Publish(context.Background(), writeArtifact(t, files))
	require.NoError(t, err)
	first := publishedTree(t, remote, "gh-pages")

	_, err = newPublisher(t, remote, nil).Publish(context.Background(), writeArtifact(t, files))
	require.NoError(t, err)
	second := publishedTree(t, remote, "gh-pages")

	assert.Equal(t, first, second)
}

func TestPublishConflictingWriterRejected(t *testing.T) {
	remote := initBareRemote(t)
	_, err := newPublisher(t, remote, nil).Publish(context.Background(),
		writeArtifact(t, map[string]string{"index.html": "v1"}))
	require.NoError(t, err)

	// A writer that advances the ref after this publisher observed its tip.
	var concurrent plumbing.Hash
	p := newPublisher(t, remote, nil)
	p.afterFetch = func() {
		concurrent = advanceRef(t, remote, "gh-pages", map[string]string{"index.html": "concurrent"})
	}

	_, err = p.Publish(context.Background(), writeArtifact(t, map[string]string{"index.html": "stale"}))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPublish), "got %v", err)
	assert.True(t, errors.IsRetryable(err), "conflicts are retryable by the trigger")

	pe, ok := err.(*errors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, "hosting ref changed by concurrent writer", pe.Message)

	// The hosting ref stays at the concurrent writer's revision; the stale
	// tree never lands.
	assert.Equal(t, concurrent, refHash(t, remote, "gh-pages"))
	assert.Equal(t, map[string]string{"index.html": "concurrent"}, publishedTree(t, remote, "gh-pages"))
}

func TestIsConflictClassification(t *testing.T) {
	conflicts := []error{
		fmt.Errorf("non-fast-forward update: refs/heads/gh-pages"),
		fmt.Errorf("remote ref refs/heads/gh-pages required to be aaaa but is bbbb"),
		fmt.Errorf("cannot lock ref 'refs/heads/gh-pages'"),
	}
	for _, err := range conflicts {
		assert.True(t, isConflict(err), "should classify as conflict: %v", err)
	}
	assert.False(t, isConflict(stderrors.New("connection refused")))
}

func TestRefLockSerializes(t *testing.T) {
	unlock := lockRef("url#ref")
	done := make(chan struct{})
	go func() {
		u := lockRef("url#ref")
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}
