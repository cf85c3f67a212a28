package changes

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
}

func newTestRepo(t *testing.T) *testRepo {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo}
}

func (r *testRepo) commit(msg string, files ...string) plumbing.Hash {
	r.t.Helper()

	wt, err := r.repo.Worktree()
	require.NoError(r.t, err)

	for _, file := range files {
		path := filepath.Join(r.dir, file)
		require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(r.t, os.WriteFile(path, []byte(msg+"\n"), 0o644))
		_, err := wt.Add(file)
		require.NoError(r.t, err)
	}

	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(r.t, err)
	return hash
}

func TestNativeGit(t *testing.T) {
	r := newTestRepo(t)
	first := r.commit("first", "README.md")
	second := r.commit("second", "cloud-formation/app/bucket/deployment-config.yaml", "README.md")
	third := r.commit("third", "cloud-formation/app/queue/deployment-config.yml")

	g := NativeGit{Dir: r.dir}
	ctx := context.Background()

	parent, err := g.Parent(ctx, third.String())
	require.NoError(t, err)
	assert.Equal(t, second.String(), parent)

	_, err = g.Parent(ctx, first.String())
	assert.Error(t, err)

	n, err := g.ParentCount(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	files, err := g.Diff(ctx, "HEAD~1", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, []string{"cloud-formation/app/queue/deployment-config.yml"}, files)

	files, err = g.DiffRange(ctx, first.String(), third.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"README.md",
		"cloud-formation/app/bucket/deployment-config.yaml",
		"cloud-formation/app/queue/deployment-config.yml",
	}, files)

	base, err := g.MergeBase(ctx, second.String(), third.String())
	require.NoError(t, err)
	assert.Equal(t, second.String(), base)
}

func TestNativeGit_Detector(t *testing.T) {
	r := newTestRepo(t)
	before := r.commit("first", "README.md")
	after := r.commit("second", "cloud-formation/app/bucket/deployment-config.yaml", "cloud-formation/app/bucket/template.yaml")

	detector := Detector{Git: NativeGit{Dir: r.dir}}
	got := detector.Detect(testContext(), Event{Name: EventPush, SHA: after.String(), Before: before.String()})
	assert.Equal(t, "cloud-formation/app/bucket", got)
}
