package changes

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/savaki/cfn-actions/internal/shell"
)

// Git answers the repository questions the Detector asks. Revisions accept
// the usual rev syntax such as HEAD~1 or <sha>^.
type Git interface {
	// Parent resolves the first parent of rev
	Parent(ctx context.Context, rev string) (string, error)

	// ParentCount returns the number of parents of rev
	ParentCount(ctx context.Context, rev string) (int, error)

	MergeBase(ctx context.Context, a, b string) (string, error)

	// Diff lists the files that differ between the two revisions
	Diff(ctx context.Context, from, to string) ([]string, error)

	// DiffRange lists the files changed in from..to
	DiffRange(ctx context.Context, from, to string) ([]string, error)
}

// CLIGit runs the git binary
type CLIGit struct {
	Dir    string
	Runner shell.Runner
}

var _ Git = CLIGit{}

func (g CLIGit) run(ctx context.Context, args ...string) (string, error) {
	result, err := g.Runner.Run(ctx, shell.Command{Dir: g.Dir, Name: "git", Args: args})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

func (g CLIGit) Parent(ctx context.Context, rev string) (string, error) {
	return g.run(ctx, "rev-parse", rev+"^")
}

func (g CLIGit) ParentCount(ctx context.Context, rev string) (int, error) {
	out, err := g.run(ctx, "cat-file", "-p", rev)
	if err != nil {
		return 0, err
	}

	var n int
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "parent ") {
			n++
		}
	}
	return n, nil
}

func (g CLIGit) MergeBase(ctx context.Context, a, b string) (string, error) {
	return g.run(ctx, "merge-base", a, b)
}

func (g CLIGit) Diff(ctx context.Context, from, to string) ([]string, error) {
	out, err := g.run(ctx, "diff", "--name-only", from, to)
	return lines(out), err
}

func (g CLIGit) DiffRange(ctx context.Context, from, to string) ([]string, error) {
	out, err := g.run(ctx, "diff", "--name-only", from+".."+to)
	return lines(out), err
}

func lines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// NativeGit reads the repository with go-git, no git binary required
type NativeGit struct {
	Dir string
}

var _ Git = NativeGit{}

func (g NativeGit) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(g.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", g.Dir, err)
	}
	return repo, nil
}

func (g NativeGit) commit(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	c, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", rev, err)
	}
	return c, nil
}

func (g NativeGit) Parent(_ context.Context, rev string) (string, error) {
	repo, err := g.open()
	if err != nil {
		return "", err
	}
	c, err := g.commit(repo, rev)
	if err != nil {
		return "", err
	}
	if c.NumParents() == 0 {
		return "", fmt.Errorf("commit %s has no parent", rev)
	}
	return c.ParentHashes[0].String(), nil
}

func (g NativeGit) ParentCount(_ context.Context, rev string) (int, error) {
	repo, err := g.open()
	if err != nil {
		return 0, err
	}
	c, err := g.commit(repo, rev)
	if err != nil {
		return 0, err
	}
	return c.NumParents(), nil
}

func (g NativeGit) MergeBase(_ context.Context, a, b string) (string, error) {
	repo, err := g.open()
	if err != nil {
		return "", err
	}
	ca, err := g.commit(repo, a)
	if err != nil {
		return "", err
	}
	cb, err := g.commit(repo, b)
	if err != nil {
		return "", err
	}

	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", fmt.Errorf("failed to find merge base of %s and %s: %w", a, b, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("no merge base for %s and %s", a, b)
	}
	return bases[0].Hash.String(), nil
}

func (g NativeGit) Diff(ctx context.Context, from, to string) ([]string, error) {
	repo, err := g.open()
	if err != nil {
		return nil, err
	}
	fromCommit, err := g.commit(repo, from)
	if err != nil {
		return nil, err
	}
	toCommit, err := g.commit(repo, to)
	if err != nil {
		return nil, err
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, &object.DiffTreeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s and %s: %w", from, to, err)
	}

	var files []string
	for _, change := range changes {
		if name := changeName(change); name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}

// DiffRange is the same as Diff for two commits
func (g NativeGit) DiffRange(ctx context.Context, from, to string) ([]string, error) {
	return g.Diff(ctx, from, to)
}

func changeName(change *object.Change) string {
	action, err := change.Action()
	if err != nil {
		return ""
	}
	switch action {
	case merkletrie.Insert, merkletrie.Modify:
		return change.To.Name
	case merkletrie.Delete:
		return change.From.Name
	default:
		return ""
	}
}
