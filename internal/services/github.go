package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

const filesPerPage = 100

type GitHubService struct {
	client *github.Client
}

// NewGitHubService creates a client authenticated with token. An empty token
// yields an anonymous client, which only works for public repositories.
func NewGitHubService(ctx context.Context, token string) *GitHubService {
	if token == "" {
		return &GitHubService{client: github.NewClient(nil)}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitHubService{
		client: github.NewClient(oauth2.NewClient(ctx, ts)),
	}
}

// NewGitHubServiceWithClient wraps an existing client, e.g. one pointed at a
// test server.
func NewGitHubServiceWithClient(client *github.Client) *GitHubService {
	return &GitHubService{client: client}
}

// ListFiles returns the names of all files changed by a pull request.
// repository is in owner/repo form.
func (g *GitHubService) ListFiles(ctx context.Context, repository string, number int) ([]string, error) {
	owner, repo, err := ParseOwnerRepo(repository)
	if err != nil {
		return nil, err
	}

	var names []string
	opts := &github.ListOptions{PerPage: filesPerPage}
	for {
		files, resp, err := g.client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list files of %s#%d: %w", repository, number, err)
		}

		for _, f := range files {
			names = append(names, f.GetFilename())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return names, nil
}

// ParseOwnerRepo splits owner/repo
func ParseOwnerRepo(repository string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository format: %q, expected owner/repo", repository)
	}
	return owner, repo, nil
}
