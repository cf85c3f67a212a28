// Package changes works out which resource directories a GitHub event
// touched, so that only those resources are deployed.
package changes

import (
	"context"
	"path"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/constants"
)

// PullRequestFiles lists the files changed by a pull request
type PullRequestFiles interface {
	ListFiles(ctx context.Context, repository string, number int) ([]string, error)
}

// Detector computes changed resource paths for an event
type Detector struct {
	Git          Git
	PullRequests PullRequestFiles

	// RootDir is the directory holding resources, cloud-formation when empty
	RootDir string
}

func (d Detector) rootDir() string {
	if d.RootDir == "" {
		return constants.RootDir
	}
	return strings.TrimRight(d.RootDir, "/")
}

// Detect returns the changed resource paths as a sorted, comma separated
// list. Git and API failures are logged and count as no changes.
func (d Detector) Detect(ctx context.Context, event Event) string {
	logger := zerolog.Ctx(ctx)

	if event.Name == EventWorkflowDispatch && event.ResourcePath != "" {
		return d.dispatchPath(ctx, event)
	}

	var files []string
	switch {
	case event.Name == EventPullRequest && event.PRNumber > 0 && event.PRHeadSHA != "":
		files = d.pullRequestFiles(ctx, event)
	case event.Name == EventPush && event.Before != "" && !isZeroSHA(event.Before):
		files = d.pushFiles(ctx, event)
	default:
		files = d.diff(ctx, "HEAD~1", "HEAD")
	}

	paths := d.resourcePaths(files)
	if len(paths) == 0 {
		before := event.Before
		if before == "" {
			before = "N/A"
		}
		logger.Info().
			Str("event", event.Name).
			Str("sha", event.SHA).
			Str("before", before).
			Msg("No paths detected")
		return ""
	}

	logger.Info().Strs("paths", paths).Msg("Detected changed resource paths")
	return strings.Join(paths, ",")
}

func (d Detector) dispatchPath(ctx context.Context, event Event) string {
	if event.AppName == "" {
		return event.ResourcePath
	}

	prefix := d.rootDir() + "/" + event.AppName + "/"
	if !strings.HasPrefix(event.ResourcePath, prefix) {
		zerolog.Ctx(ctx).Error().
			Str("resource_path", event.ResourcePath).
			Str("app", event.AppName).
			Msgf("Resource path must start with '%s'", prefix)
		return ""
	}
	return event.ResourcePath
}

// pullRequestFiles looks at the head commit of the pull request first, then
// the files API, then the last commit of the checkout.
func (d Detector) pullRequestFiles(ctx context.Context, event Event) []string {
	logger := zerolog.Ctx(ctx)

	parent, err := d.Git.Parent(ctx, event.PRHeadSHA)
	if err != nil {
		logger.Warn().Err(err).Str("sha", event.PRHeadSHA).Msg("Failed to resolve parent of pull request head")
	} else if files := d.diff(ctx, parent, event.PRHeadSHA); len(files) > 0 {
		return files
	}

	if d.PullRequests != nil {
		files, err := d.PullRequests.ListFiles(ctx, event.Repository, event.PRNumber)
		if err != nil {
			logger.Warn().Err(err).Int("pr", event.PRNumber).Msg("Failed to list pull request files")
		} else if len(files) > 0 {
			return files
		}
	}

	return d.diff(ctx, "HEAD~1", "HEAD")
}

// pushFiles diffs against the merge base for merge commits, otherwise
// against the previous head of the branch.
func (d Detector) pushFiles(ctx context.Context, event Event) []string {
	logger := zerolog.Ctx(ctx)

	parents, err := d.Git.ParentCount(ctx, event.SHA)
	if err != nil {
		logger.Warn().Err(err).Str("sha", event.SHA).Msg("Failed to count parents")
		parents = 0
	}

	if parents > 1 {
		base, err := d.Git.MergeBase(ctx, event.Before, event.SHA)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to find merge base")
			return nil
		}
		return d.diff(ctx, base, event.SHA)
	}

	if files := d.diff(ctx, event.Before, event.SHA); len(files) > 0 {
		return files
	}

	files, err := d.Git.DiffRange(ctx, event.Before, event.SHA)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to diff commit range")
		return nil
	}
	return files
}

func (d Detector) diff(ctx context.Context, from, to string) []string {
	files, err := d.Git.Diff(ctx, from, to)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("from", from).Str("to", to).Msg("Failed to diff")
		return nil
	}
	return files
}

// isZeroSHA reports whether sha is the all-zero id GitHub sends as the
// before SHA of a newly pushed branch
func isZeroSHA(sha string) bool {
	return strings.Trim(sha, "0") == ""
}

// resourcePaths keeps deployment config files below the root directory and
// returns their directories, deduplicated and sorted.
func (d Detector) resourcePaths(files []string) []string {
	prefix := d.rootDir() + "/"

	var paths []string
	for _, file := range files {
		if !strings.HasPrefix(file, prefix) {
			continue
		}
		if !slices.Contains(constants.ConfigFileNames, path.Base(file)) {
			continue
		}

		dir := path.Dir(file)
		if !slices.Contains(paths, dir) {
			paths = append(paths, dir)
		}
	}

	slices.Sort(paths)
	return paths
}
