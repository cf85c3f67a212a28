package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
	"github.com/savaki/cfn-actions/internal/changes"
	"github.com/savaki/cfn-actions/internal/constants"
	"github.com/savaki/cfn-actions/internal/di"
	"github.com/savaki/cfn-actions/internal/services"
	"github.com/savaki/cfn-actions/internal/shell"
	"github.com/urfave/cli/v2"
)

// DetectChangesCommand returns the command that lists changed resource paths
func DetectChangesCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "detect-changes",
		Usage: "List the resource directories changed by the triggering event",
		Description: `Computes which resource directories under the root directory contain
changed deployment files and writes them, comma separated, to the "paths"
output.

  push               diff between the pushed range
  pull_request       files of the pull request, falling back to git
  workflow_dispatch  the resource_path input, prefixed with --app-name`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "app-name",
				Usage:   "Application directory prefixed to a dispatched resource path",
				EnvVars: []string{"INPUT_APP_NAME"},
			},
			&cli.StringFlag{
				Name:    "root-dir",
				Usage:   "Directory holding the resources",
				Value:   constants.RootDir,
				EnvVars: []string{"INPUT_ROOT_DIR"},
			},
			&cli.BoolFlag{
				Name:    "native-git",
				Usage:   "Read the repository with go-git instead of the git binary",
				EnvVars: []string{"INPUT_NATIVE_GIT"},
			},
			&cli.StringFlag{
				Name:  "repo-dir",
				Usage: "Path of the checked out repository",
				Value: ".",
			},
		},
		Action: func(c *cli.Context) error {
			return detectChangesAction(c, logger)
		},
	}
}

func detectChangesAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := commandContext(c, logger)

	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}

	event, err := changes.LoadEvent(ctx, actx, c.String("app-name"))
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	var git changes.Git = changes.CLIGit{Dir: c.String("repo-dir"), Runner: shell.Exec{}}
	if c.Bool("native-git") {
		git = changes.NativeGit{Dir: c.String("repo-dir")}
	}

	detector := changes.Detector{
		Git:     git,
		RootDir: c.String("root-dir"),
	}

	if event.Name == changes.EventPullRequest {
		container, err := newContainer(ctx, "", di.WithGitHubToken(actx.Token))
		if err != nil {
			return err
		}
		detector.PullRequests = di.MustGet[*services.GitHubService](container)
	}

	paths := detector.Detect(ctx, event)

	output := actions.NewOutput(actx.OutputPath)
	if err := output.Set("paths", paths); err != nil {
		return err
	}

	return nil
}
