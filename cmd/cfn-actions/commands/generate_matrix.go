package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
	"github.com/savaki/cfn-actions/internal/deployconfig"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/matrix"
	"github.com/urfave/cli/v2"
)

// GenerateMatrixCommand returns the command that builds deployment matrices
func GenerateMatrixCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "generate-matrix",
		Usage: "Build the dev, int, prod and custom deployment matrices",
		Description: `Reads the deployment config of each resource path and writes one job
matrix per environment bucket to GITHUB_OUTPUT as dev_matrix, int_matrix,
prod_matrix and custom_matrix.

Examples:
  # All environments of two resources
  cfn-actions generate-matrix --resource-paths app/bucket,app/queue

  # Only dev and int
  cfn-actions generate-matrix --resource-paths app/bucket --specific-environment dev,int`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "resource-paths",
				Usage:   "Comma separated resource paths, usually the detect-changes output",
				EnvVars: []string{"INPUT_RESOURCE_PATHS"},
			},
			&cli.StringFlag{
				Name:    "specific-environment",
				Usage:   "Environment name, or comma separated names, to restrict the matrices to",
				EnvVars: []string{"INPUT_SPECIFIC_ENVIRONMENT"},
			},
			&cli.BoolFlag{
				Name:    "resolve-secrets",
				Usage:   "Substitute SECRET: references in matrix parameters",
				EnvVars: []string{"INPUT_RESOLVE_SECRETS"},
			},
			&cli.StringFlag{
				Name:  "repo-dir",
				Usage: "Directory resource paths are relative to",
				Value: ".",
			},
		},
		Action: func(c *cli.Context) error {
			return generateMatrixAction(c, logger)
		},
	}
}

func generateMatrixAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := commandContext(c, logger)

	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}
	if actx.OutputPath == "" {
		return ierrors.ErrOutputNotConfigured
	}

	builder := matrix.Builder{
		Loader:         deployconfig.FileLoader{Dir: c.String("repo-dir")},
		ResolveSecrets: c.Bool("resolve-secrets"),
	}
	if builder.ResolveSecrets {
		container, err := newContainer(ctx, "")
		if err != nil {
			return err
		}
		if builder.Secrets, err = loadSecrets(ctx, container); err != nil {
			return err
		}
	}

	paths := matrix.ParseResourcePaths(c.String("resource-paths"))
	matrices := builder.Build(ctx, paths, c.String("specific-environment"))

	outputs, err := matrices.Outputs()
	if err != nil {
		return err
	}

	output := actions.NewOutput(actx.OutputPath)
	for _, o := range outputs {
		if err := output.SetHeredoc(o[0], o[1]); err != nil {
			return fmt.Errorf("failed to write %s: %w", o[0], err)
		}
	}

	logger.Info().
		Int("resource_paths", len(paths)).
		Int("dev", len(matrices.Dev)).
		Int("int", len(matrices.Int)).
		Int("prod", len(matrices.Prod)).
		Int("custom", len(matrices.Custom)).
		Msg("Generated deployment matrices")

	return nil
}
