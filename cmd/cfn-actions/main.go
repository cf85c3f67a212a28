package main

import (
	"context"
	"os"

	"github.com/savaki/cfn-actions/cmd/cfn-actions/commands"
	"github.com/savaki/cfn-actions/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "cfn-actions",
		Usage: "GitHub Actions steps for CloudFormation deployments",
		Description: `Entrypoint for the CloudFormation workflow steps.

Each command reads its inputs from flags or the INPUT_* variables GitHub
Actions sets for the step, and writes its results to GITHUB_OUTPUT.`,
		Commands: []*cli.Command{
			commands.DetectChangesCommand(&logger),
			commands.GenerateMatrixCommand(&logger),
			commands.ProcessParametersCommand(&logger),
			commands.ProcessTagsCommand(&logger),
			commands.SecretsCommand(&logger),
			commands.DeployCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
