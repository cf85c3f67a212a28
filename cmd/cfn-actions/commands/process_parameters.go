package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
	"github.com/savaki/cfn-actions/internal/params"
	"github.com/urfave/cli/v2"
)

// ProcessParametersCommand returns the command that assembles the
// CloudFormation parameter file
func ProcessParametersCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "process-parameters",
		Usage: "Merge file and inline parameters into a parameter file",
		Description: `Reads the parameter overrides file (s3://, file:// or a local path) and
the inline JSON parameters, merges them with inline values winning,
substitutes SECRET:<name> references and writes the result as a JSON
parameter list. The file:// URL of the list is written to the PARAM_FILE
output, or an empty PARAM_FILE when there are no parameters.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "parameter-overrides",
				Usage:   "Location of the parameter overrides file",
				EnvVars: []string{"INPUT_PARAMETER_OVERRIDES"},
			},
			&cli.StringFlag{
				Name:    "inline-json-parameters",
				Usage:   "Parameters as a JSON list or object",
				EnvVars: []string{"INPUT_INLINE_JSON_PARAMETERS"},
			},
			&cli.StringFlag{
				Name:  "tmp-dir",
				Usage: "Base directory of the per-run scratch directory",
				Value: os.TempDir(),
			},
		},
		Action: func(c *cli.Context) error {
			return processParametersAction(c, logger)
		},
	}
}

func processParametersAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := commandContext(c, logger)

	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}

	container, err := newContainer(ctx, "")
	if err != nil {
		return err
	}

	s, err := loadSecrets(ctx, container)
	if err != nil {
		return err
	}

	loader := params.Loader{S3: lazyObjectReader{container: container}}
	file, err := loader.Load(ctx, c.String("parameter-overrides"))
	if err != nil {
		return err
	}

	merger := params.Merger{Secrets: s}
	merged, err := merger.Merge(ctx, file, c.String("inline-json-parameters"))
	if err != nil {
		return err
	}

	output := actions.NewOutput(actx.OutputPath)
	if len(merged) == 0 {
		logger.Info().Msg("No parameters found, PARAM_FILE is empty")
		return output.Set("PARAM_FILE", "")
	}

	dir := params.RunDir(c.String("tmp-dir"), actx.RunID, actx.RunNumber)
	fileURL, err := params.WriteFile(dir, actx.RunID, actx.RunNumber, merged)
	if err != nil {
		return err
	}

	logger.Info().
		Int("parameters", len(merged)).
		Str("param_file", fileURL).
		Msg("Wrote parameter file")

	return output.Set("PARAM_FILE", fileURL)
}
