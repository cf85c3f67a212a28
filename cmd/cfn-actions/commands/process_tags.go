package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
	"github.com/savaki/cfn-actions/internal/tags"
	"github.com/urfave/cli/v2"
)

// ProcessTagsCommand returns the command that merges stack tags
func ProcessTagsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "process-tags",
		Usage: "Merge JSON and key=value tags into the TAGS output",
		Description: `Combines the JSON tags input with key=value lines, the key=value value
winning for a repeated key, and writes the list to the TAGS output. Fails
when no tags are provided.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "tags",
				Usage:   "Tags as a JSON list of {Key, Value} or a JSON object",
				EnvVars: []string{"INPUT_TAGS"},
			},
			&cli.StringFlag{
				Name:    "tags-key-value",
				Usage:   "Tags as key=value lines",
				EnvVars: []string{"INPUT_TAGS_KEY_VALUE"},
			},
		},
		Action: func(c *cli.Context) error {
			return processTagsAction(c, logger)
		},
	}
}

func processTagsAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := commandContext(c, logger)

	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}

	merged, err := tags.Merge(ctx, c.String("tags"), c.String("tags-key-value"))
	if err != nil {
		return err
	}

	value, err := tags.Marshal(merged)
	if err != nil {
		return err
	}

	return actions.NewOutput(actx.OutputPath).Set("TAGS", value)
}
