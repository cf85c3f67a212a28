package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/params"
	"github.com/savaki/cfn-actions/internal/secrets"
	"github.com/urfave/cli/v2"
)

// SecretsCommand returns the command group for the per-run secrets blob
func SecretsCommand(logger *zerolog.Logger) *cli.Command {
	saltKeyFlag := &cli.StringFlag{
		Name:     "salt-key",
		Usage:    "Salt key the blob key is derived from",
		Required: true,
		EnvVars:  []string{"SECRET_SALT_KEY"},
	}
	fileFlag := &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Encrypted secrets file",
		Required: true,
		EnvVars:  []string{"GITHUB_SECRETS_PATH"},
	}

	return &cli.Command{
		Name:  "secrets",
		Usage: "Encrypt and decrypt the per-run secrets blob",
		Description: `The blob is the job's secrets as a JSON object, encrypted with a key
derived from the salt key and GITHUB_RUN_ID, so it only decrypts within the
run that produced it.`,
		Subcommands: []*cli.Command{
			{
				Name:  "encrypt",
				Usage: "Encrypt the environment's secrets to a file",
				Flags: []cli.Flag{
					saltKeyFlag,
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path of the encrypted file, defaults to a per-run path under the temp dir",
					},
				},
				Action: func(c *cli.Context) error {
					return encryptSecretsAction(c, logger)
				},
			},
			{
				Name:  "decrypt",
				Usage: "Decrypt a secrets file into the job environment",
				Flags: []cli.Flag{fileFlag, saltKeyFlag},
				Action: func(c *cli.Context) error {
					return decryptSecretsAction(c, logger)
				},
			},
			{
				Name:  "process-parameters",
				Usage: "Substitute SECRET: references in a parameter file",
				Flags: []cli.Flag{
					fileFlag,
					saltKeyFlag,
					&cli.StringFlag{
						Name:     "parameter-file",
						Aliases:  []string{"p"},
						Usage:    "Parameter file to process",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path of the processed file, stdout when empty",
					},
				},
				Action: func(c *cli.Context) error {
					return processSecretParametersAction(c, logger)
				},
			},
		},
	}
}

func encryptSecretsAction(c *cli.Context, logger *zerolog.Logger) error {
	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}

	m := secrets.FromEnviron(os.Environ())
	if m.Len() == 0 {
		return fmt.Errorf("failed to encrypt secrets: %w", ierrors.ErrSecretsNotFound)
	}
	logger.Info().Msgf("Loaded %d potential secrets from environment variables", m.Len())

	blob, err := secrets.Encrypt(m, c.String("salt-key"), actx.RunID)
	if err != nil {
		return err
	}

	path := c.String("output")
	if path == "" {
		dir := params.RunDir(os.TempDir(), actx.RunID, actx.RunNumber)
		path = filepath.Join(dir, fmt.Sprintf("encrypted-secrets-%s.b64", actx.RunID))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(blob), 0o600); err != nil {
		return fmt.Errorf("failed to write encrypted secrets: %w", err)
	}

	logger.Info().Str("path", path).Msg("Encrypted secrets stored")
	return actions.NewOutput(actx.OutputPath).Set("SECRETS_FILE", path)
}

// decryptSecretsAction masks every secret value in the job log and exports
// the secrets to the following steps through GITHUB_ENV.
func decryptSecretsAction(c *cli.Context, logger *zerolog.Logger) error {
	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}

	m, err := readSecretsFile(c.String("file"), c.String("salt-key"), actx.RunID)
	if err != nil {
		return err
	}

	if actx.EnvPath == "" {
		logger.Warn().Msg("GITHUB_ENV not set, secrets were decrypted but not exported")
		return nil
	}

	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := actions.NewOutput(actx.EnvPath)
	for _, key := range keys {
		if err := actions.Mask(c.App.Writer, m[key]); err != nil {
			return err
		}
		if err := env.Set(key, m[key]); err != nil {
			return err
		}
	}

	logger.Info().Msgf("Successfully set %d secrets as environment variables", len(keys))
	return nil
}

func processSecretParametersAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := commandContext(c, logger)

	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}

	m, err := readSecretsFile(c.String("file"), c.String("salt-key"), actx.RunID)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.String("parameter-file"))
	if err != nil {
		return fmt.Errorf("failed to read parameters file: %w", err)
	}
	source, err := params.ParseSource(data)
	if err != nil {
		return err
	}

	merged, err := params.Merger{Secrets: m}.Merge(ctx, source, "")
	if err != nil {
		return err
	}

	processed, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	path := c.String("output")
	if path == "" {
		_, err := fmt.Fprintln(c.App.Writer, string(processed))
		return err
	}

	if err := os.WriteFile(path, processed, 0o600); err != nil {
		return fmt.Errorf("failed to write processed parameters: %w", err)
	}
	logger.Info().Str("path", path).Msg("Processed parameters written")

	return actions.NewOutput(actx.OutputPath).Set("PROCESSED_PARAM_FILE", path)
}

func readSecretsFile(path, saltKey, runID string) (secrets.Map, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	m, err := secrets.Decrypt(string(blob), saltKey, runID)
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return nil, fmt.Errorf("failed to decrypt secrets: %w", ierrors.ErrSecretsNotFound)
	}
	return m, nil
}
