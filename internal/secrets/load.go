package secrets

import (
	"context"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Options selects where secrets come from. Fields are read from the
// environment by ParseOptions; the AWS clients are set by the caller.
type Options struct {
	Path                   string `env:"GITHUB_SECRETS_PATH"`
	SaltKey                string `env:"SECRET_SALT_KEY"`
	RunID                  string `env:"GITHUB_RUN_ID"`
	Base64                 string `env:"GITHUB_SECRETS_BASE64"`
	JSON                   string `env:"GITHUB_SECRETS_JSON"`
	SecretsManagerSecretID string `env:"SECRETS_MANAGER_SECRET_ID"`
	SSMPath                string `env:"SSM_SECRETS_PATH"`
	AllowEnv               bool   `env:"ALLOW_ENV_SECRETS"`

	SecretsManager SecretGetter
	ParameterStore PathReader
	Environ        []string
}

// ParseOptions reads Options from the process environment
func ParseOptions() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, err
	}
	opts.Environ = os.Environ()
	return opts, nil
}

// Sources returns the configured sources in order of preference
func (o Options) Sources() []Source {
	sources := []Source{
		EncryptedFile{Path: o.Path, SaltKey: o.SaltKey, RunID: o.RunID},
	}
	if o.SaltKey == "" {
		sources = append(sources, PlainFile{Path: o.Path})
	}
	sources = append(sources,
		Base64Value(o.Base64),
		JSONValue(o.JSON),
		SecretsManager{Client: o.SecretsManager, SecretID: o.SecretsManagerSecretID},
		ParameterStore{Client: o.ParameterStore, Path: o.SSMPath},
	)
	if o.AllowEnv {
		sources = append(sources, Environment{Environ: o.Environ})
	}
	return sources
}

// Load returns the secrets of the first source that yields any. A source
// that fails is logged and skipped. When no source yields secrets the result
// is an empty Map, which resolves nothing.
func Load(ctx context.Context, opts Options) (Map, error) {
	logger := zerolog.Ctx(ctx)

	for _, source := range opts.Sources() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, err := source.Load(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("source", source.Name()).Msg("Failed to load secrets")
			continue
		}
		if len(m) == 0 {
			continue
		}

		logger.Info().
			Str("source", source.Name()).
			Int("count", m.Len()).
			Msgf("Loaded %d secrets", m.Len())
		return m, nil
	}

	logger.Info().Msg("No secrets available for substitution")
	return Map{}, nil
}
