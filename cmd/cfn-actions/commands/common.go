package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/di"
	"github.com/savaki/cfn-actions/internal/secrets"
	"github.com/savaki/cfn-actions/internal/services"
	"github.com/urfave/cli/v2"
)

// commandContext returns the command's context with logger attached, so
// packages logging through zerolog.Ctx use the CLI logger.
func commandContext(c *cli.Context, logger *zerolog.Logger) context.Context {
	return logger.WithContext(c.Context)
}

func newContainer(ctx context.Context, env string, opts ...di.Option) (di.Container, error) {
	opts = append([]di.Option{di.WithContext(ctx)}, opts...)
	container, err := di.New(env, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create DI container: %w", err)
	}
	return container, nil
}

// loadSecrets builds the secrets map from the sources configured in the
// environment. AWS clients are only constructed for the sources in use.
func loadSecrets(ctx context.Context, container di.Container) (secrets.Map, error) {
	logger := zerolog.Ctx(ctx)

	opts, err := secrets.ParseOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to parse secrets options: %w", err)
	}

	if opts.SecretsManagerSecretID != "" {
		svc, err := di.Get[*services.SecretsManagerService](container)
		if err != nil {
			logger.Warn().Err(err).Msg("Secrets Manager unavailable")
		} else {
			opts.SecretsManager = svc
		}
	}

	if opts.SSMPath != "" {
		store, err := di.Get[secrets.PathReader](container)
		if err != nil {
			logger.Warn().Err(err).Msg("Parameter Store unavailable")
		} else {
			opts.ParameterStore = store
		}
	}

	return secrets.Load(ctx, opts)
}

// lazyObjectReader creates the S3 client on first download so local
// parameter files never need AWS configuration.
type lazyObjectReader struct {
	container di.Container
}

func (r lazyObjectReader) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	svc, err := di.Get[*services.S3Service](r.container)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return svc.Download(ctx, bucket, key)
}
