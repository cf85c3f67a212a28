package di

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/secrets"
	"github.com/savaki/cfn-actions/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides the Parameter Store secrets reader, or nil
// when SSM is disabled
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client) secrets.PathReader {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Debug().Msg("SSM disabled; Parameter Store secrets unavailable")
		return nil
	}

	return services.NewSSMParameterStore(ssmClient)
}
