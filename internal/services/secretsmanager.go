package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type SecretsManagerService struct {
	client *secretsmanager.Client
}

func NewSecretsManagerService(cfg aws.Config) *SecretsManagerService {
	return &SecretsManagerService{
		client: secretsmanager.NewFromConfig(cfg),
	}
}

// GetSecret retrieves a secret value by id or ARN from AWS Secrets Manager
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretID string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretID, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}

	return *result.SecretString, nil
}
