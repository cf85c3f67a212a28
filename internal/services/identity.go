package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Identity is the AWS principal the action runs as
type Identity struct {
	Account string
	ARN     string
	Region  string
}

type IdentityService struct {
	client *sts.Client
	region string
}

func NewIdentityService(cfg aws.Config) *IdentityService {
	return &IdentityService{
		client: sts.NewFromConfig(cfg),
		region: cfg.Region,
	}
}

// CallerIdentity returns the account and ARN of the current credentials
func (s *IdentityService) CallerIdentity(ctx context.Context) (Identity, error) {
	result, err := s.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get caller identity: %w", err)
	}

	return Identity{
		Account: aws.ToString(result.Account),
		ARN:     aws.ToString(result.Arn),
		Region:  s.region,
	}, nil
}
