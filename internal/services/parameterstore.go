package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMParameterStore reads parameters from AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client *ssm.Client
	mu     sync.RWMutex
	cache  map[string]map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client *ssm.Client) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		cache:  make(map[string]map[string]string),
	}
}

// GetParametersByPath returns every parameter below path, decrypted, keyed by
// its name relative to path. /app/secrets/db/password is returned as
// db/password for path /app/secrets.
func (s *SSMParameterStore) GetParametersByPath(ctx context.Context, path string) (map[string]string, error) {
	s.mu.RLock()
	if values, ok := s.cache[path]; ok {
		s.mu.RUnlock()
		return values, nil
	}
	s.mu.RUnlock()

	prefix := strings.TrimRight(path, "/") + "/"
	values := make(map[string]string)

	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}

		for _, param := range page.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			values[strings.TrimPrefix(*param.Name, prefix)] = *param.Value
		}
	}

	s.mu.Lock()
	s.cache[path] = values
	s.mu.Unlock()

	return values, nil
}
