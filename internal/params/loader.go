package params

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ObjectReader downloads an object from S3
type ObjectReader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader reads parameter files from S3 or the local filesystem
type Loader struct {
	S3 ObjectReader
}

// Load reads the parameter file at location, one of s3://bucket/key,
// file:///path or a plain path. A location that does not exist is logged and
// returns a nil Source so callers continue with inline parameters only.
func (l Loader) Load(ctx context.Context, location string) (*Source, error) {
	logger := zerolog.Ctx(ctx)

	location = strings.TrimSpace(location)
	if location == "" {
		return nil, nil
	}

	logger.Info().Str("location", location).Msg("parameter-overrides are available")

	data, err := l.read(ctx, location)
	if err != nil {
		return nil, err
	}
	if data == nil {
		logger.Warn().Msgf("Could not read parameters from file: %s", location)
		return nil, nil
	}

	source, err := ParseSource(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse parameter file %s: %w", location, err)
	}
	return source, nil
}

func (l Loader) read(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "s3://") {
		bucket, key, err := ParseS3URL(location)
		if err != nil {
			return nil, err
		}
		if l.S3 == nil {
			return nil, fmt.Errorf("failed to read %s: no S3 client configured", location)
		}
		data, err := l.S3.Download(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameter file %s: %w", location, err)
		}
		return data, nil
	}

	path := LocalPath(location)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file %s: %w", path, err)
	}
	return data, nil
}

// ParseS3URL splits s3://bucket/key into its bucket and key
func ParseS3URL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse %s: %w", location, err)
	}
	if u.Scheme != "s3" || u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
		return "", "", fmt.Errorf("invalid S3 location %s, expected s3://bucket/key", location)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// LocalPath strips a file:// scheme. file:///tmp/x and /tmp/x are the same
// file.
func LocalPath(location string) string {
	if rest, ok := strings.CutPrefix(location, "file://"); ok {
		return rest
	}
	return location
}
