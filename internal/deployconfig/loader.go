package deployconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/constants"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"gopkg.in/yaml.v3"
)

// Loader loads the Descriptor for a resource path
type Loader interface {
	Load(ctx context.Context, resourcePath string) (Descriptor, error)
}

// FileLoader loads deployment configs from the filesystem. Resource paths are
// resolved relative to Dir, or the working directory when Dir is empty.
type FileLoader struct {
	Dir string
}

var _ Loader = FileLoader{}

// Load finds deployment-config.yaml (or .yml) in resourcePath and parses it.
// Any failure is logged and returned together with an empty Descriptor so
// callers can skip the path and carry on with the rest.
func (l FileLoader) Load(ctx context.Context, resourcePath string) (Descriptor, error) {
	logger := zerolog.Ctx(ctx)

	path, err := l.find(resourcePath)
	if err != nil {
		logger.Warn().Msgf("Configuration file not found for %s", resourcePath)
		return Descriptor{}, err
	}

	logger.Info().Str("config", path).Msg("Reading YAML configuration")
	return LoadFile(ctx, path)
}

func (l FileLoader) find(resourcePath string) (string, error) {
	for _, name := range constants.ConfigFileNames {
		path := filepath.Join(l.Dir, resourcePath, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ierrors.ErrConfigNotFound, resourcePath)
}

// LoadFile parses a single deployment config file
func LoadFile(ctx context.Context, path string) (Descriptor, error) {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Msgf("Error loading YAML file %s", path)
		if errors.Is(err, fs.ErrNotExist) {
			return Descriptor{}, fmt.Errorf("%w: %s", ierrors.ErrConfigNotFound, path)
		}
		return Descriptor{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	descriptor, err := Parse(data, path)
	if err != nil {
		logger.Warn().Err(err).Msgf("Invalid YAML structure in %s", path)
		return Descriptor{}, err
	}

	logger.Debug().
		Str("config", path).
		Strs("environments", descriptor.Environments).
		Msg("Loaded deployment config")

	return descriptor, nil
}

// Parse decodes a deployment config document. Only the first entry of the
// deployments list is used.
func Parse(data []byte, path string) (Descriptor, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ierrors.ErrInvalidConfig, path, err)
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return Descriptor{}, fmt.Errorf("%w: %s: top level is not a mapping", ierrors.ErrInvalidConfig, path)
	}

	var doc struct {
		Deployments []yaml.Node `yaml:"deployments"`
	}
	if err := root.Content[0].Decode(&doc); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ierrors.ErrInvalidConfig, path, err)
	}

	if len(doc.Deployments) == 0 {
		return Descriptor{}, fmt.Errorf("%w: %s", ierrors.ErrNoDeployments, path)
	}

	first := doc.Deployments[0]
	if first.Kind != yaml.MappingNode {
		return Descriptor{}, fmt.Errorf("%w: %s", ierrors.ErrNoDeployments, path)
	}

	var raw rawDeployment
	if err := first.Decode(&raw); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ierrors.ErrInvalidConfig, path, err)
	}

	return raw.toDescriptor(path), nil
}
