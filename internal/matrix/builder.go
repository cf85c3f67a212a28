// Package matrix turns deployment configs into the per-environment job
// matrices consumed by downstream deploy jobs.
package matrix

import (
	"context"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/constants"
	"github.com/savaki/cfn-actions/internal/deployconfig"
	"github.com/savaki/cfn-actions/internal/models"
	"github.com/savaki/cfn-actions/internal/secrets"
	"github.com/savaki/cfn-actions/internal/utils"
)

const (
	paramCustomDeployment = "custom_deployment"
	paramSecretPass       = "secret_pass"
)

// Matrices holds the built items bucketed by environment. An item lands in
// Custom in addition to its environment bucket when its parameters set
// custom_deployment to true. Items of any other environment land only in
// Custom.
type Matrices struct {
	Dev    []models.MatrixItem
	Int    []models.MatrixItem
	Prod   []models.MatrixItem
	Custom []models.MatrixItem
}

// Len returns the number of entries across all four buckets. An item that
// is also in Custom counts twice.
func (m Matrices) Len() int {
	return len(m.Dev) + len(m.Int) + len(m.Prod) + len(m.Custom)
}

// Builder builds Matrices from resource paths
type Builder struct {
	Loader deployconfig.Loader

	// Secrets resolves SECRET: placeholders in parameters when
	// ResolveSecrets is set. Matrices are written to step outputs, so
	// resolution is off unless asked for.
	Secrets        secrets.Map
	ResolveSecrets bool
}

// Build loads the config of every resource path and emits one item per
// selected environment. Paths whose config cannot be loaded contribute
// nothing.
func (b Builder) Build(ctx context.Context, resourcePaths []string, envFilter string) Matrices {
	logger := zerolog.Ctx(ctx)

	var m Matrices
	for _, resourcePath := range resourcePaths {
		logger.Info().Msgf("Processing resource path: %s", resourcePath)

		descriptor, err := b.Loader.Load(ctx, resourcePath)
		if err != nil || descriptor.Empty() {
			if err == nil {
				logger.Warn().Msgf("No environments found for %s", resourcePath)
			}
			continue
		}

		application, resource := splitResourcePath(resourcePath)
		logger.Info().Msgf("Using APP=%s and RESOURCE=%s", application, resource)

		for _, name := range SelectEnvironments(ctx, descriptor.Environments, envFilter) {
			env, ok := descriptor.For(name)
			if !ok {
				continue
			}

			item, ok := b.buildItem(ctx, resourcePath, application, resource, env)
			if !ok {
				continue
			}

			switch name {
			case constants.EnvDev:
				m.Dev = append(m.Dev, item)
			case constants.EnvInt:
				m.Int = append(m.Int, item)
			case constants.EnvProd:
				m.Prod = append(m.Prod, item)
			default:
				logger.Debug().Msgf("Environment %s only deploys through the custom matrix", name)
				m.Custom = append(m.Custom, item)
				continue
			}

			custom := strings.ToLower(utils.Stringify(env.Parameters[paramCustomDeployment]))
			logger.Debug().Msgf("Custom deployment for %s: %s", name, custom)
			if custom == "true" {
				m.Custom = append(m.Custom, item)
			}
		}
	}

	logger.Info().
		Int("dev", len(m.Dev)).
		Int("int", len(m.Int)).
		Int("prod", len(m.Prod)).
		Int("custom", len(m.Custom)).
		Msg("Generated deployment matrices")

	return m
}

func (b Builder) buildItem(ctx context.Context, resourcePath, application, resource string, env deployconfig.Environment) (models.MatrixItem, bool) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Msgf("Processing environment: %s for %s", env.Name, resourcePath)

	var missing []string
	if len(env.Parameters) == 0 {
		missing = append(missing, "parameters")
	}
	if env.Runner == "" {
		missing = append(missing, "runner")
	}
	if env.GitHubEnvironment == "" {
		missing = append(missing, "github_environment")
	}
	if env.AWSRegion == "" {
		missing = append(missing, "aws_region")
	}
	if len(missing) > 0 {
		logger.Warn().
			Strs("missing", missing).
			Msgf("Missing required configuration for %s in %s environment", resourcePath, env.Name)
		return models.MatrixItem{}, false
	}

	parameters := env.Parameters
	if b.ResolveSecrets {
		parameters = resolveMap(ctx, b.Secrets, parameters)
	}

	githubVars := env.GitHubVars
	if githubVars == nil {
		githubVars = map[string]any{}
	}

	return models.MatrixItem{
		Application:       application,
		Resource:          resource,
		Environment:       env.Name,
		Runner:            env.Runner,
		GitHubEnvironment: env.GitHubEnvironment,
		AWSRegion:         env.AWSRegion,
		AWSRoleSecret:     withDefault(env.AWSRoleSecret, constants.DefaultAWSRoleSecret),
		CFNRoleSecret:     withDefault(env.CFNRoleSecret, constants.DefaultCFNRoleSecret),
		IAMRoleSecret:     withDefault(env.IAMExecutionRoleSecret, constants.DefaultIAMExecutionRoleSecret),
		GitHubVars:        githubVars,
		SecretPass:        truthy(env.Parameters[paramSecretPass]),
		Parameters:        parameters,
	}, true
}

// resolveMap returns a copy of m with secret placeholders resolved in every
// string value, including values nested in lists and maps.
func resolveMap(ctx context.Context, s secrets.Map, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = resolveValue(ctx, s, v)
	}
	return out
}

func resolveValue(ctx context.Context, s secrets.Map, v any) any {
	switch value := v.(type) {
	case string:
		return s.Resolve(ctx, value)
	case map[string]any:
		return resolveMap(ctx, s, value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = resolveValue(ctx, s, item)
		}
		return out
	default:
		return v
	}
}

func splitResourcePath(resourcePath string) (application, resource string) {
	cleaned := path.Clean(strings.TrimRight(resourcePath, "/"))
	application = path.Dir(cleaned)
	if application == "." {
		application = ""
	}
	return application, path.Base(cleaned)
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return strings.EqualFold(strings.TrimSpace(value), "true")
	default:
		return false
	}
}

// ParseResourcePaths splits a comma separated list of resource paths,
// dropping blank entries.
func ParseResourcePaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
