// Package deployconfig loads the deployment-config.{yaml,yml} file that sits
// in every resource directory and describes where and how that resource is
// deployed for each environment.
package deployconfig

import (
	"slices"

	"github.com/savaki/cfn-actions/internal/utils"
)

// Descriptor is the first entry of a config's deployments list. Every
// per-environment map is keyed by environment name; only names declared in
// Environments are ever answered by For.
type Descriptor struct {
	Path                    string
	Environments            []string
	Parameters              map[string]map[string]any
	Runners                 map[string]string
	GitHubEnvironments      map[string]string
	AWSRegions              map[string]string
	AWSRoleSecrets          map[string]string
	CFNRoleSecrets          map[string]string
	IAMExecutionRoleSecrets map[string]string
	GitHubVars              map[string]map[string]any
}

// Environment is the slice of a Descriptor that applies to one environment.
// Fields are empty when the config does not set them.
type Environment struct {
	Name                   string
	Parameters             map[string]any
	Runner                 string
	GitHubEnvironment      string
	AWSRegion              string
	AWSRoleSecret          string
	CFNRoleSecret          string
	IAMExecutionRoleSecret string
	GitHubVars             map[string]any
}

// Empty reports whether the descriptor declares no environments
func (d Descriptor) Empty() bool {
	return len(d.Environments) == 0
}

// Declared reports whether env is listed in Environments
func (d Descriptor) Declared(env string) bool {
	return slices.Contains(d.Environments, env)
}

// For returns the settings for env. The second result is false when env is
// not declared, regardless of what the per-environment maps contain.
func (d Descriptor) For(env string) (Environment, bool) {
	if !d.Declared(env) {
		return Environment{}, false
	}

	return Environment{
		Name:                   env,
		Parameters:             d.Parameters[env],
		Runner:                 d.Runners[env],
		GitHubEnvironment:      d.GitHubEnvironments[env],
		AWSRegion:              d.AWSRegions[env],
		AWSRoleSecret:          d.AWSRoleSecrets[env],
		CFNRoleSecret:          d.CFNRoleSecrets[env],
		IAMExecutionRoleSecret: d.IAMExecutionRoleSecrets[env],
		GitHubVars:             d.GitHubVars[env],
	}, true
}

// rawDeployment mirrors one deployments entry as written. Values are decoded
// loosely and normalized by toDescriptor so one odd entry does not reject the
// whole file.
type rawDeployment struct {
	Environments            []any          `yaml:"environments"`
	Parameters              map[string]any `yaml:"parameters"`
	Runners                 map[string]any `yaml:"runners"`
	GitHubEnvironments      map[string]any `yaml:"github_environments"`
	AWSRegions              map[string]any `yaml:"aws_regions"`
	AWSRoleSecrets          map[string]any `yaml:"aws_role_secrets"`
	CFNRoleSecrets          map[string]any `yaml:"cfn_role_secrets"`
	IAMExecutionRoleSecrets map[string]any `yaml:"iam_execution_role_secrets"`
	GitHubVars              map[string]any `yaml:"github_vars"`
}

func (r rawDeployment) toDescriptor(path string) Descriptor {
	d := Descriptor{
		Path:                    path,
		Parameters:              nestedMaps(r.Parameters),
		Runners:                 scalarMap(r.Runners),
		GitHubEnvironments:      scalarMap(r.GitHubEnvironments),
		AWSRegions:              scalarMap(r.AWSRegions),
		AWSRoleSecrets:          scalarMap(r.AWSRoleSecrets),
		CFNRoleSecrets:          scalarMap(r.CFNRoleSecrets),
		IAMExecutionRoleSecrets: scalarMap(r.IAMExecutionRoleSecrets),
		GitHubVars:              nestedMaps(r.GitHubVars),
	}

	for _, env := range r.Environments {
		name, ok := env.(string)
		if !ok || name == "" || slices.Contains(d.Environments, name) {
			continue
		}
		d.Environments = append(d.Environments, name)
	}

	return d
}

func scalarMap(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch v.(type) {
		case nil, map[string]any, []any:
			continue
		}
		out[k] = utils.Stringify(v)
	}
	return out
}

func nestedMaps(in map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			out[k] = m
		}
	}
	return out
}
