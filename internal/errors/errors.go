package errors

import "errors"

var (
	ErrConfigNotFound       = errors.New("deployment config not found")
	ErrInvalidConfig        = errors.New("invalid deployment config")
	ErrNoDeployments        = errors.New("no deployments found in deployment config")
	ErrInlineParameters     = errors.New("invalid inline JSON parameters")
	ErrNoTags               = errors.New("no tags are provided for this stack")
	ErrOutputNotConfigured  = errors.New("GITHUB_OUTPUT environment variable not set")
	ErrSecretsNotFound      = errors.New("no secrets found")
	ErrInvalidParameterFile = errors.New("invalid parameter file")
	ErrStackNotFound        = errors.New("stack not found")
	ErrStackLocked          = errors.New("stack is locked by another run")
	ErrPolicyViolation      = errors.New("template violates policy")
)
