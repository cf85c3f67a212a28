// Package di provides a lightweight wrapper around uber's dig dependency injection framework.
// It simplifies container setup and provides type-safe dependency retrieval with generics.
package di

import (
	"context"

	"github.com/savaki/cfn-actions/internal/services"
	"go.uber.org/dig"
)

// Container defines a dependency injection container based on uber's dig.
// This interface allows for easy testing and mocking of the DI container.
type Container interface {
	// Invoke executes a function, injecting its dependencies from the container.
	Invoke(function any, opts ...dig.InvokeOption) error

	// Provide registers a constructor function in the container.
	Provide(constructor any, opts ...dig.ProvideOption) error

	// Scope creates a scoped sub-container with its own set of values.
	Scope(name string, opts ...dig.ScopeOption) *dig.Scope
}

// MustGet returns an instance constructed via dependency injection or panics.
// This is a convenience function for retrieving a dependency from the container
// when you're certain it exists. If the dependency cannot be resolved, it will panic.
//
// Example:
//
//	deployer := MustGet[*stack.Deployer](container)
func MustGet[T any](container Container) (want T) {
	callback := func(got T) {
		want = got
	}
	if err := container.Invoke(callback); err != nil {
		panic(err)
	}
	return want
}

// Get is MustGet that returns the resolution error instead of panicking
func Get[T any](container Container) (want T, err error) {
	err = container.Invoke(func(got T) {
		want = got
	})
	return want, err
}

// New creates a new dependency injection container for the given environment.
// The environment string is automatically registered as a string dependency
// that can be injected as a regular string parameter.
//
// AWS clients are constructed lazily, so commands that never ask for one
// never load AWS configuration.
//
// Example:
//
//	container, err := New("dev",
//	    WithContext(ctx),
//	    WithLedgerTable("cfn-deployments"),
//	)
func New(env string, opts ...Option) (Container, error) {
	o := options{
		ctx: context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	container := dig.New()
	if err := container.Provide(func() string { return env }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() context.Context { return o.ctx }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() LedgerTable { return o.ledgerTable }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() LockTable { return o.lockTable }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() GitHubToken { return o.githubToken }); err != nil {
		return nil, err
	}

	for _, provider := range core {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	for _, provider := range o.providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

var core = []any{
	ProvideAWSConfig,
	ProvideS3Client,
	ProvideSSMClient,
	ProvideParameterStore,
	ProvideDynamoDB,
	ProvideCloudFormation,
	ProvideStackDeployer,
	ProvideDeploymentDAO,
	ProvideLockDAO,
	ProvideGitHubService,
	services.NewS3Service,
	services.NewSecretsManagerService,
	services.NewIdentityService,
}
