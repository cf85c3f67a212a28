// Package actions adapts the GitHub Actions runtime: the environment the
// runner provides, the GITHUB_OUTPUT file protocol, and workflow-command
// annotations.
package actions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Context holds the GitHub Actions runtime variables shared by all commands
type Context struct {
	EventName  string `env:"GITHUB_EVENT_NAME"`
	EventPath  string `env:"GITHUB_EVENT_PATH"`
	SHA        string `env:"GITHUB_SHA"`
	Before     string `env:"GITHUB_EVENT_BEFORE"`
	RunID      string `env:"GITHUB_RUN_ID"`
	RunNumber  string `env:"GITHUB_RUN_NUMBER"`
	Repository string `env:"GITHUB_REPOSITORY"`
	Token      string `env:"GITHUB_TOKEN"`
	OutputPath string `env:"GITHUB_OUTPUT"`
	EnvPath    string `env:"GITHUB_ENV"`
	Actions    bool   `env:"GITHUB_ACTIONS"`
}

// ParseContext reads the runtime context from the process environment
func ParseContext() (Context, error) {
	var c Context
	if err := env.Parse(&c); err != nil {
		return Context{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return c, nil
}

// ParseContextFrom reads the runtime context from the given variables.
// Useful for tests.
func ParseContextFrom(vars map[string]string) (Context, error) {
	var c Context
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return Context{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a command's input struct using its validate tags and
// flattens any failures into a single error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, formatValidationError(e))
	}
	return fmt.Errorf("invalid input:\n  - %s", strings.Join(msgs, "\n  - "))
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", e.Field(), e.Param(), e.Value())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field(), e.Tag())
	}
}
