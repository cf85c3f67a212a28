// Package policy checks CloudFormation templates against a Rego policy
// before they are deployed.
//
// Policies live in package cloudformation and define a boolean allow rule
// and a violations set of messages. The template is the input document;
// data.env and data.stack name the deployment being checked.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	allowQuery      = "data.cloudformation.allow"
	violationsQuery = "data.cloudformation.violations"
)

type Validator struct {
	name   string
	module string
}

type ValidationResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// NewValidator compiles module once to surface syntax errors early
func NewValidator(ctx context.Context, name, module string) (*Validator, error) {
	_, err := rego.New(
		rego.Query(allowQuery),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	return &Validator{
		name:   name,
		module: module,
	}, nil
}

// LoadValidator reads a Rego policy from path
func LoadValidator(ctx context.Context, path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewValidator(ctx, path, string(data))
}

// ValidateTemplate evaluates the policy against template for env and stack
func (v *Validator) ValidateTemplate(ctx context.Context, template map[string]any, env, stackName string) (*ValidationResult, error) {
	input := map[string]any{
		"Resources":  template["Resources"],
		"Parameters": template["Parameters"],
		"Outputs":    template["Outputs"],
	}

	data := map[string]any{
		"env":   env,
		"stack": stackName,
	}

	value, err := v.eval(ctx, allowQuery, input, data)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return &ValidationResult{
			Allowed:    false,
			Violations: []string{"policy evaluation returned no results"},
		}, nil
	}

	allowed, ok := value.(bool)
	if !ok {
		return &ValidationResult{
			Allowed:    false,
			Violations: []string{"policy evaluation returned non-boolean result"},
		}, nil
	}

	result := &ValidationResult{
		Allowed: allowed,
	}

	if !allowed {
		violations, err := v.violations(ctx, input, data)
		if err != nil {
			return nil, fmt.Errorf("failed to get violations: %w", err)
		}
		result.Violations = violations
	}

	return result, nil
}

// Check validates body and returns ErrPolicyViolation listing the
// violations when the template is not allowed
func (v *Validator) Check(ctx context.Context, body []byte, env, stackName string) error {
	template, err := ParseTemplate(body)
	if err != nil {
		return err
	}

	result, err := v.ValidateTemplate(ctx, template, env, stackName)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %v", ierrors.ErrPolicyViolation, result.Violations)
	}
	return nil
}

func (v *Validator) eval(ctx context.Context, query string, input, data map[string]any) (any, error) {
	store := inmem.NewFromObject(data)

	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(v.name, v.module),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query with data: %w", err)
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	return results[0].Expressions[0].Value, nil
}

func (v *Validator) violations(ctx context.Context, input, data map[string]any) ([]string, error) {
	value, err := v.eval(ctx, violationsQuery, input, data)
	if err != nil {
		return nil, err
	}

	var violations []string
	switch vv := value.(type) {
	case []any:
		for _, violation := range vv {
			if str, ok := violation.(string); ok {
				violations = append(violations, str)
			}
		}
	case map[string]any:
		for violation := range vv {
			violations = append(violations, violation)
		}
	}
	sort.Strings(violations)

	if len(violations) == 0 {
		return []string{"policy validation failed but no specific violations found"}, nil
	}

	return violations, nil
}

// ParseTemplate decodes a JSON or YAML template. Short form intrinsic
// functions such as !Ref decode as their plain value.
func ParseTemplate(body []byte) (map[string]any, error) {
	var template map[string]any
	if err := yaml.Unmarshal(body, &template); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if template == nil {
		return nil, fmt.Errorf("failed to parse template: empty document")
	}
	return template, nil
}
