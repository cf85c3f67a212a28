package policy

import (
	"context"
	"errors"
	"reflect"
	"testing"

	ierrors "github.com/savaki/cfn-actions/internal/errors"
)

const testPolicy = `package cloudformation

allowed_types := {
	"AWS::S3::Bucket",
	"AWS::SQS::Queue",
	"AWS::SNS::Topic",
}

violations contains msg if {
	some name, resource in input.Resources
	not allowed_types[resource.Type]
	msg := sprintf("%s: resource type %s is not allowed", [name, resource.Type])
}

violations contains msg if {
	data.env == "prod"
	some name, resource in input.Resources
	resource.Type == "AWS::S3::Bucket"
	not resource.Properties.BucketEncryption
	msg := sprintf("%s: buckets in prod must be encrypted", [name])
}

default allow := false

allow if count(violations) == 0
`

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	validator, err := NewValidator(context.Background(), "test.rego", testPolicy)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	return validator
}

func TestValidator_ValidateTemplate(t *testing.T) {
	validator := newTestValidator(t)

	tests := []struct {
		name             string
		template         string
		env              string
		expectAllow      bool
		expectViolations []string
	}{
		{
			name: "allowed resources",
			template: `{
				"Resources": {
					"Bucket": {"Type": "AWS::S3::Bucket", "Properties": {"BucketName": "orders"}},
					"Queue": {"Type": "AWS::SQS::Queue"}
				}
			}`,
			env:         "dev",
			expectAllow: true,
		},
		{
			name: "disallowed type",
			template: `{
				"Resources": {
					"Role": {"Type": "AWS::IAM::Role"},
					"Bucket": {"Type": "AWS::S3::Bucket"}
				}
			}`,
			env:              "dev",
			expectAllow:      false,
			expectViolations: []string{"Role: resource type AWS::IAM::Role is not allowed"},
		},
		{
			name: "environment specific rule",
			template: `{
				"Resources": {
					"Bucket": {"Type": "AWS::S3::Bucket", "Properties": {"BucketName": "orders"}}
				}
			}`,
			env:              "prod",
			expectAllow:      false,
			expectViolations: []string{"Bucket: buckets in prod must be encrypted"},
		},
		{
			name: "several violations are sorted",
			template: `{
				"Resources": {
					"Zeta": {"Type": "AWS::EC2::Instance"},
					"Alpha": {"Type": "AWS::Lambda::Function"}
				}
			}`,
			env:         "dev",
			expectAllow: false,
			expectViolations: []string{
				"Alpha: resource type AWS::Lambda::Function is not allowed",
				"Zeta: resource type AWS::EC2::Instance is not allowed",
			},
		},
		{
			name:        "no resources",
			template:    `{"Outputs": {}}`,
			env:         "dev",
			expectAllow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template, err := ParseTemplate([]byte(tt.template))
			if err != nil {
				t.Fatalf("ParseTemplate() unexpected error: %v", err)
			}

			result, err := validator.ValidateTemplate(context.Background(), template, tt.env, "orders")
			if err != nil {
				t.Fatalf("ValidateTemplate() unexpected error: %v", err)
			}
			if result.Allowed != tt.expectAllow {
				t.Errorf("Allowed = %v, want %v (violations: %v)", result.Allowed, tt.expectAllow, result.Violations)
			}
			if !reflect.DeepEqual(result.Violations, tt.expectViolations) {
				t.Errorf("Violations = %v, want %v", result.Violations, tt.expectViolations)
			}
		})
	}
}

func TestValidator_Check(t *testing.T) {
	validator := newTestValidator(t)

	yamlTemplate := []byte(`
AWSTemplateFormatVersion: "2010-09-09"
Resources:
  Bucket:
    Type: AWS::S3::Bucket
  Topic:
    Type: AWS::SNS::Topic
    Properties:
      TopicName: !Ref Bucket
`)
	if err := validator.Check(context.Background(), yamlTemplate, "dev", "orders"); err != nil {
		t.Errorf("Check() unexpected error: %v", err)
	}

	err := validator.Check(context.Background(), []byte(`{"Resources": {"Fn": {"Type": "AWS::Lambda::Function"}}}`), "dev", "orders")
	if !errors.Is(err, ierrors.ErrPolicyViolation) {
		t.Errorf("Check() error = %v, want ErrPolicyViolation", err)
	}
}

func TestNewValidator_InvalidPolicy(t *testing.T) {
	_, err := NewValidator(context.Background(), "bad.rego", "package cloudformation\n\nallow if {")
	if err == nil {
		t.Error("NewValidator() should fail for invalid Rego")
	}
}

func TestParseTemplate_Empty(t *testing.T) {
	if _, err := ParseTemplate([]byte("")); err == nil {
		t.Error("ParseTemplate() should fail for an empty document")
	}
}
