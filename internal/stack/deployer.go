// Package stack creates or updates CloudFormation stacks
package stack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/models"
)

// Operation is what Deploy did to the stack
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationNone   Operation = "NONE"
)

const DefaultWaitTimeout = 60 * time.Minute

// API is the subset of the CloudFormation client used by Deployer
type API interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
}

// Input describes one stack deployment. Exactly one of TemplateBody and
// TemplateURL is set.
type Input struct {
	StackName    string
	TemplateBody string
	TemplateURL  string
	Parameters   []models.Parameter
	Tags         []models.Tag
	RoleARN      string
	Capabilities []string
	Wait         bool
	WaitTimeout  time.Duration
}

type Result struct {
	StackName string
	StackID   string
	Operation Operation
}

type Deployer struct {
	CloudFormation API
}

// Deploy creates the stack when it does not exist and updates it otherwise.
// An update with no changes succeeds with OperationNone.
func (d Deployer) Deploy(ctx context.Context, input Input) (result *Result, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("stack_name", input.StackName).
			Dur("duration", time.Since(begin)).
			Msg("Deploy completed")
	}(time.Now())

	if input.TemplateBody == "" && input.TemplateURL == "" {
		return nil, fmt.Errorf("template is required")
	}

	stackID, err := d.stackID(ctx, input.StackName)
	if err != nil && !errors.Is(err, ierrors.ErrStackNotFound) {
		return nil, fmt.Errorf("failed to check if stack exists: %w", err)
	}

	if stackID == "" {
		result, err = d.createStack(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to create stack: %w", err)
		}
	} else {
		result, err = d.updateStack(ctx, input, stackID)
		if err != nil {
			return nil, fmt.Errorf("failed to update stack: %w", err)
		}
	}

	if input.Wait && result.Operation != OperationNone {
		if err := d.wait(ctx, input, result.Operation); err != nil {
			return result, err
		}
	}

	logger.Info().
		Str("operation", string(result.Operation)).
		Str("stack_name", input.StackName).
		Str("stack_id", result.StackID).
		Msg("Stack deployment completed")
	return result, nil
}

// stackID returns the id of the named stack, or ErrStackNotFound
func (d Deployer) stackID(ctx context.Context, stackName string) (string, error) {
	out, err := d.CloudFormation.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist") {
				return "", ierrors.ErrStackNotFound
			}
		}
		return "", err
	}
	if len(out.Stacks) == 0 {
		return "", ierrors.ErrStackNotFound
	}
	return aws.ToString(out.Stacks[0].StackId), nil
}

func (d Deployer) createStack(ctx context.Context, input Input) (*Result, error) {
	params := &cloudformation.CreateStackInput{
		StackName:    aws.String(input.StackName),
		Parameters:   models.ToCloudFormationParameters(input.Parameters),
		Tags:         models.ToCloudFormationTags(input.Tags),
		Capabilities: capabilities(input.Capabilities),
	}
	if input.TemplateURL != "" {
		params.TemplateURL = aws.String(input.TemplateURL)
	} else {
		params.TemplateBody = aws.String(input.TemplateBody)
	}
	if input.RoleARN != "" {
		params.RoleARN = aws.String(input.RoleARN)
	}

	out, err := d.CloudFormation.CreateStack(ctx, params)
	if err != nil {
		return nil, err
	}

	return &Result{
		StackName: input.StackName,
		StackID:   aws.ToString(out.StackId),
		Operation: OperationCreate,
	}, nil
}

func (d Deployer) updateStack(ctx context.Context, input Input, stackID string) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	params := &cloudformation.UpdateStackInput{
		StackName:    aws.String(input.StackName),
		Parameters:   models.ToCloudFormationParameters(input.Parameters),
		Tags:         models.ToCloudFormationTags(input.Tags),
		Capabilities: capabilities(input.Capabilities),
	}
	if input.TemplateURL != "" {
		params.TemplateURL = aws.String(input.TemplateURL)
	} else {
		params.TemplateBody = aws.String(input.TemplateBody)
	}
	if input.RoleARN != "" {
		params.RoleARN = aws.String(input.RoleARN)
	}

	out, err := d.CloudFormation.UpdateStack(ctx, params)
	if err != nil {
		if isNoUpdates(err) {
			logger.Info().Str("stack_name", input.StackName).Msg("No updates needed for stack")
			return &Result{
				StackName: input.StackName,
				StackID:   stackID,
				Operation: OperationNone,
			}, nil
		}
		return nil, err
	}

	return &Result{
		StackName: input.StackName,
		StackID:   aws.ToString(out.StackId),
		Operation: OperationUpdate,
	}, nil
}

func (d Deployer) wait(ctx context.Context, input Input, op Operation) error {
	logger := zerolog.Ctx(ctx)

	timeout := input.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	params := &cloudformation.DescribeStacksInput{StackName: aws.String(input.StackName)}
	logger.Info().Str("stack_name", input.StackName).Dur("timeout", timeout).Msg("Waiting for stack")

	var err error
	switch op {
	case OperationCreate:
		err = cloudformation.NewStackCreateCompleteWaiter(d.CloudFormation).Wait(ctx, params, timeout)
	case OperationUpdate:
		err = cloudformation.NewStackUpdateCompleteWaiter(d.CloudFormation).Wait(ctx, params, timeout)
	}
	if err != nil {
		return fmt.Errorf("failed waiting for stack %s: %w", input.StackName, err)
	}
	return nil
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ValidationError" {
		return false
	}
	msg := apiErr.ErrorMessage()
	return strings.Contains(msg, "No updates are to be performed") ||
		strings.Contains(msg, "No updates to be performed")
}

// capabilities defaults to IAM and named IAM when none are requested
func capabilities(names []string) []types.Capability {
	if len(names) == 0 {
		return []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
		}
	}

	caps := make([]types.Capability, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			caps = append(caps, types.Capability(name))
		}
	}
	return caps
}
