package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
	"github.com/savaki/cfn-actions/internal/dao/deploymentdao"
	"github.com/savaki/cfn-actions/internal/dao/lockdao"
	"github.com/savaki/cfn-actions/internal/di"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/models"
	"github.com/savaki/cfn-actions/internal/params"
	"github.com/savaki/cfn-actions/internal/policy"
	"github.com/savaki/cfn-actions/internal/services"
	"github.com/savaki/cfn-actions/internal/stack"
	"github.com/savaki/cfn-actions/internal/tags"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// DeployCommand returns the command that creates or updates a stack
func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Create or update a CloudFormation stack",
		Description: `Deploys the template with the parameter file from process-parameters and
the tags from process-tags. The stack is created when it does not exist and
updated otherwise; an update without changes succeeds with operation NONE.

When --ledger-table is set the deployment is recorded in that DynamoDB table,
keyed by environment and stack name, then account and region. When
--lock-table is set a lock on the environment and stack is held for the
duration of the deploy, failing runs that find it taken. When --policy-file
is set the template must satisfy that Rego policy before anything is
deployed.

Examples:
  cfn-actions deploy --stack-name orders-bucket \
    --template cloud-formation/app/bucket/template.yaml \
    --param-file "$PARAM_FILE" --tags "$TAGS"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "stack-name",
				Usage:   "CloudFormation stack name",
				EnvVars: []string{"INPUT_STACK_NAME"},
			},
			&cli.StringFlag{
				Name:    "template",
				Usage:   "Template path, file:// URL or https:// URL",
				EnvVars: []string{"INPUT_TEMPLATE"},
			},
			&cli.StringFlag{
				Name:    "param-file",
				Usage:   "Parameter file location, usually the PARAM_FILE output",
				EnvVars: []string{"INPUT_PARAM_FILE"},
			},
			&cli.StringFlag{
				Name:    "tags",
				Usage:   "Tags JSON, usually the TAGS output",
				EnvVars: []string{"INPUT_TAGS"},
			},
			&cli.StringFlag{
				Name:    "role-arn",
				Usage:   "Service role CloudFormation assumes for the stack",
				EnvVars: []string{"INPUT_ROLE_ARN"},
			},
			&cli.StringFlag{
				Name:    "capabilities",
				Usage:   "Comma separated capabilities, CAPABILITY_IAM,CAPABILITY_NAMED_IAM when empty",
				EnvVars: []string{"INPUT_CAPABILITIES"},
			},
			&cli.BoolFlag{
				Name:    "wait",
				Usage:   "Wait for the stack operation to complete",
				Value:   true,
				EnvVars: []string{"INPUT_WAIT"},
			},
			&cli.DurationFlag{
				Name:    "wait-timeout",
				Usage:   "Maximum time to wait for the stack operation",
				Value:   stack.DefaultWaitTimeout,
				EnvVars: []string{"INPUT_WAIT_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "ledger-table",
				Usage:   "DynamoDB table to record the deployment in",
				EnvVars: []string{"INPUT_LEDGER_TABLE"},
			},
			&cli.StringFlag{
				Name:    "lock-table",
				Usage:   "DynamoDB table holding per-stack deploy locks",
				EnvVars: []string{"INPUT_LOCK_TABLE"},
			},
			&cli.StringFlag{
				Name:    "policy-file",
				Usage:   "Rego policy the template must satisfy",
				EnvVars: []string{"INPUT_POLICY_FILE"},
			},
			&cli.StringFlag{
				Name:    "environment",
				Aliases: []string{"e"},
				Usage:   "Deployment environment recorded in the ledger",
				EnvVars: []string{"INPUT_ENVIRONMENT"},
			},
		},
		Action: func(c *cli.Context) error {
			return deployAction(c, logger)
		},
	}
}

type deployInput struct {
	StackName    string `validate:"required"`
	Template     string `validate:"required"`
	ParamFile    string
	Tags         string
	RoleARN      string `validate:"omitempty,startswith=arn:"`
	Capabilities string
	Wait         bool
	WaitTimeout  time.Duration
	LedgerTable  string
	LockTable    string
	PolicyFile   string
	Environment  string `validate:"required_with=LedgerTable LockTable"`
}

type stackDeployer interface {
	Deploy(ctx context.Context, input stack.Input) (*stack.Result, error)
}

type ledger interface {
	Start(ctx context.Context, input deploymentdao.CreateInput) (deploymentdao.Record, error)
	Finish(ctx context.Context, input deploymentdao.FinishInput) error
}

type locker interface {
	Acquire(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error)
	Release(ctx context.Context, input lockdao.ReleaseInput) error
}

type templateChecker interface {
	Check(ctx context.Context, body []byte, env, stackName string) error
}

type identityLookup interface {
	CallerIdentity(ctx context.Context) (services.Identity, error)
}

// deployment runs one stack deployment. The policy and lock are optional
// gates; the ledger is optional bookkeeping whose failures never fail the
// deployment.
type deployment struct {
	Deployer stackDeployer
	Policy   templateChecker
	Lock     locker
	Ledger   ledger
	Identity identityLookup
	Env      string
	Holder   string
	Context  actions.Context
}

func deployAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := commandContext(c, logger)

	in := deployInput{
		StackName:    c.String("stack-name"),
		Template:     c.String("template"),
		ParamFile:    c.String("param-file"),
		Tags:         c.String("tags"),
		RoleARN:      c.String("role-arn"),
		Capabilities: c.String("capabilities"),
		Wait:         c.Bool("wait"),
		WaitTimeout:  c.Duration("wait-timeout"),
		LedgerTable:  c.String("ledger-table"),
		LockTable:    c.String("lock-table"),
		PolicyFile:   c.String("policy-file"),
		Environment:  c.String("environment"),
	}
	if err := actions.Validate(in); err != nil {
		return err
	}

	actx, err := actions.ParseContext()
	if err != nil {
		return err
	}

	container, err := newContainer(ctx, in.Environment,
		di.WithLedgerTable(in.LedgerTable),
		di.WithLockTable(in.LockTable),
	)
	if err != nil {
		return err
	}

	input, err := buildStackInput(ctx, in, params.Loader{S3: lazyObjectReader{container: container}})
	if err != nil {
		return err
	}

	deployer, err := di.Get[*stack.Deployer](container)
	if err != nil {
		return fmt.Errorf("failed to create CloudFormation client: %w", err)
	}

	d := deployment{
		Deployer: deployer,
		Env:      in.Environment,
		Holder:   lockHolder(actx),
		Context:  actx,
	}
	if in.PolicyFile != "" {
		if d.Policy, err = policy.LoadValidator(ctx, in.PolicyFile); err != nil {
			return err
		}
	}
	if in.LockTable != "" {
		dao, err := di.Get[*lockdao.DAO](container)
		if err != nil {
			return fmt.Errorf("failed to create lock table client: %w", err)
		}
		d.Lock = dao
	}
	if in.LedgerTable != "" {
		dao, err := di.Get[*deploymentdao.DAO](container)
		if err != nil {
			return fmt.Errorf("failed to create ledger: %w", err)
		}
		identity, err := di.Get[*services.IdentityService](container)
		if err != nil {
			return fmt.Errorf("failed to create STS client: %w", err)
		}
		d.Ledger = dao
		d.Identity = identity
	}

	result, err := d.run(ctx, input)
	if err != nil {
		return err
	}

	return actions.NewOutput(actx.OutputPath).SetMany(
		[2]string{"STACK_ID", result.StackID},
		[2]string{"OPERATION", string(result.Operation)},
	)
}

func buildStackInput(ctx context.Context, in deployInput, loader params.Loader) (stack.Input, error) {
	body, url, err := stack.LoadTemplate(in.Template)
	if err != nil {
		return stack.Input{}, err
	}

	source, err := loader.Load(ctx, in.ParamFile)
	if err != nil {
		return stack.Input{}, err
	}

	var stackTags []models.Tag
	if strings.TrimSpace(in.Tags) != "" {
		if stackTags, err = tags.ParseJSON([]byte(in.Tags)); err != nil {
			return stack.Input{}, fmt.Errorf("failed to parse tags: %w", err)
		}
	}

	return stack.Input{
		StackName:    in.StackName,
		TemplateBody: body,
		TemplateURL:  url,
		Parameters:   source.Parameters(),
		Tags:         stackTags,
		RoleARN:      in.RoleARN,
		Capabilities: stack.ParseCapabilities(in.Capabilities),
		Wait:         in.Wait,
		WaitTimeout:  in.WaitTimeout,
	}, nil
}

// lockHolder identifies the run holding a stack lock. Re-runs of the same
// workflow run share the holder so a retried job reclaims its own lock.
func lockHolder(actx actions.Context) string {
	if actx.RunID == "" {
		return ksuid.New().String()
	}
	if actx.Repository == "" {
		return actx.RunID
	}
	return actx.Repository + "#" + actx.RunID
}

func (d deployment) run(ctx context.Context, input stack.Input) (*stack.Result, error) {
	logger := zerolog.Ctx(ctx)

	if err := d.checkPolicy(ctx, input); err != nil {
		return nil, err
	}

	release, err := d.acquire(ctx, input.StackName)
	if err != nil {
		return nil, err
	}
	defer release()

	id, recorded := d.start(ctx, input.StackName)

	result, err := d.Deployer.Deploy(ctx, input)
	if err != nil {
		if recorded {
			d.finish(ctx, deploymentdao.FinishInput{
				ID:           id,
				Status:       deploymentdao.StatusFailed,
				StatusReason: err.Error(),
			})
		}
		return nil, err
	}

	if recorded {
		d.finish(ctx, deploymentdao.FinishInput{
			ID:        id,
			Status:    deploymentdao.StatusSuccess,
			StackID:   result.StackID,
			Operation: string(result.Operation),
		})
	}

	logger.Info().
		Str("stack_name", result.StackName).
		Str("stack_id", result.StackID).
		Str("operation", string(result.Operation)).
		Msg("Stack deployed")

	return result, nil
}

func (d deployment) checkPolicy(ctx context.Context, input stack.Input) error {
	if d.Policy == nil {
		return nil
	}
	if input.TemplateBody == "" {
		zerolog.Ctx(ctx).Warn().Str("template_url", input.TemplateURL).Msg("Skipping policy check for remote template")
		return nil
	}
	return d.Policy.Check(ctx, []byte(input.TemplateBody), d.Env, input.StackName)
}

// acquire takes the stack lock and returns the func releasing it
func (d deployment) acquire(ctx context.Context, stackName string) (func(), error) {
	if d.Lock == nil {
		return func() {}, nil
	}
	logger := zerolog.Ctx(ctx)

	current, acquired, err := d.Lock.Acquire(ctx, lockdao.AcquireInput{
		Env:       d.Env,
		StackName: stackName,
		Holder:    d.Holder,
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s held by %s", ierrors.ErrStackLocked, stackName, current.Holder)
	}

	logger.Info().Str("stack_name", stackName).Str("holder", d.Holder).Msg("Acquired stack lock")
	return func() {
		err := d.Lock.Release(ctx, lockdao.ReleaseInput{
			ID:     lockdao.NewID(d.Env, stackName),
			Holder: d.Holder,
		})
		if err != nil {
			logger.Warn().Err(err).Str("stack_name", stackName).Msg("Failed to release stack lock")
		}
	}, nil
}

func (d deployment) start(ctx context.Context, stackName string) (deploymentdao.ID, bool) {
	if d.Ledger == nil || d.Identity == nil {
		return "", false
	}
	logger := zerolog.Ctx(ctx)

	identity, err := d.Identity.CallerIdentity(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Skipping ledger, caller identity unavailable")
		return "", false
	}

	record, err := d.Ledger.Start(ctx, deploymentdao.CreateInput{
		Env:        d.Env,
		StackName:  stackName,
		Account:    identity.Account,
		Region:     identity.Region,
		RunID:      d.Context.RunID,
		Repository: d.Context.Repository,
		SHA:        d.Context.SHA,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to record deployment start")
		return "", false
	}
	return record.GetID(), true
}

func (d deployment) finish(ctx context.Context, input deploymentdao.FinishInput) {
	if err := d.Ledger.Finish(ctx, input); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("id", input.ID.String()).Msg("Failed to record deployment outcome")
	}
}
