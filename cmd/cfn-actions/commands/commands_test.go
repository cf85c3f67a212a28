package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
	"github.com/savaki/cfn-actions/internal/dao/deploymentdao"
	"github.com/savaki/cfn-actions/internal/dao/lockdao"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/models"
	"github.com/savaki/cfn-actions/internal/params"
	"github.com/savaki/cfn-actions/internal/services"
	"github.com/savaki/cfn-actions/internal/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runtimeVars are cleared for every test so the runner's own environment
// cannot leak into a command.
var runtimeVars = []string{
	"GITHUB_EVENT_NAME", "GITHUB_EVENT_PATH", "GITHUB_SHA", "GITHUB_EVENT_BEFORE",
	"GITHUB_RUN_ID", "GITHUB_RUN_NUMBER", "GITHUB_REPOSITORY", "GITHUB_TOKEN",
	"GITHUB_OUTPUT", "GITHUB_ENV", "GITHUB_ACTIONS",
	"GITHUB_SECRETS_PATH", "SECRET_SALT_KEY", "GITHUB_SECRETS_BASE64", "GITHUB_SECRETS_JSON",
	"SECRETS_MANAGER_SECRET_ID", "SSM_SECRETS_PATH", "ALLOW_ENV_SECRETS",
	"INPUT_APP_NAME", "INPUT_ROOT_DIR", "INPUT_NATIVE_GIT",
	"INPUT_RESOURCE_PATHS", "INPUT_SPECIFIC_ENVIRONMENT", "INPUT_RESOLVE_SECRETS",
	"INPUT_PARAMETER_OVERRIDES", "INPUT_INLINE_JSON_PARAMETERS",
	"INPUT_TAGS", "INPUT_TAGS_KEY_VALUE",
}

// setupEnv clears the runtime variables, points GITHUB_OUTPUT at a temp file
// and returns its path.
func setupEnv(t *testing.T) string {
	t.Helper()
	for _, key := range runtimeVars {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	output := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", output)
	t.Setenv("GITHUB_RUN_ID", "100")
	t.Setenv("GITHUB_RUN_NUMBER", "7")
	return output
}

func runCommand(t *testing.T, cmd *cli.Command, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	app := &cli.App{
		Name:      "cfn-actions",
		Writer:    &stdout,
		ErrWriter: &bytes.Buffer{},
		Commands:  []*cli.Command{cmd},
	}
	err := app.RunContext(context.Background(), append([]string{"cfn-actions", cmd.Name}, args...))
	return stdout.String(), err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestProcessTags(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("key value wins", func(t *testing.T) {
		output := setupEnv(t)
		t.Setenv("INPUT_TAGS", `[{"Key":"team","Value":"core"},{"Key":"cost-center","Value":"42"}]`)
		t.Setenv("INPUT_TAGS_KEY_VALUE", "team=platform\nowner=\"ops\"")

		_, err := runCommand(t, ProcessTagsCommand(&logger))
		require.NoError(t, err)

		assert.Equal(t,
			`TAGS=[{"Key":"team","Value":"platform"},{"Key":"cost-center","Value":"42"},{"Key":"owner","Value":"ops"}]`+"\n",
			readFile(t, output))
	})

	t.Run("no tags", func(t *testing.T) {
		setupEnv(t)

		_, err := runCommand(t, ProcessTagsCommand(&logger))
		assert.ErrorIs(t, err, ierrors.ErrNoTags)
	})
}

func TestProcessParameters(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("merges file and inline", func(t *testing.T) {
		output := setupEnv(t)
		dir := t.TempDir()
		paramFile := filepath.Join(dir, "params.json")
		writeFile(t, paramFile, `[
  {"ParameterKey": "BucketName", "ParameterValue": "from-file"},
  {"ParameterKey": "Password", "ParameterValue": "SECRET:DB_PASSWORD"}
]`)
		t.Setenv("INPUT_PARAMETER_OVERRIDES", "file://"+paramFile)
		t.Setenv("INPUT_INLINE_JSON_PARAMETERS", `{"BucketName": "from-inline", "Retention": 7}`)
		t.Setenv("GITHUB_SECRETS_JSON", `{"DB_PASSWORD": "hunter2"}`)

		tmp := t.TempDir()
		_, err := runCommand(t, ProcessParametersCommand(&logger), "--tmp-dir", tmp)
		require.NoError(t, err)

		want := filepath.Join(tmp, "1007", "cfn-parameter-100-7.json")
		assert.Equal(t, "PARAM_FILE=file://"+want+"\n", readFile(t, output))

		var got []models.Parameter
		require.NoError(t, json.Unmarshal([]byte(readFile(t, want)), &got))
		assert.Equal(t, []models.Parameter{
			{ParameterKey: "BucketName", ParameterValue: "from-inline"},
			{ParameterKey: "Password", ParameterValue: "hunter2"},
			{ParameterKey: "Retention", ParameterValue: "7"},
		}, got)
	})

	t.Run("no parameters", func(t *testing.T) {
		output := setupEnv(t)

		_, err := runCommand(t, ProcessParametersCommand(&logger), "--tmp-dir", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "PARAM_FILE=\n", readFile(t, output))
	})

	t.Run("bad inline without file", func(t *testing.T) {
		setupEnv(t)
		t.Setenv("INPUT_INLINE_JSON_PARAMETERS", `{"BucketName": `)

		_, err := runCommand(t, ProcessParametersCommand(&logger), "--tmp-dir", t.TempDir())
		assert.ErrorIs(t, err, ierrors.ErrInlineParameters)
	})
}

func TestGenerateMatrix(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("requires GITHUB_OUTPUT", func(t *testing.T) {
		setupEnv(t)
		require.NoError(t, os.Unsetenv("GITHUB_OUTPUT"))

		_, err := runCommand(t, GenerateMatrixCommand(&logger), "--resource-paths", "cloud-formation/app/bucket")
		assert.ErrorIs(t, err, ierrors.ErrOutputNotConfigured)
	})

	t.Run("writes matrices", func(t *testing.T) {
		output := setupEnv(t)
		repo := t.TempDir()
		writeFile(t, filepath.Join(repo, "cloud-formation", "app", "bucket", "deployment-config.yaml"), `
deployments:
  - environments: [dev, prod]
    parameters:
      dev:
        BucketName: dev-bucket
      prod:
        BucketName: prod-bucket
    runners:
      dev: ubuntu-latest
      prod: ubuntu-latest
    github_environments:
      dev: development
      prod: production
    aws_regions:
      dev: us-east-1
      prod: eu-west-1
`)

		_, err := runCommand(t, GenerateMatrixCommand(&logger),
			"--repo-dir", repo,
			"--resource-paths", "cloud-formation/app/bucket",
			"--specific-environment", "dev",
		)
		require.NoError(t, err)

		got := readFile(t, output)
		assert.Contains(t, got, "dev_matrix<<EOF\n{\"include\":[{")
		assert.Contains(t, got, `"environment":"dev"`)
		assert.NotContains(t, got, `"environment":"prod"`)
		assert.Contains(t, got, "int_matrix<<EOF\n{\"include\":[]}\nEOF\n")
		assert.Contains(t, got, "prod_matrix<<EOF\n{\"include\":[]}\nEOF\n")
		assert.Contains(t, got, "custom_matrix<<EOF\n{\"include\":[]}\nEOF\n")
	})
}

func TestDetectChanges_Dispatch(t *testing.T) {
	logger := zerolog.Nop()
	output := setupEnv(t)

	eventPath := filepath.Join(t.TempDir(), "event.json")
	writeFile(t, eventPath, `{"inputs": {"resource_path": "cloud-formation/app/bucket"}}`)
	t.Setenv("GITHUB_EVENT_NAME", "workflow_dispatch")
	t.Setenv("GITHUB_EVENT_PATH", eventPath)

	_, err := runCommand(t, DetectChangesCommand(&logger), "--app-name", "app")
	require.NoError(t, err)
	assert.Equal(t, "paths=cloud-formation/app/bucket\n", readFile(t, output))
}

func TestSecrets_RoundTrip(t *testing.T) {
	logger := zerolog.Nop()
	output := setupEnv(t)
	t.Setenv("CFN_ACTIONS_TEST_SECRET", "s3cr3t")

	blobPath := filepath.Join(t.TempDir(), "secrets.b64")
	_, err := runCommand(t, SecretsCommand(&logger), "encrypt", "--salt-key", "pepper", "--output", blobPath)
	require.NoError(t, err)
	assert.Equal(t, "SECRETS_FILE="+blobPath+"\n", readFile(t, output))

	t.Run("decrypt exports to GITHUB_ENV", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), "env")
		t.Setenv("GITHUB_ENV", envPath)

		stdout, err := runCommand(t, SecretsCommand(&logger), "decrypt", "--file", blobPath, "--salt-key", "pepper")
		require.NoError(t, err)
		assert.Contains(t, stdout, "::add-mask::s3cr3t\n")
		assert.Contains(t, readFile(t, envPath), "CFN_ACTIONS_TEST_SECRET=s3cr3t\n")
	})

	t.Run("wrong salt", func(t *testing.T) {
		_, err := runCommand(t, SecretsCommand(&logger), "decrypt", "--file", blobPath, "--salt-key", "salt")
		assert.Error(t, err)
	})

	t.Run("process parameters", func(t *testing.T) {
		paramFile := filepath.Join(t.TempDir(), "params.json")
		writeFile(t, paramFile, `{"Password": "SECRET:CFN_ACTIONS_TEST_SECRET", "Name": "orders"}`)

		stdout, err := runCommand(t, SecretsCommand(&logger), "process-parameters",
			"--file", blobPath, "--salt-key", "pepper", "--parameter-file", paramFile)
		require.NoError(t, err)

		var got []models.Parameter
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, []models.Parameter{
			{ParameterKey: "Password", ParameterValue: "s3cr3t"},
			{ParameterKey: "Name", ParameterValue: "orders"},
		}, got)
	})

	t.Run("process parameters to file", func(t *testing.T) {
		paramFile := filepath.Join(t.TempDir(), "params.json")
		writeFile(t, paramFile, `[{"ParameterKey": "Password", "ParameterValue": "SECRET:CFN_ACTIONS_TEST_SECRET"}]`)
		processed := filepath.Join(t.TempDir(), "processed.json")

		_, err := runCommand(t, SecretsCommand(&logger), "process-parameters",
			"--file", blobPath, "--salt-key", "pepper", "--parameter-file", paramFile, "--output", processed)
		require.NoError(t, err)
		assert.Contains(t, readFile(t, processed), `"ParameterValue": "s3cr3t"`)
		assert.True(t, strings.HasSuffix(readFile(t, output), "PROCESSED_PARAM_FILE="+processed+"\n"))
	})
}

type fakeDeployer struct {
	result *stack.Result
	err    error
	input  stack.Input
}

func (f *fakeDeployer) Deploy(_ context.Context, input stack.Input) (*stack.Result, error) {
	f.input = input
	return f.result, f.err
}

type fakeLedger struct {
	started  []deploymentdao.CreateInput
	finished []deploymentdao.FinishInput
	startErr error
}

func (f *fakeLedger) Start(_ context.Context, input deploymentdao.CreateInput) (deploymentdao.Record, error) {
	if f.startErr != nil {
		return deploymentdao.Record{}, f.startErr
	}
	f.started = append(f.started, input)
	return deploymentdao.Record{
		PK: deploymentdao.NewPK(input.Env, input.StackName),
		SK: deploymentdao.NewSK(input.Account, input.Region),
	}, nil
}

func (f *fakeLedger) Finish(_ context.Context, input deploymentdao.FinishInput) error {
	f.finished = append(f.finished, input)
	return nil
}

type fakeLocker struct {
	holder   string
	acquired []lockdao.AcquireInput
	released []lockdao.ReleaseInput
}

func (f *fakeLocker) Acquire(_ context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error) {
	f.acquired = append(f.acquired, input)
	if f.holder != "" && f.holder != input.Holder {
		return &lockdao.Record{Holder: f.holder}, false, nil
	}
	return &lockdao.Record{Holder: input.Holder}, true, nil
}

func (f *fakeLocker) Release(_ context.Context, input lockdao.ReleaseInput) error {
	f.released = append(f.released, input)
	return nil
}

type fakePolicy struct {
	err error
}

func (f fakePolicy) Check(context.Context, []byte, string, string) error {
	return f.err
}

type fakeIdentity struct{}

func (fakeIdentity) CallerIdentity(context.Context) (services.Identity, error) {
	return services.Identity{Account: "111111111111", Region: "us-east-1"}, nil
}

func TestDeployment_Run(t *testing.T) {
	ctx := context.Background()
	actx := actions.Context{RunID: "100", Repository: "acme/infra", SHA: "abc123"}

	t.Run("records success", func(t *testing.T) {
		deployer := &fakeDeployer{result: &stack.Result{StackName: "orders", StackID: "arn:stack/orders/1", Operation: stack.OperationUpdate}}
		ledger := &fakeLedger{}
		d := deployment{Deployer: deployer, Ledger: ledger, Identity: fakeIdentity{}, Env: "dev", Context: actx}

		result, err := d.run(ctx, stack.Input{StackName: "orders", TemplateBody: "{}"})
		require.NoError(t, err)
		assert.Equal(t, stack.OperationUpdate, result.Operation)

		require.Len(t, ledger.started, 1)
		assert.Equal(t, "acme/infra", ledger.started[0].Repository)
		require.Len(t, ledger.finished, 1)
		assert.Equal(t, deploymentdao.NewID("dev", "orders", "111111111111", "us-east-1"), ledger.finished[0].ID)
		assert.Equal(t, deploymentdao.StatusSuccess, ledger.finished[0].Status)
		assert.Equal(t, "UPDATE", ledger.finished[0].Operation)
	})

	t.Run("records failure", func(t *testing.T) {
		deployer := &fakeDeployer{err: errors.New("ROLLBACK_COMPLETE")}
		ledger := &fakeLedger{}
		d := deployment{Deployer: deployer, Ledger: ledger, Identity: fakeIdentity{}, Env: "dev", Context: actx}

		_, err := d.run(ctx, stack.Input{StackName: "orders", TemplateBody: "{}"})
		require.Error(t, err)
		require.Len(t, ledger.finished, 1)
		assert.Equal(t, deploymentdao.StatusFailed, ledger.finished[0].Status)
		assert.Equal(t, "ROLLBACK_COMPLETE", ledger.finished[0].StatusReason)
	})

	t.Run("ledger failure does not fail deploy", func(t *testing.T) {
		deployer := &fakeDeployer{result: &stack.Result{StackName: "orders", Operation: stack.OperationNone}}
		ledger := &fakeLedger{startErr: errors.New("table missing")}
		d := deployment{Deployer: deployer, Ledger: ledger, Identity: fakeIdentity{}, Env: "dev", Context: actx}

		_, err := d.run(ctx, stack.Input{StackName: "orders", TemplateBody: "{}"})
		require.NoError(t, err)
		assert.Empty(t, ledger.finished)
	})

	t.Run("without ledger", func(t *testing.T) {
		deployer := &fakeDeployer{result: &stack.Result{StackName: "orders", Operation: stack.OperationCreate}}
		d := deployment{Deployer: deployer}

		result, err := d.run(ctx, stack.Input{StackName: "orders", TemplateBody: "{}"})
		require.NoError(t, err)
		assert.Equal(t, stack.OperationCreate, result.Operation)
	})
}

func TestDeployment_Gates(t *testing.T) {
	ctx := context.Background()
	input := stack.Input{StackName: "orders", TemplateBody: "{}"}

	t.Run("lock held by another run", func(t *testing.T) {
		deployer := &fakeDeployer{result: &stack.Result{StackName: "orders"}}
		lock := &fakeLocker{holder: "acme/infra#99"}
		d := deployment{Deployer: deployer, Lock: lock, Env: "dev", Holder: "acme/infra#100"}

		_, err := d.run(ctx, input)
		assert.ErrorIs(t, err, ierrors.ErrStackLocked)
		assert.Contains(t, err.Error(), "acme/infra#99")
		assert.Empty(t, deployer.input.StackName, "deploy must not run")
		assert.Empty(t, lock.released)
	})

	t.Run("lock released after deploy", func(t *testing.T) {
		deployer := &fakeDeployer{err: errors.New("boom")}
		lock := &fakeLocker{}
		d := deployment{Deployer: deployer, Lock: lock, Env: "dev", Holder: "acme/infra#100"}

		_, err := d.run(ctx, input)
		require.Error(t, err)
		require.Len(t, lock.released, 1)
		assert.Equal(t, lockdao.NewID("dev", "orders"), lock.released[0].ID)
		assert.Equal(t, "acme/infra#100", lock.released[0].Holder)
	})

	t.Run("policy violation", func(t *testing.T) {
		deployer := &fakeDeployer{result: &stack.Result{StackName: "orders"}}
		lock := &fakeLocker{}
		d := deployment{Deployer: deployer, Policy: fakePolicy{err: ierrors.ErrPolicyViolation}, Lock: lock, Env: "dev"}

		_, err := d.run(ctx, input)
		assert.ErrorIs(t, err, ierrors.ErrPolicyViolation)
		assert.Empty(t, lock.acquired, "policy is checked before locking")
	})

	t.Run("remote template skips policy", func(t *testing.T) {
		deployer := &fakeDeployer{result: &stack.Result{StackName: "orders"}}
		d := deployment{Deployer: deployer, Policy: fakePolicy{err: ierrors.ErrPolicyViolation}}

		_, err := d.run(ctx, stack.Input{StackName: "orders", TemplateURL: "https://example.com/t.yaml"})
		assert.NoError(t, err)
	})
}

func TestLockHolder(t *testing.T) {
	assert.Equal(t, "acme/infra#100", lockHolder(actions.Context{RunID: "100", Repository: "acme/infra"}))
	assert.Equal(t, "100", lockHolder(actions.Context{RunID: "100"}))
	assert.NotEqual(t, lockHolder(actions.Context{}), lockHolder(actions.Context{}))
}

func TestBuildStackInput(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "template.yaml")
	writeFile(t, template, "Resources: {}\n")
	paramFile := filepath.Join(dir, "params.json")
	writeFile(t, paramFile, `[{"ParameterKey": "BucketName", "ParameterValue": "orders"}]`)

	input, err := buildStackInput(context.Background(), deployInput{
		StackName:    "orders",
		Template:     "file://" + template,
		ParamFile:    "file://" + paramFile,
		Tags:         `[{"Key":"team","Value":"core"}]`,
		Capabilities: "CAPABILITY_IAM, CAPABILITY_AUTO_EXPAND",
		Wait:         true,
	}, params.Loader{})
	require.NoError(t, err)

	assert.Equal(t, "Resources: {}\n", input.TemplateBody)
	assert.Equal(t, []models.Parameter{{ParameterKey: "BucketName", ParameterValue: "orders"}}, input.Parameters)
	assert.Equal(t, []models.Tag{{Key: "team", Value: "core"}}, input.Tags)
	assert.Equal(t, []string{"CAPABILITY_IAM", "CAPABILITY_AUTO_EXPAND"}, input.Capabilities)
	assert.True(t, input.Wait)
}

func TestDeployInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   deployInput
		wantErr string
	}{
		{
			name:    "stack name required",
			input:   deployInput{Template: "template.yaml"},
			wantErr: "StackName is required",
		},
		{
			name:    "environment required with ledger",
			input:   deployInput{StackName: "orders", Template: "template.yaml", LedgerTable: "ledger"},
			wantErr: "Environment is required when",
		},
		{
			name:    "environment required with lock",
			input:   deployInput{StackName: "orders", Template: "template.yaml", LockTable: "locks"},
			wantErr: "Environment is required when",
		},
		{
			name:    "role arn",
			input:   deployInput{StackName: "orders", Template: "template.yaml", RoleARN: "role"},
			wantErr: `RoleARN must start with "arn:"`,
		},
		{
			name:  "valid",
			input: deployInput{StackName: "orders", Template: "template.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := actions.Validate(tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
