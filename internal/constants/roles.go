package constants

// Secret names used for a matrix item when the deployment config does not
// name one for the environment.
const (
	// DefaultAWSRoleSecret holds the role GitHub Actions assumes via OIDC
	DefaultAWSRoleSecret = "AWS_ROLE_TO_ASSUME"

	// DefaultCFNRoleSecret holds the CloudFormation service role ARN
	DefaultCFNRoleSecret = "CFN_ROLE_ARN"

	// DefaultIAMExecutionRoleSecret holds the IAM execution role ARN passed to templates
	DefaultIAMExecutionRoleSecret = "IAM_EXECUTION_ROLE_ARN"
)
