package models

// MatrixItem is one fully resolved deployment unit: a single resource deployed
// to a single environment. Items are emitted into job matrices consumed by
// downstream workflow jobs, so the JSON names are part of the workflow contract.
type MatrixItem struct {
	Application       string         `json:"application"`
	Resource          string         `json:"resource"`
	Environment       string         `json:"environment"`
	Runner            string         `json:"runner"`
	GitHubEnvironment string         `json:"github_environment"`
	AWSRegion         string         `json:"aws_region"`
	AWSRoleSecret     string         `json:"aws_role_secret"`
	CFNRoleSecret     string         `json:"cfn_role_secret"`
	IAMRoleSecret     string         `json:"iam_role_secret"`
	GitHubVars        map[string]any `json:"github_vars"`
	SecretPass        bool           `json:"secret_pass"`
	Parameters        map[string]any `json:"parameters"`
}

// Matrix is the job-matrix wrapper GitHub Actions expects for strategy.matrix
type Matrix struct {
	Include []MatrixItem `json:"include"`
}
