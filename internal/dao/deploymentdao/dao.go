// Package deploymentdao records stack deployments made by the deploy command
// in a DynamoDB ledger, one record per environment, stack, account and region.
package deploymentdao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

// ErrNotFound is returned when no record exists for an ID
var ErrNotFound = errors.New("deployment record not found")

// PK represents the partition key: {Env}/{StackName}
type PK string

// NewPK creates a partition key from env and stack name
func NewPK(env, stackName string) PK {
	return PK(fmt.Sprintf("%s/%s", env, stackName))
}

// ParsePK parses a partition key into env and stack name components
func ParsePK(pk PK) (env, stackName string, err error) {
	env, stackName, ok := strings.Cut(string(pk), "/")
	if !ok || env == "" || stackName == "" || strings.Contains(stackName, "/") {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {env}/{stack}", pk)
	}
	return env, stackName, nil
}

func (pk PK) String() string {
	return string(pk)
}

// SK represents the sort key: {Account}/{Region}
type SK string

// NewSK creates a sort key from account and region
func NewSK(account, region string) SK {
	return SK(fmt.Sprintf("%s/%s", account, region))
}

func (sk SK) String() string {
	return string(sk)
}

// ParseSK parses a sort key into account and region components
func ParseSK(sk SK) (account, region string, err error) {
	account, region, ok := strings.Cut(string(sk), "/")
	if !ok || account == "" || region == "" || strings.Contains(region, "/") {
		return "", "", fmt.Errorf("invalid SK format: %s, expected {account}/{region}", sk)
	}
	return account, region, nil
}

// ID identifies a record as {env}/{stack}:{account}/{region}
// Example: dev/my-bucket:111111111111/us-east-1
type ID string

// NewID creates an ID from env, stack name, account, and region
func NewID(env, stackName, account, region string) ID {
	return ID(fmt.Sprintf("%s:%s", NewPK(env, stackName), NewSK(account, region)))
}

// ParseID splits an ID into its partition and sort keys
func ParseID(id ID) (PK, SK, error) {
	pk, sk, ok := strings.Cut(string(id), ":")
	if !ok {
		return "", "", fmt.Errorf("invalid ID format: %s, expected {env}/{stack}:{account}/{region}", id)
	}
	if _, _, err := ParsePK(PK(pk)); err != nil {
		return "", "", err
	}
	if _, _, err := ParseSK(SK(sk)); err != nil {
		return "", "", err
	}
	return PK(pk), SK(sk), nil
}

func (id ID) String() string {
	return string(id)
}

// DeploymentStatus represents the status of a deployment
type DeploymentStatus string

const (
	StatusInProgress DeploymentStatus = "IN_PROGRESS"
	StatusSuccess    DeploymentStatus = "SUCCESS"
	StatusFailed     DeploymentStatus = "FAILED"
)

// Record represents the latest deployment of a stack to one account/region
type Record struct {
	PK           PK               `ddb:"hash" dynamodbav:"pk"`           // {Env}/{StackName}
	SK           SK               `ddb:"range" dynamodbav:"sk"`          // {Account}/{Region}
	RunID        string           `dynamodbav:"run_id"`                  // GitHub run id
	Repository   string           `dynamodbav:"repository,omitempty"`    // owner/repo
	SHA          string           `dynamodbav:"sha,omitempty"`           // commit deployed
	StackID      string           `dynamodbav:"stack_id,omitempty"`      // CloudFormation stack ID
	Operation    string           `dynamodbav:"operation,omitempty"`     // CREATE|UPDATE|NONE
	Status       DeploymentStatus `dynamodbav:"status"`                  // IN_PROGRESS|SUCCESS|FAILED
	StatusReason string           `dynamodbav:"status_reason,omitempty"` // failure message
	CreatedAt    int64            `dynamodbav:"created_at"`              // Unix timestamp
	UpdatedAt    int64            `dynamodbav:"updated_at"`              // Unix timestamp
	FinishedAt   int64            `dynamodbav:"finished_at,omitempty"`   // Unix timestamp
}

// GetID returns the ID for this record
func (r *Record) GetID() ID {
	return ID(fmt.Sprintf("%s:%s", r.PK, r.SK))
}

// CreateInput contains fields for starting a deployment record
type CreateInput struct {
	Env        string
	StackName  string
	Account    string
	Region     string
	RunID      string
	Repository string
	SHA        string
}

// DAO provides data access operations for the deployment ledger
type DAO struct {
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	return &DAO{
		table: db.MustTable(tableName, &Record{}),
	}
}

// Start writes an IN_PROGRESS record, replacing any earlier deployment of
// the same stack to the same account and region.
func (d *DAO) Start(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:         NewPK(input.Env, input.StackName),
		SK:         NewSK(input.Account, input.Region),
		RunID:      input.RunID,
		Repository: input.Repository,
		SHA:        input.SHA,
		Status:     StatusInProgress,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return Record{}, fmt.Errorf("failed to create deployment record: %w", err)
	}

	return record, nil
}

// Find retrieves a deployment record by ID
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk.String()).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "item not found") || strings.Contains(msg, "ItemNotFound") {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record{}, fmt.Errorf("failed to get deployment: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return record, nil
}

// FinishInput records the outcome of a deployment
type FinishInput struct {
	ID           ID
	Status       DeploymentStatus
	StackID      string
	Operation    string
	StatusReason string
}

// Finish updates a record with the outcome of the deployment
func (d *DAO) Finish(ctx context.Context, input FinishInput) error {
	pk, sk, err := ParseID(input.ID)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(sk.String()).
		Set("#Status = ?", string(input.Status)).
		Set("#UpdatedAt = ?", now)

	if input.StackID != "" {
		update = update.Set("#StackID = ?", input.StackID)
	}

	if input.Operation != "" {
		update = update.Set("#Operation = ?", input.Operation)
	}

	if input.StatusReason != "" {
		update = update.Set("#StatusReason = ?", input.StatusReason)
	}

	if input.Status == StatusSuccess || input.Status == StatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update deployment status: %w", err)
	}

	return nil
}

// QueryByStack returns the deployments of a stack in env across all
// accounts and regions
func (d *DAO) QueryByStack(ctx context.Context, env, stackName string) ([]Record, error) {
	pk := NewPK(env, stackName)
	var records []Record

	err := d.table.Query("#PK = ?", pk).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}

	return records, nil
}

// Delete removes a deployment record
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk.String()).
		Range(sk.String()).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}

	return nil
}
