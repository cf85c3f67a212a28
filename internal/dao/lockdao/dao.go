// Package lockdao guards a stack against concurrent deploys from different
// workflow runs.
package lockdao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/savaki/ddb/v2"
)

const lockSK = "LOCK"

// DefaultTTL bounds how long a lock left behind by a crashed run blocks the
// stack
const DefaultTTL = 4 * time.Hour

// PK represents the partition key: {Env}/{StackName}
type PK string

// NewPK creates a partition key from env and stack name
func NewPK(env, stackName string) PK {
	return PK(fmt.Sprintf("%s/%s", env, stackName))
}

func (pk PK) String() string {
	return string(pk)
}

// ID identifies a lock as {env}/{stack}:LOCK
type ID string

// NewID creates an ID from env and stack name
func NewID(env, stackName string) ID {
	return ID(fmt.Sprintf("%s:%s", NewPK(env, stackName), lockSK))
}

// ParseID returns the partition key of a lock ID
func ParseID(id ID) (PK, error) {
	pk, sk, ok := strings.Cut(string(id), ":")
	if !ok || sk != lockSK {
		return "", fmt.Errorf("invalid ID format: %s, expected {env}/{stack}:LOCK", id)
	}
	if env, stackName, ok := strings.Cut(pk, "/"); !ok || env == "" || stackName == "" {
		return "", fmt.Errorf("invalid PK in ID: %s, expected {env}/{stack}", pk)
	}
	return PK(pk), nil
}

func (id ID) String() string {
	return string(id)
}

// Record represents a deploy lock
type Record struct {
	PK         PK     `ddb:"hash" dynamodbav:"pk"`  // {Env}/{StackName}
	SK         string `ddb:"range" dynamodbav:"sk"` // Always "LOCK"
	Holder     string `dynamodbav:"holder"`         // run holding the lock
	AcquiredAt int64  `dynamodbav:"acquired_at"`    // Unix timestamp
	TTL        int64  `dynamodbav:"ttl"`            // Unix timestamp for DynamoDB TTL expiry
}

// GetID returns the ID for this record
func (r *Record) GetID() ID {
	return ID(fmt.Sprintf("%s:%s", r.PK, lockSK))
}

// Expired reports whether the lock outlived its TTL. DynamoDB removes
// expired items lazily, so an expired lock may still be read.
func (r *Record) Expired(now time.Time) bool {
	return r.TTL > 0 && r.TTL <= now.Unix()
}

// AcquireInput contains fields for acquiring a deploy lock
type AcquireInput struct {
	Env       string
	StackName string
	Holder    string
	TTL       time.Duration // DefaultTTL when zero
}

// ReleaseInput contains fields for releasing a deploy lock
type ReleaseInput struct {
	ID     ID
	Holder string // must match the lock holder
}

// DAO provides data access operations for deploy locks
type DAO struct {
	table *ddb.Table
	now   func() time.Time
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	return &DAO{
		table: db.MustTable(tableName, &Record{}),
		now:   time.Now,
	}
}

// Acquire takes the lock for input.Holder. It returns the current lock and
// false when another holder has it. Acquiring a lock already held by the
// same holder succeeds and extends its TTL. The write is conditional, so of
// two runs racing for a free lock exactly one acquires it.
func (d *DAO) Acquire(ctx context.Context, input AcquireInput) (*Record, bool, error) {
	now := d.now()

	ttl := input.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	record := &Record{
		PK:         NewPK(input.Env, input.StackName),
		SK:         lockSK,
		Holder:     input.Holder,
		AcquiredAt: now.Unix(),
		TTL:        now.Add(ttl).Unix(),
	}

	err := d.table.Put(record).
		Condition("attribute_not_exists(#PK) OR #Holder = ? OR #TTL <= ?", input.Holder, now.Unix()).
		RunWithContext(ctx)
	if err == nil {
		return record, true, nil
	}
	if !isConditionalCheckFailed(err) {
		return nil, false, fmt.Errorf("failed to create lock: %w", err)
	}

	existing, err := d.Find(ctx, NewID(input.Env, input.StackName))
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing lock: %w", err)
	}
	if existing == nil {
		// released between the write and the read
		return nil, false, fmt.Errorf("lock on %s changed while acquiring, retry", record.PK)
	}
	return existing, false, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	return strings.Contains(err.Error(), "ConditionalCheckFailed")
}

// Find retrieves a lock record by ID
// Returns nil if not found
func (d *DAO) Find(ctx context.Context, id ID) (*Record, error) {
	pk, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(lockSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "item not found") || strings.Contains(msg, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}

	return &record, nil
}

// Release deletes the lock if it is held by input.Holder
func (d *DAO) Release(ctx context.Context, input ReleaseInput) error {
	existing, err := d.Find(ctx, input.ID)
	if err != nil {
		return fmt.Errorf("failed to check lock: %w", err)
	}

	if existing == nil {
		return nil
	}

	if existing.Holder != input.Holder {
		return fmt.Errorf("lock not held by %s (held by %s)", input.Holder, existing.Holder)
	}

	return d.Delete(ctx, input.ID)
}

// Delete removes a lock record regardless of holder
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk.String()).
		Range(lockSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	return nil
}
