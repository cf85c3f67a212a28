package deploymentdao

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/ddb/v2/ddbtest"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
)

type Data struct {
	DAO *DAO
}

func setup(t *testing.T) (ctx context.Context, data Data, cleanup func()) {
	ctx = context.Background()

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("us-west-2"),
		config.WithBaseEndpoint("http://localhost:8000"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("blah", "blah", ""),
		),
	)
	assert.NoError(t, err)

	var (
		client    = dynamodb.NewFromConfig(cfg)
		db        = ddb.New(client)
		tableName = fmt.Sprintf("deployments-test-%v", ksuid.New().String())
		table     = db.MustTable(tableName, Record{})
		dao       = New(client, tableName)
	)

	err = table.CreateTableIfNotExists(ctx)
	assert.NoError(t, err)

	return ctx, Data{DAO: dao}, func() {
		_ = table.DeleteTableIfExists(ctx)
	}
}

func TestDAO(t *testing.T) {
	ddbtest.WithTable[Data](t, setup, func(t *testing.T, ctx context.Context, data Data) {
		dao := data.DAO

		t.Run("Start", func(t *testing.T) {
			runID := ksuid.New().String()

			created, err := dao.Start(ctx, CreateInput{
				Env:        "dev",
				StackName:  "orders-bucket",
				Account:    "111111111111",
				Region:     "us-east-1",
				RunID:      runID,
				Repository: "acme/infra",
				SHA:        "abc123",
			})
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, "dev/orders-bucket", record.PK.String())
			assert.Equal(t, "111111111111/us-east-1", record.SK.String())
			assert.Equal(t, "dev/orders-bucket:111111111111/us-east-1", record.GetID().String())
			assert.Equal(t, runID, record.RunID)
			assert.Equal(t, "acme/infra", record.Repository)
			assert.Equal(t, StatusInProgress, record.Status)
			assert.NotZero(t, record.CreatedAt)
			assert.Zero(t, record.FinishedAt)
		})

		t.Run("Finish", func(t *testing.T) {
			created, err := dao.Start(ctx, CreateInput{
				Env:       "int",
				StackName: "orders-bucket",
				Account:   "222222222222",
				Region:    "us-west-2",
				RunID:     "42",
			})
			assert.NoError(t, err)

			err = dao.Finish(ctx, FinishInput{
				ID:        created.GetID(),
				Status:    StatusSuccess,
				StackID:   "arn:aws:cloudformation:us-west-2:222222222222:stack/orders-bucket/1",
				Operation: "UPDATE",
			})
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, StatusSuccess, record.Status)
			assert.Equal(t, "UPDATE", record.Operation)
			assert.NotEmpty(t, record.StackID)
			assert.NotZero(t, record.FinishedAt)
		})

		t.Run("Failed", func(t *testing.T) {
			created, err := dao.Start(ctx, CreateInput{
				Env:       "prod",
				StackName: "orders-bucket",
				Account:   "333333333333",
				Region:    "eu-west-1",
				RunID:     "43",
			})
			assert.NoError(t, err)

			err = dao.Finish(ctx, FinishInput{
				ID:           created.GetID(),
				Status:       StatusFailed,
				StatusReason: "ROLLBACK_COMPLETE",
			})
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, StatusFailed, record.Status)
			assert.Equal(t, "ROLLBACK_COMPLETE", record.StatusReason)
			assert.NotZero(t, record.FinishedAt)
		})

		t.Run("QueryByStack", func(t *testing.T) {
			for _, region := range []string{"us-east-1", "us-east-2"} {
				_, err := dao.Start(ctx, CreateInput{
					Env:       "dev",
					StackName: "queue",
					Account:   "111111111111",
					Region:    region,
					RunID:     "44",
				})
				assert.NoError(t, err)
			}

			records, err := dao.QueryByStack(ctx, "dev", "queue")
			assert.NoError(t, err)
			assert.Len(t, records, 2)
		})

		t.Run("Delete", func(t *testing.T) {
			created, err := dao.Start(ctx, CreateInput{
				Env:       "dev",
				StackName: "temp",
				Account:   "111111111111",
				Region:    "us-east-1",
				RunID:     "45",
			})
			assert.NoError(t, err)

			err = dao.Delete(ctx, created.GetID())
			assert.NoError(t, err)

			_, err = dao.Find(ctx, created.GetID())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	})
}

func TestParseID(t *testing.T) {
	testCases := map[string]struct {
		id      ID
		wantPK  PK
		wantSK  SK
		wantErr bool
	}{
		"valid": {
			id:     NewID("dev", "orders", "111111111111", "us-east-1"),
			wantPK: "dev/orders",
			wantSK: "111111111111/us-east-1",
		},
		"missing separator": {
			id:      "dev/orders",
			wantErr: true,
		},
		"bad pk": {
			id:      "dev:111111111111/us-east-1",
			wantErr: true,
		},
		"bad sk": {
			id:      "dev/orders:111111111111",
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			pk, sk, err := ParseID(tc.id)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tc.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pk != tc.wantPK || sk != tc.wantSK {
				t.Errorf("got %q %q, want %q %q", pk, sk, tc.wantPK, tc.wantSK)
			}
		})
	}
}
