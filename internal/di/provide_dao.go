package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/dao/deploymentdao"
	"github.com/savaki/cfn-actions/internal/dao/lockdao"
)

// ProvideDeploymentDAO returns the ledger DAO, or nil when no ledger table
// is configured
func ProvideDeploymentDAO(ctx context.Context, table LedgerTable, client *dynamodb.Client) *deploymentdao.DAO {
	if table == "" {
		return nil
	}

	zerolog.Ctx(ctx).Debug().Str("table", string(table)).Msg("Recording deployments in ledger")
	return deploymentdao.New(client, string(table))
}

// ProvideLockDAO returns the deploy lock DAO, or nil when no lock table is
// configured
func ProvideLockDAO(table LockTable, client *dynamodb.Client) *lockdao.DAO {
	if table == "" {
		return nil
	}
	return lockdao.New(client, string(table))
}
