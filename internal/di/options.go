package di

import "context"

// LedgerTable names the DynamoDB table deployments are recorded in. Empty
// disables the ledger.
type LedgerTable string

// LockTable names the DynamoDB table holding deploy locks. Empty disables
// locking.
type LockTable string

// GitHubToken authenticates GitHub API calls
type GitHubToken string

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithContext sets the context handed to providers that need one. The
// logger attached to it is used for provider logging.
func WithContext(ctx context.Context) Option {
	return func(opts *options) {
		opts.ctx = ctx
	}
}

func WithLedgerTable(table string) Option {
	return func(opts *options) {
		opts.ledgerTable = LedgerTable(table)
	}
}

func WithLockTable(table string) Option {
	return func(opts *options) {
		opts.lockTable = LockTable(table)
	}
}

func WithGitHubToken(token string) Option {
	return func(opts *options) {
		opts.githubToken = GitHubToken(token)
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func() *Database { return &Database{} },
//	    func(db *Database) *Service { return &Service{DB: db} },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	ctx         context.Context
	ledgerTable LedgerTable
	lockTable   LockTable
	githubToken GitHubToken
	providers   []any
}
