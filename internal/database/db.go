// Package database is the Postgres storage layer: schema, query methods and
// transaction helpers.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// psql builds Postgres-dialect statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Queries runs statements against a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store is the full set of reads and writes the pipeline needs. *Queries
// implements it for Postgres.
type Store interface {
	enum.Source

	InsertSubmission(ctx context.Context, arg InsertSubmissionParams) (bool, error)
	LatestSubmission(ctx context.Context) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	GetSubmissionForUpdate(ctx context.Context, id string) (Submission, error)
	ListEligible(ctx context.Context, arg ListEligibleParams) ([]Submission, error)
	UpdateCleanedTitle(ctx context.Context, id string, title string) error
	SetStatus(ctx context.Context, id string, status string) error
	SetStatuses(ctx context.Context, ids []string, status string) (int64, error)
	StatusesByID(ctx context.Context, ids []string) ([]SubmissionStatus, error)
	SetErrorMessage(ctx context.Context, id string, message string) error
	LockSubmission(ctx context.Context, id string) error

	UpsertCatalogMatch(ctx context.Context, arg UpsertCatalogMatchParams) error
	GetCatalogMatch(ctx context.Context, submissionID string) (CatalogMatch, error)

	FindUserIDByName(ctx context.Context, name string) (int64, error)

	GetSpecificationBySubmission(ctx context.Context, submissionID string) (Specification, error)
	InsertSpecification(ctx context.Context, arg SpecificationParams) (int64, error)
	UpdateSpecification(ctx context.Context, id int64, arg SpecificationParams) error
	DeleteSpecificationLinks(ctx context.Context, j Junction, specID int64) (int64, error)
	InsertSpecificationLink(ctx context.Context, j Junction, specID, lookupID int64) error
	ListSpecificationLinks(ctx context.Context, j Junction, specID int64) ([]int64, error)

	InsertEvent(ctx context.Context, arg InsertEventParams) (PipelineEvent, error)
	ListEvents(ctx context.Context, arg ListEventsParams) ([]PipelineEvent, error)

	ListTitleRules(ctx context.Context) ([]TitleRule, error)
	ListTitleRuleExceptions(ctx context.Context) ([]TitleRuleException, error)
	ReplaceTitleRules(ctx context.Context, rules []TitleRule, exceptions []TitleRuleException) error
}

// DB is a Store that can open transactions.
type DB interface {
	Store
	// InTx runs fn inside one transaction. The transaction commits only
	// when fn returns nil.
	InTx(ctx context.Context, fn func(Store) error) error
}

var _ Store = (*Queries)(nil)

// Pool is the pgxpool-backed DB.
type Pool struct {
	*Queries
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

var _ DB = (*Pool)(nil)

// NewPool wraps pool. acquireTimeout bounds how long InTx waits for a
// connection; zero means the caller's context alone decides.
func NewPool(pool *pgxpool.Pool, acquireTimeout time.Duration) *Pool {
	return &Pool{Queries: New(pool), pool: pool, acquireTimeout: acquireTimeout}
}

// Raw returns the underlying pgx pool.
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pool
}

// InTx begins a transaction, runs fn and commits. The deferred rollback
// returns the connection to the pool on every other path, panics included.
func (p *Pool) InTx(ctx context.Context, fn func(Store) error) error {
	beginCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		beginCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	tx, err := p.pool.Begin(beginCtx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
