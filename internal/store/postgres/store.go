// Package postgres implements contracts.Store on PostgreSQL with pgx/v5.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Verify interface compliance
var _ contracts.Store = (*Store)(nil)

// Store is the PostgreSQL persistence root
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over an existing pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Forecasts() contracts.ForecastRepository     { return &forecastRepo{db: s.pool} }
func (s *Store) Audits() contracts.AuditRepository           { return &auditRepo{db: s.pool} }
func (s *Store) Consensus() contracts.ConsensusRepository    { return &consensusRepo{db: s.pool} }
func (s *Store) DemandPlans() contracts.DemandPlanRepository { return &planRepo{db: s.pool} }
func (s *Store) History() contracts.HistorySource            { return &historySource{db: s.pool} }
func (s *Store) Jobs() contracts.JobRepository               { return &jobRepo{db: s.pool} }

// InTx runs fn inside one transaction and commits on success
func (s *Store) InTx(ctx context.Context, fn func(tx contracts.Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(txRepos{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txRepos struct{ db DBTX }

func (t txRepos) Forecasts() contracts.ForecastRepository     { return &forecastRepo{db: t.db} }
func (t txRepos) Audits() contracts.AuditRepository           { return &auditRepo{db: t.db} }
func (t txRepos) Consensus() contracts.ConsensusRepository    { return &consensusRepo{db: t.db} }
func (t txRepos) DemandPlans() contracts.DemandPlanRepository { return &planRepo{db: t.db} }

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers
type scannable interface {
	Scan(dest ...any) error
}

const uniqueViolation = "23505"

// mapError converts driver errors into the contracts taxonomy
func mapError(err error, entity string, id any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &contracts.NotFoundError{Entity: entity, ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s %v: %s: %w", entity, id, pgErr.ConstraintName, contracts.ErrConflict)
	}
	return fmt.Errorf("%s %v: %w", entity, id, err)
}

func modelPtr(raw *string) *contracts.ModelID {
	if raw == nil {
		return nil
	}
	id := contracts.ModelID(*raw)
	return &id
}

func modelArg(id *contracts.ModelID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}
