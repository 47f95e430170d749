package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"AutoPublisher/internal/ports"
)

// PgxIface is the subset of *pgxpool.Pool the repository needs; pgxmock satisfies it too.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists the calendar, pool, history and run ledger in Postgres.
type PostgresRepository struct {
	pool PgxIface
	psql sq.StatementBuilderType
}

var (
	_ ports.CalendarStore  = (*PostgresRepository)(nil)
	_ ports.TopicPool      = (*PostgresRepository)(nil)
	_ ports.ContentHistory = (*PostgresRepository)(nil)
	_ ports.OutcomeLedger  = (*PostgresRepository)(nil)
	_ ports.WatermarkStore = (*PostgresRepository)(nil)
)

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresRepository wires a pool implementation.
func NewPostgresRepository(pool PgxIface) *PostgresRepository {
	return &PostgresRepository{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// inTx runs fn inside one transaction; any error rolls the whole unit back.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after Commit is a no-op returning ErrTxClosed.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
