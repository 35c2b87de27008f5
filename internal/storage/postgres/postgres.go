package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lightning-fee-lab/internal/observability"
	"lightning-fee-lab/internal/storage"
)

// applicationName tags feelab sessions in pg_stat_activity.
const applicationName = "feelab"

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// pgErrUniqueViolation is the unique_violation SQLSTATE.
const pgErrUniqueViolation = "23505"

// mapError translates driver errors into storage sentinels and wraps the rest
// with op.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation:
		return storage.ErrDuplicateKey
	case errors.Is(err, storage.ErrInvalidInput):
		return storage.ErrInvalidInput
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// recordQuery observes the duration and outcome of operation. Use with defer
// and a named error result.
func recordQuery(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), *err)
}
