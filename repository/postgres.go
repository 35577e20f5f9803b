package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores api tokens in the api_tokens table
type Postgres struct {
	pool       *pgxpool.Pool
	connString string
}

// NewPostgres creates a Postgres backend with a connection pool
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{pool: pool, connString: connString}, nil
}

func dialPostgres(ctx context.Context, connString string) (Backend, error) {
	return NewPostgres(ctx, connString)
}

// Close closes the connection pool
func (p *Postgres) Close(ctx context.Context) error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Ping checks the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Pool returns the underlying connection pool, mainly for test cleanup
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}
