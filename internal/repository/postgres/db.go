package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

const schema = `
    CREATE TABLE IF NOT EXISTS quality_runs (
        id UUID PRIMARY KEY,
        user_id BIGINT NOT NULL,
        status TEXT NOT NULL,
        iterations INT NOT NULL DEFAULT 0,
        grader_calls INT NOT NULL DEFAULT 0,
        refiner_calls INT NOT NULL DEFAULT 0,
        words INT NOT NULL DEFAULT 0,
        search BOOLEAN NOT NULL DEFAULT false,
        duration_ms BIGINT NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS quality_runs_user_created_idx
        ON quality_runs (user_id, created_at DESC);
`

// Migrate создает таблицы если их нет
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
