package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/repository"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) Save(ctx context.Context, run *domain.QualityRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
        INSERT INTO quality_runs (id, user_id, status, iterations, grader_calls, refiner_calls, words, search, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at
    `

	err := r.db.Pool.QueryRow(ctx, query,
		run.ID,
		run.UserID,
		run.Status.String(),
		run.Iterations,
		run.GraderCalls,
		run.RefinerCalls,
		run.Words,
		run.Search,
		run.Duration.Milliseconds(),
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	return nil
}

const runColumns = `id::text, user_id, status, iterations, grader_calls, refiner_calls, words, search, duration_ms, created_at`

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.QualityRun, error) {
	query := `SELECT ` + runColumns + ` FROM quality_runs WHERE id = $1`

	run, err := scanRun(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *RunRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.QualityRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
        SELECT ` + runColumns + `
        FROM quality_runs
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.QualityRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func (r *RunRepo) StatsByUser(ctx context.Context, userID int64) (*domain.RunStats, error) {
	query := `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status = $2),
            COUNT(*) FILTER (WHERE status = $3),
            COALESCE(AVG(iterations), 0)::float8
        FROM quality_runs
        WHERE user_id = $1
    `

	var stats domain.RunStats
	err := r.db.Pool.QueryRow(ctx, query,
		userID,
		domain.StatusPassed.String(),
		domain.StatusBoundReached.String(),
	).Scan(&stats.Total, &stats.Passed, &stats.BoundReached, &stats.AvgIters)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}

	return &stats, nil
}

func scanRun(row pgx.Row) (*domain.QualityRun, error) {
	var run domain.QualityRun
	var status string
	var durationMs int64
	err := row.Scan(
		&run.ID,
		&run.UserID,
		&status,
		&run.Iterations,
		&run.GraderCalls,
		&run.RefinerCalls,
		&run.Words,
		&run.Search,
		&durationMs,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = domain.QAStatus(status)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}

var _ repository.RunRepository = (*RunRepo)(nil)
