package feasibility

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type runRepoPG struct{ db queryable }

// NewRunRepoPG stores runs in the feasibility_run table. db is usually a *pgxpool.Pool.
func NewRunRepoPG(db queryable) RunRepository {
	return &runRepoPG{db: db}
}

const runCols = `id, requested_by, query_hash, status, patient_count, error, duration_ms, created_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.RequestedBy, &r.QueryHash, &r.Status, &r.Count, &r.Error, &r.DurationMS, &r.CreatedAt)
	return &r, err
}

func (r *runRepoPG) Create(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO feasibility_run (id, requested_by, query_hash, status, patient_count, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.RequestedBy, run.QueryHash, run.Status, run.Count, run.Error, run.DurationMS, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feasibility run: %w", err)
	}
	return nil
}

func (r *runRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `SELECT `+runCols+` FROM feasibility_run WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feasibility run: %w", err)
	}
	return run, nil
}

func (r *runRepoPG) List(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM feasibility_run`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count feasibility runs: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+runCols+` FROM feasibility_run ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list feasibility runs: %w", err)
	}
	defer rows.Close()

	var items []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, run)
	}
	return items, total, rows.Err()
}
