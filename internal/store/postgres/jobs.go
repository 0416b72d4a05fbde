package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

type jobRepo struct{ db DBTX }

const jobColumns = `
	job_id, status, product_id, horizon_months, model_type, requested_by,
	error, result, created_at, started_at, completed_at`

func scanJob(row scannable) (*contracts.ForecastJob, error) {
	var j contracts.ForecastJob
	var status string
	var model *string
	var result []byte
	if err := row.Scan(
		&j.JobID, &status, &j.ProductID, &j.HorizonMonths, &model, &j.RequestedBy,
		&j.Error, &result, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return nil, err
	}
	j.Status = contracts.JobStatus(status)
	j.ModelType = modelPtr(model)
	j.Result = result
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, j *contracts.ForecastJob) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO forecast_jobs
			(job_id, status, product_id, horizon_months, model_type, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.JobID, string(j.Status), j.ProductID, j.HorizonMonths, modelArg(j.ModelType), j.RequestedBy, j.CreatedAt,
	)
	return mapError(err, "ForecastJob", j.JobID)
}

func (r *jobRepo) Get(ctx context.Context, jobID string) (*contracts.ForecastJob, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM forecast_jobs WHERE job_id = $1`, jobID))
	if err != nil {
		return nil, mapError(err, "ForecastJob", jobID)
	}
	return j, nil
}

func (r *jobRepo) list(ctx context.Context, query string, args ...any) ([]contracts.ForecastJob, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []contracts.ForecastJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *jobRepo) List(ctx context.Context, limit int) ([]contracts.ForecastJob, error) {
	if limit <= 0 {
		limit = 1000
	}
	return r.list(ctx, `SELECT `+jobColumns+` FROM forecast_jobs ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *jobRepo) ListQueued(ctx context.Context, limit int) ([]contracts.ForecastJob, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
		SELECT `+jobColumns+`
		FROM forecast_jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
}

// transition reports false when the row exists but the status guard failed
func (r *jobRepo) transition(ctx context.Context, jobID, query string, args ...any) (bool, error) {
	tag, err := r.db.Exec(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return false, fmt.Errorf("update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM forecast_jobs WHERE job_id = $1)`, jobID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check job %s: %w", jobID, err)
	}
	if !exists {
		return false, &contracts.NotFoundError{Entity: "ForecastJob", ID: jobID}
	}
	return false, nil
}

func (r *jobRepo) Claim(ctx context.Context, jobID string, at time.Time) (bool, error) {
	return r.transition(ctx, jobID, `
		UPDATE forecast_jobs SET status = 'running', started_at = $2
		WHERE job_id = $1 AND status = 'queued'`, at)
}

func (r *jobRepo) Complete(ctx context.Context, jobID string, result []byte, at time.Time) (bool, error) {
	return r.transition(ctx, jobID, `
		UPDATE forecast_jobs SET status = 'completed', result = $2, completed_at = $3
		WHERE job_id = $1 AND status = 'running'`, result, at)
}

func (r *jobRepo) Fail(ctx context.Context, jobID string, message string, at time.Time) (bool, error) {
	return r.transition(ctx, jobID, `
		UPDATE forecast_jobs SET status = 'failed', error = $2, completed_at = $3
		WHERE job_id = $1 AND status = 'running'`, message, at)
}

func (r *jobRepo) Cancel(ctx context.Context, jobID string, reason string, at time.Time) (bool, error) {
	return r.transition(ctx, jobID, `
		UPDATE forecast_jobs SET status = 'cancelled', error = $2, completed_at = $3
		WHERE job_id = $1 AND status IN ('queued', 'running')`, reason, at)
}

func (r *jobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM forecast_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND completed_at IS NOT NULL
		  AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *jobRepo) Metrics(ctx context.Context, now time.Time) (*contracts.JobMetrics, error) {
	m := &contracts.JobMetrics{
		StatusCounts: make(map[contracts.JobStatus]int64, len(contracts.AllJobStatuses)),
		GeneratedAt:  now,
	}
	for _, s := range contracts.AllJobStatuses {
		m.StatusCounts[s] = 0
	}

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM forecast_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		m.StatusCounts[contracts.JobStatus(status)] = count
		m.TotalJobs += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var oldest *time.Time
	err = r.db.QueryRow(ctx, `
		SELECT
			(AVG(EXTRACT(EPOCH FROM (completed_at - started_at)))
				FILTER (WHERE started_at IS NOT NULL AND completed_at IS NOT NULL))::DOUBLE PRECISION,
			COUNT(*) FILTER (WHERE status = 'failed' AND completed_at >= $1),
			MIN(created_at) FILTER (WHERE status = 'queued')
		FROM forecast_jobs`, now.Add(-24*time.Hour),
	).Scan(&m.AvgProcessingSeconds, &m.FailedLast24h, &oldest)
	if err != nil {
		return nil, fmt.Errorf("job metrics: %w", err)
	}
	if oldest != nil {
		m.OldestQueuedAgeSeconds = contracts.Float(now.Sub(*oldest).Seconds())
	}
	return m, nil
}
