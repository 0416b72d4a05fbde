package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/events"
)

const jobEntity = "ForecastJob"

// Enqueue creates a queued row and hands it to the workers
func (p *Pool) Enqueue(ctx context.Context, req EnqueueRequest) (*contracts.ForecastJob, error) {
	if req.Horizon < 1 || req.Horizon > p.maxHorizon {
		return nil, &contracts.BusinessRuleError{
			Rule:    "horizon",
			Message: fmt.Sprintf("horizon must be between 1 and %d", p.maxHorizon),
		}
	}
	if req.ModelType != nil {
		if _, err := contracts.ParseModelID(string(*req.ModelType)); err != nil {
			return nil, err
		}
	}

	job := &contracts.ForecastJob{
		JobID:         p.newID(),
		Status:        contracts.JobQueued,
		ProductID:     req.ProductID,
		HorizonMonths: req.Horizon,
		ModelType:     req.ModelType,
		RequestedBy:   req.RequestedBy,
		CreatedAt:     p.now().UTC(),
	}
	if err := p.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	p.metrics.JobTransition(contracts.JobQueued)

	p.logger.WithFields(map[string]interface{}{
		"job_id":     job.JobID,
		"product_id": job.ProductID,
		"horizon":    job.HorizonMonths,
	}).Info("Job enqueued")

	p.dispatch(job.JobID)
	return job, nil
}

// Get returns one job
func (p *Pool) Get(ctx context.Context, jobID string) (*contracts.ForecastJob, error) {
	return p.repo.Get(ctx, jobID)
}

// List returns the newest jobs first
func (p *Pool) List(ctx context.Context, limit int) ([]contracts.ForecastJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return p.repo.List(ctx, limit)
}

// Cancel moves a queued or running job to cancelled.
// A running job keeps computing; its result is discarded on write-back.
func (p *Pool) Cancel(ctx context.Context, jobID, reason string) (*contracts.ForecastJob, error) {
	job, err := p.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Cancellable() {
		return nil, transition(job.Status, contracts.JobCancelled)
	}

	if strings.TrimSpace(reason) == "" {
		reason = DefaultCancelReason
	}
	ok, err := p.repo.Cancel(ctx, jobID, reason, p.now())
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if !ok {
		// 경합: 그 사이 종료 상태가 됨
		current, err := p.repo.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return nil, transition(current.Status, contracts.JobCancelled)
	}
	p.metrics.JobTransition(contracts.JobCancelled)

	p.logger.WithFields(map[string]interface{}{
		"job_id": jobID,
		"from":   job.Status,
		"reason": reason,
	}).Info("Job cancelled")
	return p.repo.Get(ctx, jobID)
}

// Retry enqueues a fresh job with the parameters of a failed or cancelled one.
// The original row stays as history.
func (p *Pool) Retry(ctx context.Context, jobID string) (*contracts.ForecastJob, error) {
	job, err := p.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Retryable() {
		return nil, transition(job.Status, contracts.JobQueued)
	}

	retried, err := p.Enqueue(ctx, EnqueueRequest{
		ProductID:   job.ProductID,
		Horizon:     job.HorizonMonths,
		ModelType:   job.ModelType,
		RequestedBy: job.RequestedBy,
	})
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(map[string]interface{}{
		"job_id":     jobID,
		"new_job_id": retried.JobID,
	}).Info("Job retried")
	return retried, nil
}

// Metrics snapshots the queue and refreshes the Prometheus gauges
func (p *Pool) Metrics(ctx context.Context) (*contracts.JobMetrics, error) {
	m, err := p.repo.Metrics(ctx, p.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("job metrics: %w", err)
	}
	p.metrics.SetJobMetrics(m)
	return m, nil
}

// Cleanup deletes terminal jobs finished before now - retentionDays.
// queued and running rows are never touched.
func (p *Pool) Cleanup(ctx context.Context, retentionDays int, userID int64) (*contracts.CleanupSummary, error) {
	if retentionDays < 1 {
		return nil, &contracts.BusinessRuleError{
			Rule:    "retention_days",
			Message: fmt.Sprintf("retention must be at least 1 day, got %d", retentionDays),
		}
	}

	cutoff := p.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	deleted, err := p.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete terminal jobs: %w", err)
	}

	summary := &contracts.CleanupSummary{RetentionDays: retentionDays, DeletedCount: deleted, Cutoff: cutoff}
	if err := p.publisher.Publish(ctx, events.ForecastJobsCleaned{
		RetentionDays: retentionDays,
		DeletedCount:  deleted,
		Cutoff:        cutoff,
		UserID:        userID,
	}); err != nil {
		p.logger.WithError(err).Warn("Event publish failed")
	}

	p.logger.WithFields(map[string]interface{}{
		"retention_days": retentionDays,
		"deleted":        deleted,
		"cutoff":         cutoff.Format(time.RFC3339),
	}).Info("Job cleanup completed")
	return summary, nil
}

func transition(from, to contracts.JobStatus) error {
	return &contracts.TransitionError{Entity: jobEntity, From: string(from), To: string(to)}
}
