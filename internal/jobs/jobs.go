// Package jobs runs forecast generation out of the request path on a bounded
// worker pool. Job rows live in contracts.JobRepository, so a queue filled by
// one process can be drained by another.
package jobs

import (
	"context"
	"errors"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// DefaultCancelReason is recorded when Cancel gets an empty reason
const DefaultCancelReason = "Cancelled by user"

// ErrCancelled is returned by the checkpoint when the job was cancelled mid-run.
var ErrCancelled = errors.New("job cancelled")

// Runner executes the work behind one job.
// checkpoint must be called right before results are committed; a non-nil
// return means the job was cancelled and nothing may be written.
type Runner interface {
	ExecuteJob(ctx context.Context, job contracts.ForecastJob, checkpoint func(ctx context.Context) error) (*contracts.JobResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job contracts.ForecastJob, checkpoint func(ctx context.Context) error) (*contracts.JobResult, error)

func (f RunnerFunc) ExecuteJob(ctx context.Context, job contracts.ForecastJob, checkpoint func(ctx context.Context) error) (*contracts.JobResult, error) {
	return f(ctx, job, checkpoint)
}

// EnqueueRequest describes a forecast job
type EnqueueRequest struct {
	ProductID   int64
	Horizon     int
	ModelType   *contracts.ModelID
	RequestedBy int64
}

// Scheduler is the job queue boundary the CLI and callers depend on.
// ⭐ SSOT: 작업 상태 전이는 이 인터페이스 구현에서만
type Scheduler interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*contracts.ForecastJob, error)
	Get(ctx context.Context, jobID string) (*contracts.ForecastJob, error)
	List(ctx context.Context, limit int) ([]contracts.ForecastJob, error)
	Cancel(ctx context.Context, jobID, reason string) (*contracts.ForecastJob, error)
	Retry(ctx context.Context, jobID string) (*contracts.ForecastJob, error)
	Metrics(ctx context.Context) (*contracts.JobMetrics, error)
	Cleanup(ctx context.Context, retentionDays int, userID int64) (*contracts.CleanupSummary, error)
}
