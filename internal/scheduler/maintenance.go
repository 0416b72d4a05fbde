package scheduler

import (
	"context"
	"time"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/logger"
)

// DefaultCleanupSchedule runs retention cleanup daily at 03:00
const DefaultCleanupSchedule = "0 0 3 * * *"

// Cleaner is the slice of jobs.Scheduler the cleanup job needs
type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int, userID int64) (*contracts.CleanupSummary, error)
}

// MetricsSource is the slice of jobs.Scheduler the queue health job needs
type MetricsSource interface {
	Metrics(ctx context.Context) (*contracts.JobMetrics, error)
}

// RetentionCleanupJob deletes finished forecast jobs older than the retention window
type RetentionCleanupJob struct {
	cleaner       Cleaner
	retentionDays int
	schedule      string
	logger        *logger.Logger
}

// NewRetentionCleanupJob creates the cleanup job. An empty schedule uses DefaultCleanupSchedule.
func NewRetentionCleanupJob(cleaner Cleaner, retentionDays int, schedule string, log *logger.Logger) *RetentionCleanupJob {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	return &RetentionCleanupJob{cleaner: cleaner, retentionDays: retentionDays, schedule: schedule, logger: log}
}

func (j *RetentionCleanupJob) Name() string     { return "job_retention_cleanup" }
func (j *RetentionCleanupJob) Schedule() string { return j.schedule }

// Run executes one cleanup pass as the system user (0)
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	summary, err := j.cleaner.Cleanup(ctx, j.retentionDays, 0)
	if err != nil {
		return err
	}
	if summary.DeletedCount > 0 {
		j.logger.WithField("deleted", summary.DeletedCount).Info("Scheduled job cleanup removed rows")
	}
	return nil
}

// QueueHealthJob refreshes queue gauges and warns when the oldest queued job is stale
type QueueHealthJob struct {
	source   MetricsSource
	maxAge   time.Duration
	schedule string
	logger   *logger.Logger
}

// NewQueueHealthJob checks the queue every minute.
func NewQueueHealthJob(source MetricsSource, maxAge time.Duration, log *logger.Logger) *QueueHealthJob {
	return &QueueHealthJob{source: source, maxAge: maxAge, schedule: "0 * * * * *", logger: log}
}

func (j *QueueHealthJob) Name() string     { return "queue_health" }
func (j *QueueHealthJob) Schedule() string { return j.schedule }

// Run snapshots job metrics; a stale queue is logged, not failed
func (j *QueueHealthJob) Run(ctx context.Context) error {
	m, err := j.source.Metrics(ctx)
	if err != nil {
		return err
	}
	if Stale(m, j.maxAge) {
		age := time.Duration(*m.OldestQueuedAgeSeconds * float64(time.Second))
		j.logger.WithFields(map[string]interface{}{
			"oldest_queued_age": age.String(),
			"queued":            m.StatusCounts[contracts.JobQueued],
			"running":           m.StatusCounts[contracts.JobRunning],
		}).Warn("Forecast job queue is backing up")
	}
	return nil
}

// Stale reports whether the oldest queued job is older than maxAge
func Stale(m *contracts.JobMetrics, maxAge time.Duration) bool {
	if m == nil || m.OldestQueuedAgeSeconds == nil || maxAge <= 0 {
		return false
	}
	return *m.OldestQueuedAgeSeconds > maxAge.Seconds()
}
