package contracts

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a ForecastJob.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{JobQueued, JobRunning, JobCompleted, JobFailed, JobCancelled}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Cancellable reports whether cancel is allowed from s.
func (s JobStatus) Cancellable() bool {
	return s == JobQueued || s == JobRunning
}

// Retryable reports whether retry is allowed from s.
func (s JobStatus) Retryable() bool {
	return s == JobFailed || s == JobCancelled
}

// ForecastJob is one asynchronous forecast generation request.
type ForecastJob struct {
	JobID         string          `json:"job_id"`
	Status        JobStatus       `json:"status"`
	ProductID     int64           `json:"product_id"`
	HorizonMonths int             `json:"horizon"`
	ModelType     *ModelID        `json:"model_type"`
	RequestedBy   int64           `json:"requested_by"`
	Error         *string         `json:"error"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at"`
}

// JobResult is the payload stored on a completed job.
type JobResult struct {
	ProductID      int64            `json:"product_id"`
	Horizon        int              `json:"horizon"`
	ModelType      *ModelID         `json:"model_type"`
	RecordsCreated int              `json:"records_created"`
	Forecasts      []JobResultPoint `json:"forecasts"`
}

// JobResultPoint is a compact forecast row inside a JobResult.
type JobResultPoint struct {
	Period       string   `json:"period"`
	PredictedQty float64  `json:"predicted_qty"`
	LowerBound   *float64 `json:"lower_bound"`
	UpperBound   *float64 `json:"upper_bound"`
	Confidence   *float64 `json:"confidence"`
}

// JobMetrics is the operator view of the job queue.
type JobMetrics struct {
	StatusCounts           map[JobStatus]int64 `json:"status_counts"`
	TotalJobs              int64               `json:"total_jobs"`
	AvgProcessingSeconds   *float64            `json:"avg_processing_seconds"`
	FailedLast24h          int64               `json:"failed_last_24h"`
	OldestQueuedAgeSeconds *float64            `json:"oldest_queued_age_seconds"`
	GeneratedAt            time.Time           `json:"generated_at"`
}

// CleanupSummary reports one retention cleanup pass.
type CleanupSummary struct {
	RetentionDays int       `json:"retention_days"`
	DeletedCount  int64     `json:"deleted_count"`
	Cutoff        time.Time `json:"cutoff"`
}
