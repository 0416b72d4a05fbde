package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

type jobRow struct {
	job contracts.ForecastJob
	seq int64
}

// jobTable holds job rows under its own lock, so a job checkpoint can read
// status while a forecast transaction holds the store lock.
// Each transition is a compare-and-swap on status.
type jobTable struct {
	mu   sync.Mutex
	rows map[string]*jobRow
	seq  int64
	now  func() time.Time
}

func newJobTable(now func() time.Time) *jobTable {
	return &jobTable{rows: make(map[string]*jobRow), now: now}
}

func cloneJob(j contracts.ForecastJob) *contracts.ForecastJob {
	c := j
	if j.Result != nil {
		c.Result = append([]byte(nil), j.Result...)
	}
	return &c
}

func (t *jobTable) Create(_ context.Context, job *contracts.ForecastJob) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[job.JobID]; exists {
		return &contracts.ConflictError{Entity: "ForecastJob", ID: job.JobID}
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = t.now()
	}
	t.seq++
	t.rows[job.JobID] = &jobRow{job: *cloneJob(*job), seq: t.seq}
	return nil
}

func (t *jobTable) Get(_ context.Context, jobID string) (*contracts.ForecastJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[jobID]
	if !ok {
		return nil, &contracts.NotFoundError{Entity: "ForecastJob", ID: jobID}
	}
	return cloneJob(row.job), nil
}

func (t *jobTable) sorted(newestFirst bool, keep func(contracts.ForecastJob) bool) []*jobRow {
	rows := make([]*jobRow, 0, len(t.rows))
	for _, row := range t.rows {
		if keep == nil || keep(row.job) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			if newestFirst {
				return a.job.CreatedAt.After(b.job.CreatedAt)
			}
			return a.job.CreatedAt.Before(b.job.CreatedAt)
		}
		if newestFirst {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	return rows
}

func (t *jobTable) collect(rows []*jobRow, limit int) []contracts.ForecastJob {
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]contracts.ForecastJob, len(rows))
	for i, row := range rows {
		out[i] = *cloneJob(row.job)
	}
	return out
}

func (t *jobTable) List(_ context.Context, limit int) ([]contracts.ForecastJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collect(t.sorted(true, nil), limit), nil
}

func (t *jobTable) ListQueued(_ context.Context, limit int) ([]contracts.ForecastJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	queued := func(j contracts.ForecastJob) bool { return j.Status == contracts.JobQueued }
	return t.collect(t.sorted(false, queued), limit), nil
}

// transition applies fn when the row exists and allowed(status) holds.
func (t *jobTable) transition(jobID string, allowed func(contracts.JobStatus) bool, fn func(*contracts.ForecastJob)) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[jobID]
	if !ok {
		return false, &contracts.NotFoundError{Entity: "ForecastJob", ID: jobID}
	}
	if !allowed(row.job.Status) {
		return false, nil
	}
	fn(&row.job)
	return true, nil
}

func is(s contracts.JobStatus) func(contracts.JobStatus) bool {
	return func(cur contracts.JobStatus) bool { return cur == s }
}

func (t *jobTable) Claim(_ context.Context, jobID string, at time.Time) (bool, error) {
	return t.transition(jobID, is(contracts.JobQueued), func(j *contracts.ForecastJob) {
		j.Status = contracts.JobRunning
		j.StartedAt = &at
	})
}

func (t *jobTable) Complete(_ context.Context, jobID string, result []byte, at time.Time) (bool, error) {
	return t.transition(jobID, is(contracts.JobRunning), func(j *contracts.ForecastJob) {
		j.Status = contracts.JobCompleted
		j.Result = append([]byte(nil), result...)
		j.CompletedAt = &at
	})
}

func (t *jobTable) Fail(_ context.Context, jobID string, message string, at time.Time) (bool, error) {
	return t.transition(jobID, is(contracts.JobRunning), func(j *contracts.ForecastJob) {
		j.Status = contracts.JobFailed
		j.Error = &message
		j.CompletedAt = &at
	})
}

func (t *jobTable) Cancel(_ context.Context, jobID string, reason string, at time.Time) (bool, error) {
	return t.transition(jobID, contracts.JobStatus.Cancellable, func(j *contracts.ForecastJob) {
		j.Status = contracts.JobCancelled
		j.Error = &reason
		j.CompletedAt = &at
	})
}

func (t *jobTable) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var deleted int64
	for id, row := range t.rows {
		j := row.job
		if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(t.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (t *jobTable) Metrics(_ context.Context, now time.Time) (*contracts.JobMetrics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := &contracts.JobMetrics{
		StatusCounts: make(map[contracts.JobStatus]int64, len(contracts.AllJobStatuses)),
		GeneratedAt:  now,
	}
	for _, s := range contracts.AllJobStatuses {
		m.StatusCounts[s] = 0
	}

	var totalSeconds float64
	var timed int
	var oldest *time.Time
	dayAgo := now.Add(-24 * time.Hour)

	for _, row := range t.rows {
		j := row.job
		m.StatusCounts[j.Status]++
		m.TotalJobs++
		if j.StartedAt != nil && j.CompletedAt != nil {
			totalSeconds += j.CompletedAt.Sub(*j.StartedAt).Seconds()
			timed++
		}
		if j.Status == contracts.JobFailed && j.CompletedAt != nil && !j.CompletedAt.Before(dayAgo) {
			m.FailedLast24h++
		}
		if j.Status == contracts.JobQueued && (oldest == nil || j.CreatedAt.Before(*oldest)) {
			created := j.CreatedAt
			oldest = &created
		}
	}
	if timed > 0 {
		m.AvgProcessingSeconds = contracts.Float(totalSeconds / float64(timed))
	}
	if oldest != nil {
		m.OldestQueuedAgeSeconds = contracts.Float(now.Sub(*oldest).Seconds())
	}
	return m, nil
}
