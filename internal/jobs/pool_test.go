package jobs

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/events"
	"github.com/wonny/genxsop/backend/internal/store/memory"
	"github.com/wonny/genxsop/backend/pkg/metrics"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func okRunner(calls *int32) RunnerFunc {
	return func(ctx context.Context, job contracts.ForecastJob, checkpoint func(context.Context) error) (*contracts.JobResult, error) {
		atomic.AddInt32(calls, 1)
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		return &contracts.JobResult{
			ProductID:      job.ProductID,
			Horizon:        job.HorizonMonths,
			ModelType:      job.ModelType,
			RecordsCreated: job.HorizonMonths,
		}, nil
	}
}

func newTestPool(t *testing.T, runner Runner, opts ...Option) (*Pool, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewPool(store.Jobs(), runner, opts...), store
}

func modelPtr(id contracts.ModelID) *contracts.ModelID { return &id }

func TestPool_RunsEnqueuedJob(t *testing.T) {
	var calls int32
	collector, err := metrics.New()
	require.NoError(t, err)
	p, _ := newTestPool(t, okRunner(&calls), WithPollInterval(10*time.Millisecond), WithMetrics(collector))

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	job, err := p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 3, ModelType: modelPtr(contracts.ModelEWMA), RequestedBy: 9})
	require.NoError(t, err)
	assert.Equal(t, contracts.JobQueued, job.Status)
	assert.NotEmpty(t, job.JobID)

	require.Eventually(t, func() bool {
		got, err := p.Get(ctx, job.JobID)
		return err == nil && got.Status == contracts.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := p.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Error)
	assert.Contains(t, string(got.Result), `"records_created":3`)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	cancel()
	p.Wait()
}

func TestPool_PollsRowsFromOtherProcesses(t *testing.T) {
	var calls int32
	p, store := newTestPool(t, okRunner(&calls), WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		p.Wait()
	}()

	// CLI 프로세스가 넣은 행
	require.NoError(t, store.Jobs().Create(ctx, &contracts.ForecastJob{
		JobID:         "external-1",
		Status:        contracts.JobQueued,
		ProductID:     4,
		HorizonMonths: 2,
	}))
	p.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := p.Get(ctx, "external-1")
		return err == nil && got.Status == contracts.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name    string
		runner  RunnerFunc
		wantErr string
	}{
		{
			name: "runner error",
			runner: func(context.Context, contracts.ForecastJob, func(context.Context) error) (*contracts.JobResult, error) {
				return nil, errors.New("generate_forecast: need at least 3 history points, got 1")
			},
			wantErr: "generate_forecast: need at least 3 history points, got 1",
		},
		{
			name: "runner panic",
			runner: func(context.Context, contracts.ForecastJob, func(context.Context) error) (*contracts.JobResult, error) {
				panic("boom")
			},
			wantErr: "job panicked: boom",
		},
		{
			name: "nil result",
			runner: func(context.Context, contracts.ForecastJob, func(context.Context) error) (*contracts.JobResult, error) {
				return nil, nil
			},
			wantErr: "runner returned no result",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPool(t, tt.runner)
			ctx := context.Background()
			job, err := p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 1})
			require.NoError(t, err)

			p.process(ctx, job.JobID)

			got, err := p.Get(ctx, job.JobID)
			require.NoError(t, err)
			assert.Equal(t, contracts.JobFailed, got.Status)
			require.NotNil(t, got.Error)
			assert.Equal(t, tt.wantErr, *got.Error)
			assert.NotNil(t, got.CompletedAt)
		})
	}
}

// flakyGetRepo fails the first Get after a successful Claim.
type flakyGetRepo struct {
	contracts.JobRepository
	claimed bool
	failed  bool
}

func (r *flakyGetRepo) Claim(ctx context.Context, jobID string, at time.Time) (bool, error) {
	ok, err := r.JobRepository.Claim(ctx, jobID, at)
	r.claimed = ok
	return ok, err
}

func (r *flakyGetRepo) Get(ctx context.Context, jobID string) (*contracts.ForecastJob, error) {
	if r.claimed && !r.failed {
		r.failed = true
		return nil, errors.New("connection reset")
	}
	return r.JobRepository.Get(ctx, jobID)
}

func TestProcess_ReloadFailureMarksJobFailed(t *testing.T) {
	var calls int32
	store := memory.New()
	repo := &flakyGetRepo{JobRepository: store.Jobs()}
	p := NewPool(repo, okRunner(&calls))
	ctx := context.Background()

	job, err := p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 2})
	require.NoError(t, err)

	p.process(ctx, job.JobID)

	got, err := store.Jobs().Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "connection reset")
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCancel_QueuedJobNeverRuns(t *testing.T) {
	var calls int32
	p, _ := newTestPool(t, okRunner(&calls))
	ctx := context.Background()

	job, err := p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 2})
	require.NoError(t, err)

	cancelled, err := p.Cancel(ctx, job.JobID, "  ")
	require.NoError(t, err)
	assert.Equal(t, contracts.JobCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Error)
	assert.Equal(t, DefaultCancelReason, *cancelled.Error)

	// 워커가 나중에 집어도 실행되지 않음
	p.process(ctx, job.JobID)

	got, err := p.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobCancelled, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCancel_RunningJobDiscardsResult(t *testing.T) {
	tests := []struct {
		name            string
		honorCheckpoint bool
	}{
		{"runner checks checkpoint", true},
		{"runner ignores checkpoint", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan struct{})
			release := make(chan struct{})
			runner := RunnerFunc(func(ctx context.Context, job contracts.ForecastJob, checkpoint func(context.Context) error) (*contracts.JobResult, error) {
				close(started)
				<-release
				if tt.honorCheckpoint {
					if err := checkpoint(ctx); err != nil {
						return nil, err
					}
				}
				return &contracts.JobResult{ProductID: job.ProductID, RecordsCreated: 1}, nil
			})
			p, _ := newTestPool(t, runner)
			ctx := context.Background()

			job, err := p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 1})
			require.NoError(t, err)

			done := make(chan struct{})
			go func() {
				p.process(ctx, job.JobID)
				close(done)
			}()
			<-started

			running, err := p.Get(ctx, job.JobID)
			require.NoError(t, err)
			assert.Equal(t, contracts.JobRunning, running.Status)

			_, err = p.Cancel(ctx, job.JobID, "operator stop")
			require.NoError(t, err)
			close(release)
			<-done

			got, err := p.Get(ctx, job.JobID)
			require.NoError(t, err)
			assert.Equal(t, contracts.JobCancelled, got.Status)
			assert.Nil(t, got.Result)
			require.NotNil(t, got.Error)
			assert.Equal(t, "operator stop", *got.Error)
		})
	}
}

func TestCancel_TerminalRejected(t *testing.T) {
	p, store := newTestPool(t, okRunner(new(int32)))
	ctx := context.Background()

	for _, status := range []contracts.JobStatus{contracts.JobCompleted, contracts.JobFailed, contracts.JobCancelled} {
		id := "job-" + string(status)
		require.NoError(t, store.Jobs().Create(ctx, &contracts.ForecastJob{JobID: id, Status: status, ProductID: 1, HorizonMonths: 1}))

		_, err := p.Cancel(ctx, id, "")
		var te *contracts.TransitionError
		require.True(t, errors.As(err, &te), string(status))
		assert.Equal(t, string(status), te.From)
		assert.Equal(t, string(contracts.JobCancelled), te.To)
	}

	_, err := p.Cancel(ctx, "missing", "")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestRetry(t *testing.T) {
	p, store := newTestPool(t, okRunner(new(int32)))
	ctx := context.Background()

	require.NoError(t, store.Jobs().Create(ctx, &contracts.ForecastJob{
		JobID:         "failed-1",
		Status:        contracts.JobFailed,
		ProductID:     11,
		HorizonMonths: 6,
		ModelType:     modelPtr(contracts.ModelARIMA),
		RequestedBy:   2,
	}))

	retried, err := p.Retry(ctx, "failed-1")
	require.NoError(t, err)
	assert.NotEqual(t, "failed-1", retried.JobID)
	assert.Equal(t, contracts.JobQueued, retried.Status)
	assert.Equal(t, int64(11), retried.ProductID)
	assert.Equal(t, 6, retried.HorizonMonths)
	require.NotNil(t, retried.ModelType)
	assert.Equal(t, contracts.ModelARIMA, *retried.ModelType)
	assert.Equal(t, int64(2), retried.RequestedBy)

	original, err := p.Get(ctx, "failed-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.JobFailed, original.Status)

	_, err = p.Retry(ctx, retried.JobID)
	assert.ErrorIs(t, err, contracts.ErrInvalidTransition)
}

func TestEnqueue_Validation(t *testing.T) {
	p, _ := newTestPool(t, okRunner(new(int32)))
	ctx := context.Background()

	_, err := p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 0})
	assert.ErrorIs(t, err, contracts.ErrBusinessRule)

	// 기본 상한 24개월
	_, err = p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 30})
	assert.ErrorIs(t, err, contracts.ErrBusinessRule)
	_, err = p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 24})
	assert.NoError(t, err)

	capped, _ := newTestPool(t, okRunner(new(int32)), WithMaxHorizon(6))
	_, err = capped.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 7})
	assert.ErrorIs(t, err, contracts.ErrBusinessRule)
	list, err := capped.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = p.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 3, ModelType: modelPtr("xgboost")})
	assert.Error(t, err)

	ids := []string{"a", "b"}
	next := 0
	p2, _ := newTestPool(t, okRunner(new(int32)), WithIDGenerator(func() string {
		id := ids[next%len(ids)]
		next++
		return id
	}))
	first, err := p2.Enqueue(ctx, EnqueueRequest{ProductID: 1, Horizon: 1})
	require.NoError(t, err)
	assert.Equal(t, "a", first.JobID)
}

func TestCleanup_AcrossStatuses(t *testing.T) {
	pub := events.NewMemory()
	p, store := newTestPool(t, okRunner(new(int32)),
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(pub),
	)
	ctx := context.Background()

	ago := func(days int) *time.Time {
		ts := fixedNow.Add(-time.Duration(days) * 24 * time.Hour)
		return &ts
	}
	for _, status := range contracts.AllJobStatuses {
		for _, age := range []int{90, 1} {
			job := &contracts.ForecastJob{
				JobID:         string(status) + "-" + strconv.Itoa(age),
				Status:        status,
				ProductID:     1,
				HorizonMonths: 1,
				CreatedAt:     *ago(age + 1),
			}
			if status.Terminal() {
				job.StartedAt = ago(age + 1)
				job.CompletedAt = ago(age)
			}
			if status == contracts.JobRunning {
				job.StartedAt = ago(age)
			}
			require.NoError(t, store.Jobs().Create(ctx, job))
		}
	}

	summary, err := p.Cleanup(ctx, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.DeletedCount)
	assert.Equal(t, 30, summary.RetentionDays)
	assert.Equal(t, fixedNow.Add(-30*24*time.Hour), summary.Cutoff)

	remaining, err := p.List(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 7)
	counts := map[contracts.JobStatus]int{}
	for _, j := range remaining {
		counts[j.Status]++
	}
	assert.Equal(t, 2, counts[contracts.JobQueued])
	assert.Equal(t, 2, counts[contracts.JobRunning])
	assert.Equal(t, 1, counts[contracts.JobCompleted])

	cleaned := pub.Named(events.NameForecastJobsCleaned)
	require.Len(t, cleaned, 1)
	assert.Equal(t, int64(3), cleaned[0].(events.ForecastJobsCleaned).DeletedCount)

	again, err := p.Cleanup(ctx, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.DeletedCount)

	_, err = p.Cleanup(ctx, 0, 0)
	var rule *contracts.BusinessRuleError
	require.True(t, errors.As(err, &rule))
	assert.Equal(t, "retention_days", rule.Rule)
}

func TestMetrics_Snapshot(t *testing.T) {
	collector, err := metrics.New()
	require.NoError(t, err)
	p, store := newTestPool(t, okRunner(new(int32)),
		WithClock(func() time.Time { return fixedNow }),
		WithMetrics(collector),
	)
	ctx := context.Background()

	started := fixedNow.Add(-10 * time.Minute)
	completed := fixedNow.Add(-8 * time.Minute)
	require.NoError(t, store.Jobs().Create(ctx, &contracts.ForecastJob{
		JobID: "q", Status: contracts.JobQueued, ProductID: 1, HorizonMonths: 1, CreatedAt: fixedNow.Add(-time.Hour),
	}))
	require.NoError(t, store.Jobs().Create(ctx, &contracts.ForecastJob{
		JobID: "f", Status: contracts.JobFailed, ProductID: 1, HorizonMonths: 1,
		CreatedAt: started, StartedAt: &started, CompletedAt: &completed,
	}))

	m, err := p.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalJobs)
	assert.Equal(t, int64(1), m.StatusCounts[contracts.JobQueued])
	assert.Equal(t, int64(0), m.StatusCounts[contracts.JobRunning])
	assert.Equal(t, int64(1), m.FailedLast24h)
	require.NotNil(t, m.AvgProcessingSeconds)
	assert.InDelta(t, 120, *m.AvgProcessingSeconds, 0.001)
	require.NotNil(t, m.OldestQueuedAgeSeconds)
	assert.InDelta(t, 3600, *m.OldestQueuedAgeSeconds, 0.001)
}
