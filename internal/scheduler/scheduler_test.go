package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/logger"
)

type flakyJob struct {
	failures int
	calls    int
}

func (j *flakyJob) Name() string     { return "flaky" }
func (j *flakyJob) Schedule() string { return "0 0 * * * *" }
func (j *flakyJob) Run(context.Context) error {
	j.calls++
	if j.calls <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func TestScheduler_AddAndRemove(t *testing.T) {
	s := New(logger.Nop())
	job := &flakyJob{}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job))

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "flaky", stats[0].JobName)
	assert.Equal(t, 0, stats[0].TotalRuns)

	require.NoError(t, s.RemoveJob("flaky"))
	assert.Error(t, s.RemoveJob("flaky"))
	assert.Empty(t, s.Stats())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(logger.Nop())
	err := s.AddJob(NewRetentionCleanupJob(nil, 30, "not a cron", logger.Nop()))
	assert.Error(t, err)
}

func TestScheduler_RunNowRetries(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		success  bool
		attempts int
	}{
		{"first try", 0, true, 1},
		{"recovers on retry", 2, true, 3},
		{"gives up", 5, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(logger.Nop(), WithRetry(2, time.Millisecond))
			require.NoError(t, s.AddJob(&flakyJob{failures: tt.failures}))

			res, err := s.RunNow(context.Background(), "flaky")
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.attempts, res.Attempts)

			stats := s.Stats()
			require.Len(t, stats, 1)
			assert.Equal(t, 1, stats[0].TotalRuns)
			require.NotNil(t, stats[0].LastSuccess)
			assert.Equal(t, tt.success, *stats[0].LastSuccess)
		})
	}

	_, err := New(logger.Nop()).RunNow(context.Background(), "missing")
	assert.Error(t, err)
}

type fakeCleaner struct {
	days   int
	userID int64
	err    error
}

func (f *fakeCleaner) Cleanup(_ context.Context, retentionDays int, userID int64) (*contracts.CleanupSummary, error) {
	f.days, f.userID = retentionDays, userID
	if f.err != nil {
		return nil, f.err
	}
	return &contracts.CleanupSummary{RetentionDays: retentionDays, DeletedCount: 4}, nil
}

func TestRetentionCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{userID: -1}
	job := NewRetentionCleanupJob(cleaner, 30, "", logger.Nop())
	assert.Equal(t, DefaultCleanupSchedule, job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 30, cleaner.days)
	assert.Equal(t, int64(0), cleaner.userID)

	cleaner.err = &contracts.BusinessRuleError{Rule: "retention_days", Message: "bad"}
	assert.ErrorIs(t, job.Run(context.Background()), contracts.ErrBusinessRule)
}

type staticMetrics struct{ m *contracts.JobMetrics }

func (s staticMetrics) Metrics(context.Context) (*contracts.JobMetrics, error) { return s.m, nil }

func TestQueueHealth(t *testing.T) {
	age := 900.0
	m := &contracts.JobMetrics{OldestQueuedAgeSeconds: &age}

	assert.True(t, Stale(m, 10*time.Minute))
	assert.False(t, Stale(m, time.Hour))
	assert.False(t, Stale(&contracts.JobMetrics{}, time.Minute))
	assert.False(t, Stale(nil, time.Minute))

	job := NewQueueHealthJob(staticMetrics{m}, 10*time.Minute, logger.Nop())
	assert.NoError(t, job.Run(context.Background()))
}
