package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

var t0 = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestHistoryFromDemandPlans(t *testing.T) {
	s := New()
	s.SeedHistory(1, contracts.HistorySeries{
		{Period: month(2025, 2), ActualQty: decimal.NewFromInt(20)},
		{Period: month(2025, 1), ActualQty: decimal.NewFromInt(10)},
	})
	s.SeedHistory(2, contracts.HistorySeries{{Period: month(2025, 1), ActualQty: decimal.NewFromInt(99)}})
	// 같은 달 다른 region 행은 합산
	s.SeedHistory(1, contracts.HistorySeries{{Period: month(2025, 2), ActualQty: decimal.NewFromInt(5)}})

	series, err := s.History().ActualsSeries(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, month(2025, 1), series[0].Period)
	assert.True(t, decimal.NewFromInt(25).Equal(series[1].ActualQty))
}

func TestForecastReplaceLatestWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Forecasts()

	require.NoError(t, repo.Replace(ctx, &contracts.Forecast{ProductID: 1, ModelType: contracts.ModelARIMA, Period: month(2026, 3), PredictedQty: 10}))
	require.NoError(t, repo.Replace(ctx, &contracts.Forecast{ProductID: 1, ModelType: contracts.ModelEWMA, Period: month(2026, 3), PredictedQty: 11}))
	require.NoError(t, repo.Replace(ctx, &contracts.Forecast{ProductID: 1, ModelType: contracts.ModelARIMA, Period: month(2026, 3).Add(48 * time.Hour), PredictedQty: 12}))

	all, err := repo.List(ctx, contracts.ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	arima := contracts.ModelARIMA
	rows, err := repo.List(ctx, contracts.ForecastFilter{ModelType: &arima})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 12.0, rows[0].PredictedQty)
	assert.Equal(t, month(2026, 3), rows[0].Period)
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx contracts.Repositories) error {
		require.NoError(t, tx.Audits().Create(ctx, &contracts.ForecastRunAudit{ProductID: 1}))
		require.NoError(t, tx.Forecasts().Replace(ctx, &contracts.Forecast{ProductID: 1, ModelType: contracts.ModelEWMA, Period: month(2026, 1)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	audits, _ := s.Audits().ListByProduct(ctx, 1, 0)
	assert.Empty(t, audits)
	forecasts, _ := s.Forecasts().List(ctx, contracts.ForecastFilter{})
	assert.Empty(t, forecasts)

	require.NoError(t, s.InTx(ctx, func(tx contracts.Repositories) error {
		return tx.Audits().Create(ctx, &contracts.ForecastRunAudit{ProductID: 1})
	}))
	audits, _ = s.Audits().ListByProduct(ctx, 1, 0)
	assert.Len(t, audits, 1)
}

func TestAuditGetNotFound(t *testing.T) {
	_, err := New().Audits().Get(context.Background(), 42)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestConsensusVersioning(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Consensus()

	rec := &contracts.ConsensusRecord{ProductID: 1, Period: month(2026, 4), Version: 1, Status: contracts.ConsensusDraft}
	require.NoError(t, repo.Create(ctx, rec))

	dup := *rec
	err := repo.Create(ctx, &dup)
	assert.ErrorIs(t, err, contracts.ErrConflict)

	v, err := repo.MaxVersion(ctx, nil, 1, month(2026, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	rec.Version = 2
	require.NoError(t, repo.Update(ctx, rec, 1))

	stale := *rec
	stale.Version = 3
	err = repo.Update(ctx, &stale, 1)
	var conflict *contracts.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.ActualVersion)

	// run_audit_ref가 있으면 키가 달라짐
	ref := int64(9)
	v, err = repo.MaxVersion(ctx, &ref, 1, month(2026, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestDemandPlans(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.DemandPlans()

	missing, err := repo.FindByProductPeriod(ctx, 1, month(2026, 5))
	require.NoError(t, err)
	assert.Nil(t, missing)

	plan := &contracts.DemandPlan{ProductID: 1, Period: month(2026, 5), ForecastQty: decimal.NewFromInt(100)}
	require.NoError(t, repo.Create(ctx, plan))
	assert.Equal(t, 1, plan.Version)

	found, err := repo.FindByProductPeriod(ctx, 1, month(2026, 5).Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, found)
	found.Version++
	require.NoError(t, repo.Update(ctx, found))

	err = repo.Update(ctx, &contracts.DemandPlan{ID: 99})
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	rows, err := repo.ListWithActuals(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func seedJob(t *testing.T, s *Store, id string, status contracts.JobStatus, created, completed time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Jobs().Create(ctx, &contracts.ForecastJob{JobID: id, Status: contracts.JobQueued, ProductID: 1, HorizonMonths: 3, CreatedAt: created}))
	switch status {
	case contracts.JobQueued:
		return
	case contracts.JobCancelled:
		ok, err := s.Jobs().Cancel(ctx, id, "Cancelled by user", completed)
		require.NoError(t, err)
		require.True(t, ok)
		return
	}
	ok, err := s.Jobs().Claim(ctx, id, created.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	switch status {
	case contracts.JobCompleted:
		_, err = s.Jobs().Complete(ctx, id, []byte(`{}`), completed)
	case contracts.JobFailed:
		_, err = s.Jobs().Fail(ctx, id, "boom", completed)
	}
	require.NoError(t, err)
}

func TestJobTransitionsAreCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	jobs := s.Jobs()
	require.NoError(t, jobs.Create(ctx, &contracts.ForecastJob{JobID: "a", Status: contracts.JobQueued}))
	assert.ErrorIs(t, jobs.Create(ctx, &contracts.ForecastJob{JobID: "a"}), contracts.ErrConflict)

	ok, err := jobs.Complete(ctx, "a", nil, t0)
	require.NoError(t, err)
	assert.False(t, ok, "queued job cannot complete")

	ok, _ = jobs.Cancel(ctx, "a", "stop", t0)
	assert.True(t, ok)
	ok, _ = jobs.Claim(ctx, "a", t0)
	assert.False(t, ok, "cancelled job must never run")

	job, err := jobs.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, contracts.JobCancelled, job.Status)
	assert.Equal(t, "stop", *job.Error)

	_, err = jobs.Claim(ctx, "missing", t0)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestJobCleanupAndMetrics(t *testing.T) {
	ctx := context.Background()
	now := t0
	s := New(WithClock(func() time.Time { return now }))
	old := now.AddDate(0, 0, -40)
	recent := now.Add(-2 * time.Hour)

	for _, st := range contracts.AllJobStatuses {
		seedJob(t, s, "old-"+string(st), st, old, old.Add(5*time.Minute))
		seedJob(t, s, "new-"+string(st), st, recent, recent.Add(5*time.Minute))
	}

	m, err := s.Jobs().Metrics(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.TotalJobs)
	assert.Equal(t, int64(2), m.StatusCounts[contracts.JobQueued])
	assert.Equal(t, int64(1), m.FailedLast24h)
	require.NotNil(t, m.AvgProcessingSeconds)
	assert.InDelta(t, 240.0, *m.AvgProcessingSeconds, 0.001)
	require.NotNil(t, m.OldestQueuedAgeSeconds)
	assert.InDelta(t, now.Sub(old).Seconds(), *m.OldestQueuedAgeSeconds, 0.001)

	deleted, err := s.Jobs().DeleteTerminalBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	remaining, err := s.Jobs().List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 7)
	for _, j := range remaining {
		if j.Status.Terminal() {
			assert.Contains(t, j.JobID, "new-")
		}
	}

	queued, err := s.Jobs().ListQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "old-queued", queued[0].JobID)
}
