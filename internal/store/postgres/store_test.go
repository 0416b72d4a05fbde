package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/database"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "X", 1))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows, "ForecastJob", "a"), contracts.ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23505", ConstraintName: "forecast_jobs_pkey"}, "ForecastJob", "a"), contracts.ErrConflict)

	other := errors.New("connection reset")
	err := mapError(fmt.Errorf("wrapped: %w", other), "ForecastJob", "a")
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, contracts.ErrConflict)
}

func TestModelHelpers(t *testing.T) {
	assert.Nil(t, modelPtr(nil))
	assert.Nil(t, modelArg(nil))
	raw := "arima"
	assert.Equal(t, contracts.ModelARIMA, *modelPtr(&raw))
	id := contracts.ModelProphet
	assert.Equal(t, "prophet", *modelArg(&id))
}

func integrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, url))

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return New(pool)
}

func TestHistoryIntegration_SumsPerMonth(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	productID := time.Now().UnixNano()

	// 월 중간 일자로 들어온 행도 같은 달로 합산
	for _, row := range []struct {
		period string
		qty    int64
	}{
		{"2024-01-01", 100},
		{"2024-01-15", 20},
		{"2024-02-01", 90},
	} {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO demand_plans (product_id, period, actual_qty) VALUES ($1, $2::date, $3)`,
			productID, row.period, row.qty)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), `DELETE FROM demand_plans WHERE product_id = $1`, productID)
	})

	series, err := s.History().ActualsSeries(ctx, productID)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), series[0].Period.UTC())
	assert.True(t, decimal.NewFromInt(120).Equal(series[0].ActualQty), series[0].ActualQty.String())
	assert.True(t, decimal.NewFromInt(90).Equal(series[1].ActualQty))
}

func TestJobsIntegration(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	id := uuid.NewString()
	model := contracts.ModelEWMA
	require.NoError(t, s.Jobs().Create(ctx, &contracts.ForecastJob{JobID: id, Status: contracts.JobQueued, ProductID: 1, HorizonMonths: 3, ModelType: &model, CreatedAt: now}))
	assert.ErrorIs(t, s.Jobs().Create(ctx, &contracts.ForecastJob{JobID: id, Status: contracts.JobQueued, ProductID: 1, HorizonMonths: 3}), contracts.ErrConflict)

	ok, err := s.Jobs().Claim(ctx, id, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Jobs().Claim(ctx, id, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Jobs().Complete(ctx, id, []byte(`{"records_created":3}`), now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	job, err := s.Jobs().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobCompleted, job.Status)
	assert.JSONEq(t, `{"records_created":3}`, string(job.Result))
	require.NotNil(t, job.ModelType)
	assert.Equal(t, model, *job.ModelType)

	_, err = s.Jobs().Claim(ctx, uuid.NewString(), now)
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	m, err := s.Jobs().Metrics(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.StatusCounts[contracts.JobCompleted], int64(1))
}

func TestConsensusIntegration(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()
	productID := time.Now().UnixNano() % 1_000_000_000
	period := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	capQty := decimal.NewFromInt(1080)
	err := s.InTx(ctx, func(tx contracts.Repositories) error {
		return tx.Consensus().Create(ctx, &contracts.ConsensusRecord{
			ProductID: productID, Period: period,
			BaselineQty: decimal.NewFromInt(1000), ConstraintCapQty: &capQty,
			PreConsensusQty: decimal.NewFromInt(1130), FinalConsensusQty: capQty,
			Status: contracts.ConsensusDraft, Version: 1, CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	v, err := s.Consensus().MaxVersion(ctx, nil, productID, period)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	pid := productID
	records, err := s.Consensus().List(ctx, contracts.ConsensusFilter{ProductID: &pid})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	require.NotNil(t, rec.ConstraintCapQty)
	assert.True(t, capQty.Equal(*rec.ConstraintCapQty))

	rec.Version = 2
	rec.ConstraintCapQty = nil
	require.NoError(t, s.Consensus().Update(ctx, &rec, 1))
	err = s.Consensus().Update(ctx, &rec, 1)
	assert.ErrorIs(t, err, contracts.ErrConflict)
}
