package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/strategy"
	"github.com/wonny/genxsop/backend/pkg/redis"
)

var jan2022 = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func seriesOf(values ...float64) contracts.HistorySeries {
	s := make(contracts.HistorySeries, len(values))
	for i, v := range values {
		s[i] = contracts.HistoryPoint{Period: jan2022.AddDate(0, i, 0), ActualQty: decimal.NewFromFloat(v)}
	}
	return s
}

func flat(n int, v float64) contracts.HistorySeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return seriesOf(values...)
}

func seasonal(n int) contracts.HistorySeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = 300 + 3*float64(i) + 30*math.Sin(2*math.Pi*float64(i%12)/12) + float64((i*5)%3)
	}
	return seriesOf(values...)
}

func TestAccumulator(t *testing.T) {
	var acc accumulator
	acc.add(110, 100)
	acc.add(90, 100)
	acc.add(5, 0) // 퍼센트 오차 제외

	m := acc.metric(contracts.ModelEWMA)
	assert.Equal(t, contracts.ModelEWMA, m.ModelID)
	assert.InDelta(t, 10.0, m.MAPE, 1e-9)
	assert.InDelta(t, 12.5, m.WAPE, 1e-9)
	assert.InDelta(t, 8.6603, m.RMSE, 1e-9)
	assert.InDelta(t, 8.3333, m.MAE, 1e-9)
	assert.InDelta(t, 0.0, m.Bias, 1e-9)
	assert.InDelta(t, 100.0, m.HitRate, 1e-9)
	assert.Equal(t, 3, m.PeriodCount)
	assert.InDelta(t, 13.125, m.Score, 1e-9)
}

func TestRun_FlatSeries(t *testing.T) {
	engine := NewEngine(strategy.NewRegistry(nil))
	candidates := []contracts.ModelID{contracts.ModelMovingAverage, contracts.ModelEWMA, contracts.ModelSeasonalNaive}

	metrics, err := engine.Run(context.Background(), flat(12, 100), DefaultWindow, candidates)
	require.NoError(t, err)

	// seasonal_naive: n=12 ≤ minHistory=12 → 제외
	require.Len(t, metrics, 2)
	assert.Equal(t, contracts.ModelMovingAverage, metrics[0].ModelID)
	assert.Equal(t, contracts.ModelEWMA, metrics[1].ModelID)
	for _, m := range metrics {
		assert.Equal(t, 6, m.PeriodCount)
		assert.Equal(t, 0.0, m.Score)
		assert.Equal(t, 100.0, m.HitRate)
	}
}

func TestRun_TiesKeepCandidateOrder(t *testing.T) {
	engine := NewEngine(strategy.NewRegistry(nil))
	series := flat(12, 100)

	// 동점(score 0)이면 model id가 아니라 전달된 후보 순서
	for _, candidates := range [][]contracts.ModelID{
		{contracts.ModelMovingAverage, contracts.ModelEWMA},
		{contracts.ModelEWMA, contracts.ModelMovingAverage},
	} {
		metrics, err := engine.Run(context.Background(), series, DefaultWindow, candidates)
		require.NoError(t, err)
		require.Len(t, metrics, 2)
		assert.Equal(t, candidates[0], metrics[0].ModelID)
		assert.Equal(t, candidates[1], metrics[1].ModelID)
	}
}

func TestRun_ShortSeriesWindow(t *testing.T) {
	engine := NewEngine(strategy.NewRegistry(nil))

	// n=5: MA minHistory 3 → split 3,4
	metrics, err := engine.Run(context.Background(), seriesOf(10, 20, 30, 40, 50), DefaultWindow, contracts.SupportedModels)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	byModel := map[contracts.ModelID]contracts.BacktestMetric{}
	for _, m := range metrics {
		byModel[m.ModelID] = m
	}
	assert.Equal(t, 2, byModel[contracts.ModelMovingAverage].PeriodCount)
	assert.Equal(t, 1, byModel[contracts.ModelEWMA].PeriodCount)
}

func TestRun_RankedAscending(t *testing.T) {
	engine := NewEngine(strategy.NewRegistry(nil))
	metrics, err := engine.Run(context.Background(), seasonal(36), DefaultWindow, contracts.SupportedModels)
	require.NoError(t, err)
	require.Len(t, metrics, len(contracts.SupportedModels))

	for i := 1; i < len(metrics); i++ {
		assert.LessOrEqual(t, metrics[i-1].Score, metrics[i].Score)
	}
	for _, m := range metrics {
		assert.Equal(t, 6, m.PeriodCount)
		assert.InDelta(t, round4(m.MAPE+0.25*m.WAPE), m.Score, 1e-3)
	}
}

func TestRun_Idempotent(t *testing.T) {
	engine := NewEngine(strategy.NewRegistry(nil))
	series := seasonal(30)

	first, err := engine.Run(context.Background(), series, DefaultWindow, contracts.SupportedModels)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), series, DefaultWindow, contracts.SupportedModels)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_InvalidWindow(t *testing.T) {
	engine := NewEngine(strategy.NewRegistry(nil))
	_, err := engine.Run(context.Background(), flat(12, 1), Window{MinTrainMonths: 0, TestMonths: 6}, contracts.SupportedModels)
	assert.ErrorIs(t, err, contracts.ErrBusinessRule)
}

func TestRun_ContextCancelled(t *testing.T) {
	engine := NewEngine(strategy.NewRegistry(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, flat(12, 100), DefaultWindow, []contracts.ModelID{contracts.ModelMovingAverage})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CachedResult(t *testing.T) {
	cache, err := NewCache(1<<20, time.Minute, nil, nil)
	require.NoError(t, err)
	defer cache.Close()

	engine := NewEngine(strategy.NewRegistry(nil), WithCache(cache), WithConfigHash("abc"))
	series := seasonal(24)

	first, err := engine.Run(context.Background(), series, DefaultWindow, contracts.SupportedModels)
	require.NoError(t, err)

	key := cacheKey(series, DefaultWindow, contracts.SupportedModels, "abc")
	cached, ok := cache.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, first, cached)

	second, err := engine.Run(context.Background(), series, DefaultWindow, contracts.SupportedModels)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCacheKey(t *testing.T) {
	series := flat(12, 100)
	base := cacheKey(series, DefaultWindow, contracts.SupportedModels, "h1")

	assert.Equal(t, base, cacheKey(flat(12, 100), DefaultWindow, contracts.SupportedModels, "h1"))
	assert.NotEqual(t, base, cacheKey(flat(12, 101), DefaultWindow, contracts.SupportedModels, "h1"))
	assert.NotEqual(t, base, cacheKey(series, Window{MinTrainMonths: 3, TestMonths: 3}, contracts.SupportedModels, "h1"))
	assert.NotEqual(t, base, cacheKey(series, DefaultWindow, contracts.SupportedModels[:2], "h1"))
	assert.NotEqual(t, base, cacheKey(series, DefaultWindow, contracts.SupportedModels, "h2"))
}

func TestCache_L2Promotion(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l2 := redis.NewCache(redis.Wrap(db), "genxsop")
	cache, err := NewCache(1<<20, time.Minute, l2, nil)
	require.NoError(t, err)
	defer cache.Close()

	mock.ExpectGet("genxsop:cache:backtest:k").SetVal(`[{"model_id":"ewma","mape":1.5,"period_count":6,"score":2}]`)

	got, ok := cache.Get(context.Background(), "k")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, contracts.ModelEWMA, got[0].ModelID)
	assert.Equal(t, 6, got[0].PeriodCount)

	// 두 번째 조회는 L1에서 응답 (Redis 호출 없음)
	again, ok := cache.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, got, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_L2Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache, err := NewCache(1<<20, time.Minute, redis.NewCache(redis.Wrap(db), "genxsop"), nil)
	require.NoError(t, err)
	defer cache.Close()

	mock.ExpectGet("genxsop:cache:backtest:missing").RedisNil()
	_, ok := cache.Get(context.Background(), "missing")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
