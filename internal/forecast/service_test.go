package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/advisor"
	"github.com/wonny/genxsop/backend/internal/backtest"
	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/events"
	"github.com/wonny/genxsop/backend/internal/store/memory"
	"github.com/wonny/genxsop/backend/internal/strategy"
)

var seriesStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func seriesOf(values ...float64) contracts.HistorySeries {
	s := make(contracts.HistorySeries, len(values))
	for i, v := range values {
		s[i] = contracts.HistoryPoint{Period: seriesStart.AddDate(0, i, 0), ActualQty: decimal.NewFromFloat(v)}
	}
	return s
}

func seasonal(n int) contracts.HistorySeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = 500 + 4*float64(i) + 40*math.Sin(2*math.Pi*float64(i%12)/12) + float64((i*7)%5) - 2
	}
	return seriesOf(values...)
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	events *events.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	pub := events.NewMemory()
	registry := strategy.NewRegistry(nil)
	svc := NewService(store, registry, backtest.NewEngine(registry), advisor.New(nil, nil),
		WithPublisher(pub),
		WithConfigHash("cfg-hash"),
	)
	return &fixture{svc: svc, store: store, events: pub}
}

func modelPtr(id contracts.ModelID) *contracts.ModelID { return &id }

func TestGenerate_PersistsForecastsAndAudit(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))
	ctx := context.Background()

	res, err := f.svc.Generate(ctx, GenerateRequest{ProductID: 1, Horizon: 6, UserID: 7})
	require.NoError(t, err)
	require.Len(t, res.Forecasts, 6)

	d := res.Diagnostics
	assert.True(t, d.SelectedModel.Valid())
	assert.False(t, d.AdvisorEnabled)
	assert.True(t, d.FallbackUsed)
	assert.Equal(t, 30, d.HistoryMonths)
	assert.NotEmpty(t, d.CandidateMetrics)
	assert.Contains(t, d.Warnings, advisor.WarnLLMUnavailable)

	expected := seasonal(30).LastPeriod()
	for _, fc := range res.Forecasts {
		expected = contracts.AddMonths(expected, 1)
		assert.Equal(t, expected, fc.Period)
		assert.Equal(t, d.SelectedModel, fc.ModelType)
		assert.Equal(t, ModelVersion, fc.ModelVersion)
		assert.Equal(t, int64(7), fc.CreatedBy)
		assert.Contains(t, string(fc.FeaturesUsed), `"source":"genxai_advisor"`)
	}

	audit, err := f.store.Audits().Get(ctx, res.AuditID)
	require.NoError(t, err)
	assert.Equal(t, 6, audit.RecordsCreated)
	assert.Equal(t, d.SelectedModel, audit.SelectedModel)
	assert.Equal(t, "cfg-hash", audit.ConfigHash)
	assert.Nil(t, audit.RequestedModel)

	published := f.events.Named(events.NameForecastGenerated)
	require.Len(t, published, 1)
	ev := published[0].(events.ForecastGenerated)
	assert.Equal(t, int64(1), ev.ProductID)
	assert.Equal(t, 6, ev.RecordsCreated)
	assert.Equal(t, int64(7), ev.UserID)
}

func TestGenerate_RequestedModelPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))

	res, err := f.svc.Generate(context.Background(), GenerateRequest{
		ProductID:      1,
		RequestedModel: modelPtr(contracts.ModelExpSmoothing),
		Horizon:        3,
	})
	require.NoError(t, err)

	d := res.Diagnostics
	assert.Equal(t, contracts.ModelExpSmoothing, d.SelectedModel)
	assert.Equal(t, contracts.ModelExpSmoothing, d.ExecutedModel)
	assert.Equal(t, 1.0, d.AdvisorConfidence)
	assert.Equal(t, "Using user-selected model.", d.SelectionReason)
	assert.False(t, d.FallbackUsed)
	assert.Empty(t, d.Warnings)
}

func TestGenerate_StrategyDegradation(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(8))

	res, err := f.svc.Generate(context.Background(), GenerateRequest{
		ProductID:      1,
		RequestedModel: modelPtr(contracts.ModelProphet),
		Horizon:        4,
	})
	require.NoError(t, err)

	d := res.Diagnostics
	assert.Equal(t, contracts.ModelProphet, d.SelectedModel)
	assert.Equal(t, contracts.ModelExpSmoothing, d.ExecutedModel)
	assert.True(t, d.FallbackUsed)
	assert.Contains(t, d.Warnings, "strategy_degraded:prophet->exp_smoothing")
	assert.Contains(t, d.DataQualityFlags, contracts.FlagShortHistory)

	// 저장되는 model_type은 선택된 모델
	for _, fc := range res.Forecasts {
		assert.Equal(t, contracts.ModelProphet, fc.ModelType)
	}
}

func TestGenerate_LatestRunWins(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))
	ctx := context.Background()
	req := GenerateRequest{ProductID: 1, RequestedModel: modelPtr(contracts.ModelEWMA), Horizon: 6}

	first, err := f.svc.Generate(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.AuditID, second.AuditID)

	pid := int64(1)
	rows, err := f.store.Forecasts().List(ctx, contracts.ForecastFilter{ProductID: &pid})
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	audits, err := f.store.Audits().ListByProduct(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, audits, 2)
}

func TestGenerate_Errors(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))
	f.store.SeedHistory(2, seriesOf(10, 20))
	ctx := context.Background()

	t.Run("insufficient history", func(t *testing.T) {
		_, err := f.svc.Generate(ctx, GenerateRequest{ProductID: 2, Horizon: 3})
		var insufficient *contracts.InsufficientDataError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, 3, insufficient.Required)
		assert.Equal(t, 2, insufficient.Available)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := f.svc.Generate(ctx, GenerateRequest{ProductID: 99, Horizon: 3})
		var insufficient *contracts.InsufficientDataError
		assert.True(t, errors.As(err, &insufficient))
	})

	tests := []struct {
		name    string
		horizon int
	}{
		{"zero horizon", 0},
		{"horizon above max", 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Generate(ctx, GenerateRequest{ProductID: 1, Horizon: tt.horizon})
			var rule *contracts.BusinessRuleError
			require.True(t, errors.As(err, &rule))
			assert.Equal(t, "horizon", rule.Rule)
		})
	}

	t.Run("unknown model", func(t *testing.T) {
		_, err := f.svc.Generate(ctx, GenerateRequest{ProductID: 1, Horizon: 3, RequestedModel: modelPtr("xgboost")})
		assert.Error(t, err)
	})
}

func TestGenerate_BeforeCommitRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))
	ctx := context.Background()
	cancelled := errors.New("cancelled")

	_, err := f.svc.Generate(ctx, GenerateRequest{
		ProductID:    1,
		Horizon:      3,
		BeforeCommit: func(context.Context) error { return cancelled },
	})
	require.ErrorIs(t, err, cancelled)

	rows, err := f.store.Forecasts().List(ctx, contracts.ForecastFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	audits, err := f.store.Audits().ListByProduct(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, audits)
	assert.Empty(t, f.events.Events())
}

func TestRecommend_WritesNothing(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))
	ctx := context.Background()

	d, err := f.svc.Recommend(ctx, 1, nil)
	require.NoError(t, err)
	assert.True(t, d.SelectedModel.Valid())
	assert.True(t, d.ExecutedModel.Valid())
	assert.Equal(t, 30, d.HistoryMonths)

	rows, err := f.store.Forecasts().List(ctx, contracts.ForecastFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSandbox(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))
	ctx := context.Background()

	res, err := f.svc.Sandbox(ctx, SandboxRequest{ProductID: 1, Horizon: 4})
	require.NoError(t, err)
	require.Len(t, res.Options, len(contracts.SupportedModels))
	for _, opt := range res.Options {
		assert.Len(t, opt.Points, 4)
	}
	assert.True(t, res.Comparison.RecommendedModel.Valid())
	assert.NotEmpty(t, res.Comparison.Ranked)

	subset, err := f.svc.Sandbox(ctx, SandboxRequest{
		ProductID: 1,
		Horizon:   2,
		Models:    []contracts.ModelID{contracts.ModelEWMA, contracts.ModelEWMA, contracts.ModelMovingAverage},
	})
	require.NoError(t, err)
	require.Len(t, subset.Options, 2)
	assert.Contains(t, []contracts.ModelID{contracts.ModelEWMA, contracts.ModelMovingAverage}, subset.Comparison.RecommendedModel)

	_, err = f.svc.Sandbox(ctx, SandboxRequest{ProductID: 1, Horizon: 2, Models: []contracts.ModelID{"xgboost"}})
	assert.Error(t, err)

	rows, err := f.store.Forecasts().List(ctx, contracts.ForecastFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPromote_CreatesThenUpdatesPlans(t *testing.T) {
	f := newFixture(t)
	history := seasonal(24)
	f.store.SeedHistory(1, history)
	ctx := context.Background()
	req := PromoteRequest{ProductID: 1, Model: contracts.ModelMovingAverage, Horizon: 3, UserID: 5}

	first, err := f.svc.Promote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 0, first.Updated)
	for _, p := range first.Plans {
		assert.Equal(t, contracts.DefaultRegion, p.Region)
		assert.Equal(t, contracts.DefaultChannel, p.Channel)
		assert.Equal(t, contracts.DemandPlanDraft, p.Status)
		assert.Equal(t, 1, p.Version)
		assert.True(t, p.Period.After(history.LastPeriod()))
	}

	second, err := f.svc.Promote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 3, second.Updated)
	for i, p := range second.Plans {
		assert.Equal(t, first.Plans[i].ID, p.ID)
		assert.Equal(t, 2, p.Version)
		assert.True(t, p.ForecastQty.Equal(first.Plans[i].ForecastQty))
	}
}

func TestAccuracy(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(24))
	ctx := context.Background()

	res, err := f.svc.Generate(ctx, GenerateRequest{ProductID: 1, RequestedModel: modelPtr(contracts.ModelEWMA), Horizon: 3})
	require.NoError(t, err)

	none, err := f.svc.Accuracy(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none.Reports)

	// 예측 기간에 실적 입력
	actuals := make(contracts.HistorySeries, 0, len(res.Forecasts))
	for _, fc := range res.Forecasts {
		actuals = append(actuals, contracts.HistoryPoint{Period: fc.Period, ActualQty: decimal.NewFromInt(600)})
	}
	f.store.SeedHistory(1, actuals)

	pid := int64(1)
	out, err := f.svc.Accuracy(ctx, &pid)
	require.NoError(t, err)
	require.Len(t, out.Reports, 1)
	assert.Equal(t, contracts.ModelEWMA, out.Reports[0].ModelID)
	assert.Equal(t, 3, out.Reports[0].PeriodCount)
	require.Len(t, out.Summary, 1)
	assert.Equal(t, int64(0), out.Summary[0].ProductID)
}

func TestDriftAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	actuals := make([]float64, 12)
	for i := range actuals {
		actuals[i] = 100
	}
	f.store.SeedHistory(1, seriesOf(actuals...))

	for i := 0; i < 12; i++ {
		predicted := 100.0
		if i >= 6 {
			predicted = 130
		}
		row := contracts.Forecast{
			ProductID:    1,
			ModelType:    contracts.ModelARIMA,
			Period:       seriesStart.AddDate(0, i, 0),
			PredictedQty: predicted,
		}
		require.NoError(t, f.store.Forecasts().Replace(ctx, &row))
	}

	alerts, err := f.svc.DriftAlerts(ctx, backtest.DriftConfig{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, contracts.ModelARIMA, alerts[0].ModelID)
	assert.Equal(t, 0.0, alerts[0].PreviousMAPE)
	assert.Equal(t, 30.0, alerts[0].RecentMAPE)
	assert.Equal(t, contracts.SeverityHigh, alerts[0].Severity)

	quiet, err := f.svc.DriftAlerts(ctx, backtest.DriftConfig{ThresholdPct: 50, MinPoints: 6})
	require.NoError(t, err)
	assert.Empty(t, quiet)
}

func TestDetectAnomalies(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seriesOf(100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 300))
	f.store.SeedHistory(2, seriesOf(1, 2, 3, 4, 5))
	f.store.SeedHistory(3, seriesOf(50, 50, 50, 50, 50, 50))
	ctx := context.Background()

	report, err := f.svc.DetectAnomalies(ctx, 1)
	require.NoError(t, err)
	require.Len(t, report.Anomalies, 1)
	a := report.Anomalies[0]
	assert.Equal(t, 300.0, a.Value)
	assert.Equal(t, contracts.SeverityHigh, a.Severity)
	assert.InDelta(t, 3.32, a.ZScore, 0.01)
	assert.InDelta(t, 116.67, report.Mean, 0.001)

	short, err := f.svc.DetectAnomalies(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, short.Anomalies)

	flat, err := f.svc.DetectAnomalies(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, flat.Anomalies)
	assert.Equal(t, 0.0, flat.Std)
}

func TestQualityFlags(t *testing.T) {
	gapped := seriesOf(10, 12, 11, 13)
	gapped[3].Period = gapped[3].Period.AddDate(0, 2, 0)

	tests := []struct {
		name    string
		history contracts.HistorySeries
		want    []string
	}{
		{"long and stable", seasonal(24), []string{}},
		{"short", seriesOf(10, 11, 12), []string{contracts.FlagShortHistory}},
		{"gaps", gapped, []string{contracts.FlagShortHistory, contracts.FlagMissingMonths}},
		{"volatile", seriesOf(0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 600), []string{contracts.FlagHighVolatility}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QualityFlags(tt.history))
		})
	}
}

func TestExecuteJob(t *testing.T) {
	f := newFixture(t)
	f.store.SeedHistory(1, seasonal(30))
	checked := false

	out, err := f.svc.ExecuteJob(context.Background(), contracts.ForecastJob{
		JobID:         "job-1",
		ProductID:     1,
		HorizonMonths: 2,
		ModelType:     modelPtr(contracts.ModelEWMA),
		RequestedBy:   3,
	}, func(context.Context) error {
		checked = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, checked)
	assert.Equal(t, 2, out.RecordsCreated)
	require.Len(t, out.Forecasts, 2)
	assert.Equal(t, "2024-07-01", out.Forecasts[0].Period)
}

func TestListModels(t *testing.T) {
	f := newFixture(t)
	models := f.svc.ListModels()
	require.Len(t, models, len(contracts.SupportedModels))
	assert.Equal(t, contracts.ModelMovingAverage, models[0].ID)
}
