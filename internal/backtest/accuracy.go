package backtest

import (
	"sort"
	"time"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// Actuals maps a month start to the recorded demand for that month.
type Actuals map[time.Time]float64

// =============================================================================
// Accuracy Report
// =============================================================================

// Accuracy scores persisted forecasts of one model against recorded actuals.
// Returns false when no forecast period has an actual yet.
func Accuracy(productID int64, model contracts.ModelID, forecasts []contracts.Forecast, actuals Actuals) (contracts.AccuracyReport, bool) {
	var acc accumulator
	for _, f := range forecasts {
		actual, ok := actuals[contracts.MonthStart(f.Period)]
		if !ok {
			continue
		}
		acc.add(f.PredictedQty, actual)
	}
	if acc.samples() == 0 {
		return contracts.AccuracyReport{}, false
	}

	m := acc.metric(model)
	return contracts.AccuracyReport{
		ProductID:   productID,
		ModelID:     model,
		MAPE:        m.MAPE,
		WAPE:        m.WAPE,
		RMSE:        m.RMSE,
		MAE:         m.MAE,
		Bias:        m.Bias,
		HitRate:     m.HitRate,
		PeriodCount: m.PeriodCount,
	}, true
}

// Aggregate averages per-product reports of one model into a portfolio row (ProductID 0).
// 지표는 상품별 단순 평균, period_count는 합계
func Aggregate(model contracts.ModelID, reports []contracts.AccuracyReport) (contracts.AccuracyReport, bool) {
	if len(reports) == 0 {
		return contracts.AccuracyReport{}, false
	}
	out := contracts.AccuracyReport{ModelID: model}
	for _, r := range reports {
		out.MAPE += r.MAPE
		out.WAPE += r.WAPE
		out.RMSE += r.RMSE
		out.MAE += r.MAE
		out.Bias += r.Bias
		out.HitRate += r.HitRate
		out.PeriodCount += r.PeriodCount
	}
	n := float64(len(reports))
	out.MAPE = round4(out.MAPE / n)
	out.WAPE = round4(out.WAPE / n)
	out.RMSE = round4(out.RMSE / n)
	out.MAE = round4(out.MAE / n)
	out.Bias = round4(out.Bias / n)
	out.HitRate = round4(out.HitRate / n)
	return out, true
}

// =============================================================================
// Drift
// =============================================================================

// DriftConfig thresholds for accuracy drift detection.
type DriftConfig struct {
	ThresholdPct float64
	MinPoints    int
}

// DefaultDrift 10%p 악화, 최소 6개 포인트
var DefaultDrift = DriftConfig{ThresholdPct: 10, MinPoints: 6}

// Drift compares mean APE of the most recent window with the window before it.
// window = max(3, min(6, len/2)); zero actuals are skipped.
func Drift(productID int64, model contracts.ModelID, forecasts []contracts.Forecast, actuals Actuals, cfg DriftConfig) (contracts.DriftAlert, bool) {
	ordered := append([]contracts.Forecast(nil), forecasts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Period.Before(ordered[j].Period)
	})

	var apes []float64
	for _, f := range ordered {
		actual, ok := actuals[contracts.MonthStart(f.Period)]
		if !ok || actual == 0 {
			continue
		}
		ape := (f.PredictedQty - actual) / actual * 100
		if ape < 0 {
			ape = -ape
		}
		apes = append(apes, ape)
	}

	if len(apes) < cfg.MinPoints {
		return contracts.DriftAlert{}, false
	}
	window := max(3, min(6, len(apes)/2))
	if len(apes) < 2*window {
		return contracts.DriftAlert{}, false
	}

	prior := mean(apes[len(apes)-2*window : len(apes)-window])
	recent := mean(apes[len(apes)-window:])
	degradation := recent - prior
	if degradation < cfg.ThresholdPct {
		return contracts.DriftAlert{}, false
	}

	severity := contracts.SeverityMedium
	if degradation >= 2*cfg.ThresholdPct {
		severity = contracts.SeverityHigh
	}
	return contracts.DriftAlert{
		ProductID:      productID,
		ModelID:        model,
		PreviousMAPE:   round4(prior),
		RecentMAPE:     round4(recent),
		DegradationPct: round4(degradation),
		Severity:       severity,
	}, true
}

// SortAlerts orders alerts by degradation, worst first.
func SortAlerts(alerts []contracts.DriftAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].DegradationPct > alerts[j].DegradationPct
	})
}
