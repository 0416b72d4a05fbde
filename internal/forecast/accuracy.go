package forecast

import (
	"context"
	"sort"

	"github.com/wonny/genxsop/backend/internal/backtest"
	"github.com/wonny/genxsop/backend/internal/contracts"
)

// AccuracyResult holds per (product, model) reports and a portfolio row per model
type AccuracyResult struct {
	Reports []contracts.AccuracyReport `json:"reports"`
	Summary []contracts.AccuracyReport `json:"summary"`
}

type seriesKey struct {
	productID int64
	model     contracts.ModelID
}

// timelines groups persisted forecasts by (product, model) and collects actuals per product
func (s *Service) timelines(ctx context.Context, productID *int64) (map[seriesKey][]contracts.Forecast, map[int64]backtest.Actuals, []seriesKey, error) {
	plans, err := s.store.DemandPlans().ListWithActuals(ctx, productID)
	if err != nil {
		return nil, nil, nil, err
	}
	actuals := make(map[int64]backtest.Actuals)
	for _, p := range plans {
		if p.ActualQty == nil {
			continue
		}
		a, ok := actuals[p.ProductID]
		if !ok {
			a = backtest.Actuals{}
			actuals[p.ProductID] = a
		}
		// 지역/채널별 plan은 월 합계로
		a[contracts.MonthStart(p.Period)] += p.ActualQty.InexactFloat64()
	}

	forecasts, err := s.store.Forecasts().List(ctx, contracts.ForecastFilter{ProductID: productID})
	if err != nil {
		return nil, nil, nil, err
	}
	groups := make(map[seriesKey][]contracts.Forecast)
	for _, f := range forecasts {
		k := seriesKey{productID: f.ProductID, model: f.ModelType}
		groups[k] = append(groups[k], f)
	}

	keys := make([]seriesKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].productID != keys[j].productID {
			return keys[i].productID < keys[j].productID
		}
		return keys[i].model < keys[j].model
	})
	return groups, actuals, keys, nil
}

// Accuracy scores persisted forecasts against recorded actuals
func (s *Service) Accuracy(ctx context.Context, productID *int64) (*AccuracyResult, error) {
	groups, actuals, keys, err := s.timelines(ctx, productID)
	if err != nil {
		return nil, err
	}

	result := &AccuracyResult{Reports: []contracts.AccuracyReport{}, Summary: []contracts.AccuracyReport{}}
	byModel := make(map[contracts.ModelID][]contracts.AccuracyReport)
	for _, k := range keys {
		report, ok := backtest.Accuracy(k.productID, k.model, groups[k], actuals[k.productID])
		if !ok {
			continue
		}
		result.Reports = append(result.Reports, report)
		byModel[k.model] = append(byModel[k.model], report)
	}

	for _, id := range contracts.SupportedModels {
		if agg, ok := backtest.Aggregate(id, byModel[id]); ok {
			result.Summary = append(result.Summary, agg)
		}
	}
	return result, nil
}

// DriftAlerts lists (product, model) timelines whose recent error degraded
func (s *Service) DriftAlerts(ctx context.Context, cfg backtest.DriftConfig) ([]contracts.DriftAlert, error) {
	if cfg.ThresholdPct <= 0 {
		cfg.ThresholdPct = backtest.DefaultDrift.ThresholdPct
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = backtest.DefaultDrift.MinPoints
	}

	groups, actuals, keys, err := s.timelines(ctx, nil)
	if err != nil {
		return nil, err
	}
	alerts := []contracts.DriftAlert{}
	for _, k := range keys {
		if alert, ok := backtest.Drift(k.productID, k.model, groups[k], actuals[k.productID], cfg); ok {
			alerts = append(alerts, alert)
		}
	}
	backtest.SortAlerts(alerts)

	if len(alerts) > 0 {
		s.logger.WithField("count", len(alerts)).Warn("Forecast accuracy drift detected")
	}
	return alerts, nil
}
