package forecast

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/genxsop/backend/internal/advisor"
	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/tracing"
)

// SandboxRequest compares several strategies without writing anything
type SandboxRequest struct {
	ProductID int64
	Horizon   int
	Models    []contracts.ModelID // 비어 있으면 전체
}

// SandboxOption is one strategy's output in a comparison
type SandboxOption struct {
	ModelID       contracts.ModelID         `json:"model_type"`
	ExecutedModel contracts.ModelID         `json:"executed_model"`
	Points        []contracts.ForecastPoint `json:"forecasts"`
	Metric        *contracts.BacktestMetric `json:"metrics,omitempty"`
}

// SandboxResult bundles the options with the advisor's comparison
type SandboxResult struct {
	ProductID        int64              `json:"product_id"`
	Horizon          int                `json:"horizon"`
	HistoryMonths    int                `json:"history_months"`
	DataQualityFlags []string           `json:"data_quality_flags"`
	Options          []SandboxOption    `json:"options"`
	Comparison       advisor.Comparison `json:"comparison"`
}

// Sandbox runs the requested strategies side by side
func (s *Service) Sandbox(ctx context.Context, req SandboxRequest) (_ *SandboxResult, err error) {
	ctx, span := tracing.Start(ctx, "forecast.sandbox", tracing.Product(req.ProductID))
	defer func() { tracing.End(span, err) }()

	if err := s.validateHorizon(req.Horizon); err != nil {
		return nil, err
	}
	models, err := sandboxModels(req.Models)
	if err != nil {
		return nil, err
	}

	history, err := s.loadHistory(ctx, "sandbox_forecast", req.ProductID)
	if err != nil {
		return nil, err
	}
	ranked, err := s.engine.Run(ctx, history, s.window, models)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	byModel := make(map[contracts.ModelID]contracts.BacktestMetric, len(ranked))
	for _, m := range ranked {
		byModel[m.ModelID] = m
	}

	result := &SandboxResult{
		ProductID:        req.ProductID,
		Horizon:          req.Horizon,
		HistoryMonths:    history.Len(),
		DataQualityFlags: QualityFlags(history),
		Options:          make([]SandboxOption, 0, len(models)),
	}
	compare := make([]advisor.Option, 0, len(models))
	for _, id := range models {
		outcome := s.registry.Forecast(history, req.Horizon, id)
		if outcome.Err != nil {
			return nil, fmt.Errorf("forecast %s: %w", id, outcome.Err)
		}
		opt := SandboxOption{ModelID: id, ExecutedModel: outcome.Executed, Points: outcome.Points}
		if m, ok := byModel[id]; ok {
			opt.Metric = &m
		}
		result.Options = append(result.Options, opt)
		compare = append(compare, advisor.Option{ModelID: id, Metric: opt.Metric})
	}

	result.Comparison = s.advisor.CompareOptions(ctx, advisor.CompareRequest{
		DefaultModel:     advisor.DefaultModel(history.Len(), ranked),
		HistoryMonths:    history.Len(),
		DataQualityFlags: result.DataQualityFlags,
		Options:          compare,
	})
	return result, nil
}

func sandboxModels(requested []contracts.ModelID) ([]contracts.ModelID, error) {
	if len(requested) == 0 {
		return append([]contracts.ModelID(nil), contracts.SupportedModels...), nil
	}
	seen := make(map[contracts.ModelID]bool, len(requested))
	out := make([]contracts.ModelID, 0, len(requested))
	for _, id := range requested {
		if _, err := contracts.ParseModelID(string(id)); err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// PromoteRequest pushes one strategy's output into the demand plan
type PromoteRequest struct {
	ProductID int64
	Model     contracts.ModelID
	Horizon   int
	UserID    int64
}

// PromoteResult counts what Promote touched
type PromoteResult struct {
	ProductID     int64                  `json:"product_id"`
	Model         contracts.ModelID      `json:"model_type"`
	ExecutedModel contracts.ModelID      `json:"executed_model"`
	Created       int                    `json:"created"`
	Updated       int                    `json:"updated"`
	Plans         []contracts.DemandPlan `json:"plans"`
}

// Promote runs the chosen strategy and upserts demand plans per period in one transaction.
// 기존 plan: forecast_qty 교체 + version+1, 없으면 Global/All draft 생성
func (s *Service) Promote(ctx context.Context, req PromoteRequest) (_ *PromoteResult, err error) {
	ctx, span := tracing.Start(ctx, "forecast.promote", tracing.Product(req.ProductID), tracing.Model("model", string(req.Model)))
	defer func() { tracing.End(span, err) }()

	if err := s.validateHorizon(req.Horizon); err != nil {
		return nil, err
	}
	if err := validateModel(&req.Model); err != nil {
		return nil, err
	}
	history, err := s.loadHistory(ctx, "promote_forecast", req.ProductID)
	if err != nil {
		return nil, err
	}

	outcome := s.registry.Forecast(history, req.Horizon, req.Model)
	if outcome.Err != nil {
		return nil, fmt.Errorf("forecast %s: %w", req.Model, outcome.Err)
	}

	result := &PromoteResult{ProductID: req.ProductID, Model: req.Model, ExecutedModel: outcome.Executed}
	err = s.store.InTx(ctx, func(tx contracts.Repositories) error {
		plans := tx.DemandPlans()
		for _, p := range outcome.Points {
			qty := decimal.NewFromFloat(p.PredictedQty).Round(2)

			plan, err := plans.FindByProductPeriod(ctx, req.ProductID, p.Period)
			if err != nil {
				return err
			}
			if plan != nil {
				plan.ForecastQty = qty
				plan.Version++
				if err := plans.Update(ctx, plan); err != nil {
					return fmt.Errorf("update demand plan %d: %w", plan.ID, err)
				}
				result.Updated++
			} else {
				plan = &contracts.DemandPlan{
					ProductID:   req.ProductID,
					Period:      p.Period,
					Region:      contracts.DefaultRegion,
					Channel:     contracts.DefaultChannel,
					ForecastQty: qty,
					Status:      contracts.DemandPlanDraft,
					CreatedBy:   req.UserID,
				}
				if err := plans.Create(ctx, plan); err != nil {
					return fmt.Errorf("create demand plan: %w", err)
				}
				result.Created++
			}
			result.Plans = append(result.Plans, *plan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"product_id": req.ProductID,
		"model":      req.Model,
		"created":    result.Created,
		"updated":    result.Updated,
	}).Info("Forecast promoted to demand plan")
	return result, nil
}
