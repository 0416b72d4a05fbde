package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wonny/genxsop/backend/internal/advisor"
	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/events"
	"github.com/wonny/genxsop/backend/internal/strategy"
	"github.com/wonny/genxsop/backend/pkg/tracing"
)

// GenerateRequest asks for one forecast run
type GenerateRequest struct {
	ProductID      int64
	RequestedModel *contracts.ModelID
	Horizon        int
	UserID         int64

	// BeforeCommit runs inside the transaction before any row is written.
	// A non-nil error rolls the run back (job cancellation checkpoint).
	BeforeCommit func(ctx context.Context) error
}

// GenerateResult is what a run persisted and why
type GenerateResult struct {
	Forecasts   []contracts.Forecast  `json:"forecasts"`
	Diagnostics contracts.Diagnostics `json:"diagnostics"`
	AuditID     int64                 `json:"audit_id"`
}

// selection is the shared first half of Generate and Recommend
type selection struct {
	history  contracts.HistorySeries
	flags    []string
	metrics  []contracts.BacktestMetric
	decision contracts.AdvisorDecision
}

func (s *Service) selectModel(ctx context.Context, operation string, productID int64, requested *contracts.ModelID) (*selection, error) {
	history, err := s.loadHistory(ctx, operation, productID)
	if err != nil {
		return nil, err
	}

	ranked, err := s.engine.Run(ctx, history, s.window, contracts.SupportedModels)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	flags := QualityFlags(history)
	decision := s.advisor.Recommend(ctx, advisor.Request{
		RequestedModel:   requested,
		DefaultModel:     advisor.DefaultModel(history.Len(), ranked),
		CandidateMetrics: ranked,
		HistoryMonths:    history.Len(),
		DataQualityFlags: flags,
	})

	return &selection{history: history, flags: flags, metrics: ranked, decision: decision}, nil
}

func (sel *selection) diagnostics(outcome strategy.Outcome) contracts.Diagnostics {
	d := contracts.Diagnostics{
		SelectedModel:     sel.decision.RecommendedModel,
		ExecutedModel:     outcome.Executed,
		SelectionReason:   sel.decision.Reason,
		AdvisorConfidence: sel.decision.Confidence,
		AdvisorEnabled:    sel.decision.AdvisorEnabled,
		FallbackUsed:      sel.decision.FallbackUsed,
		Warnings:          append([]string{}, sel.decision.Warnings...),
		HistoryMonths:     sel.history.Len(),
		CandidateMetrics:  append([]contracts.BacktestMetric{}, sel.metrics...),
		DataQualityFlags:  sel.flags,
	}
	if outcome.Degraded() {
		d.FallbackUsed = true
		d.Warnings = contracts.AppendUnique(d.Warnings, fmt.Sprintf("strategy_degraded:%s->%s", outcome.Requested, outcome.Executed))
	}
	return d
}

func (sel *selection) metricFor(id contracts.ModelID) *contracts.BacktestMetric {
	for i := range sel.metrics {
		if sel.metrics[i].ModelID == id {
			return &sel.metrics[i]
		}
	}
	return nil
}

// Generate runs the full pipeline and persists forecasts plus one audit row
// in a single transaction. ForecastGenerated is published after commit.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (_ *GenerateResult, err error) {
	ctx, span := tracing.Start(ctx, "forecast.generate", tracing.Product(req.ProductID))
	defer func() { tracing.End(span, err) }()
	started := s.now()

	if err := s.validateHorizon(req.Horizon); err != nil {
		return nil, err
	}
	if err := validateModel(req.RequestedModel); err != nil {
		return nil, err
	}

	sel, err := s.selectModel(ctx, "generate_forecast", req.ProductID, req.RequestedModel)
	if err != nil {
		return nil, err
	}

	selected := sel.decision.RecommendedModel
	outcome := s.registry.Forecast(sel.history, req.Horizon, selected)
	if outcome.Err != nil {
		return nil, fmt.Errorf("forecast %s: %w", selected, outcome.Err)
	}
	diag := sel.diagnostics(outcome)
	span.SetAttributes(tracing.Model("model.selected", string(selected)), tracing.Model("model.executed", string(outcome.Executed)))

	if outcome.Degraded() {
		s.logger.WithFields(map[string]interface{}{
			"product_id": req.ProductID,
			"selected":   selected,
			"executed":   outcome.Executed,
			"attempts":   len(outcome.Attempts),
		}).Warn("Strategy degraded to fallback")
	}

	features, err := json.Marshal(map[string]any{
		"source":             "genxai_advisor",
		"selection_reason":   diag.SelectionReason,
		"advisor_confidence": diag.AdvisorConfidence,
		"advisor_enabled":    diag.AdvisorEnabled,
		"fallback_used":      diag.FallbackUsed,
		"warnings":           diag.Warnings,
	})
	if err != nil {
		return nil, err
	}

	var mape *float64
	if m := sel.metricFor(selected); m != nil {
		mape = contracts.Float(m.MAPE)
	}

	result := &GenerateResult{Diagnostics: diag}
	err = s.store.InTx(ctx, func(tx contracts.Repositories) error {
		if req.BeforeCommit != nil {
			if err := req.BeforeCommit(ctx); err != nil {
				return err
			}
		}

		for _, p := range outcome.Points {
			f := contracts.Forecast{
				ProductID:    req.ProductID,
				ModelType:    selected,
				Period:       p.Period,
				PredictedQty: p.PredictedQty,
				LowerBound:   p.LowerBound,
				UpperBound:   p.UpperBound,
				Confidence:   p.Confidence,
				MAPE:         mape,
				ModelVersion: ModelVersion,
				FeaturesUsed: features,
				CreatedBy:    req.UserID,
			}
			if err := tx.Forecasts().Replace(ctx, &f); err != nil {
				return fmt.Errorf("replace forecast: %w", err)
			}
			result.Forecasts = append(result.Forecasts, f)
		}

		audit := &contracts.ForecastRunAudit{
			ProductID:         req.ProductID,
			UserID:            req.UserID,
			RequestedModel:    req.RequestedModel,
			SelectedModel:     selected,
			HorizonMonths:     req.Horizon,
			AdvisorEnabled:    diag.AdvisorEnabled,
			FallbackUsed:      diag.FallbackUsed,
			AdvisorConfidence: diag.AdvisorConfidence,
			SelectionReason:   diag.SelectionReason,
			HistoryMonths:     diag.HistoryMonths,
			RecordsCreated:    len(result.Forecasts),
			Warnings:          diag.Warnings,
			CandidateMetrics:  diag.CandidateMetrics,
			DataQualityFlags:  diag.DataQualityFlags,
			ConfigHash:        s.configHash,
		}
		if err := tx.Audits().Create(ctx, audit); err != nil {
			return fmt.Errorf("create run audit: %w", err)
		}
		result.AuditID = audit.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ForecastGenerated{
		ProductID:      req.ProductID,
		ModelID:        selected,
		HorizonMonths:  req.Horizon,
		RecordsCreated: len(result.Forecasts),
		UserID:         req.UserID,
	})
	s.metrics.ForecastRun(selected, outcome.Executed, diag.FallbackUsed, s.now().Sub(started))

	s.logger.WithFields(map[string]interface{}{
		"product_id": req.ProductID,
		"model":      selected,
		"records":    len(result.Forecasts),
		"audit_id":   result.AuditID,
		"fallback":   diag.FallbackUsed,
	}).Info("Forecast generated")

	return result, nil
}

// Recommend returns the diagnostics Generate would produce, without writing
func (s *Service) Recommend(ctx context.Context, productID int64, requested *contracts.ModelID) (_ *contracts.Diagnostics, err error) {
	ctx, span := tracing.Start(ctx, "forecast.recommend", tracing.Product(productID))
	defer func() { tracing.End(span, err) }()

	if err := validateModel(requested); err != nil {
		return nil, err
	}
	sel, err := s.selectModel(ctx, "recommend_model", productID, requested)
	if err != nil {
		return nil, err
	}

	// 1-step 실행으로 실제 실행될 모델 확인
	outcome := s.registry.Forecast(sel.history, 1, sel.decision.RecommendedModel)
	d := sel.diagnostics(outcome)
	return &d, nil
}

// ExecuteJob adapts Generate to the job pool. checkpoint is consulted just
// before commit so a job cancelled mid-run writes nothing.
func (s *Service) ExecuteJob(ctx context.Context, job contracts.ForecastJob, checkpoint func(ctx context.Context) error) (*contracts.JobResult, error) {
	ctx, span := tracing.Start(ctx, "forecast.job", tracing.Job(job.JobID), tracing.Product(job.ProductID))
	defer span.End()

	res, err := s.Generate(ctx, GenerateRequest{
		ProductID:      job.ProductID,
		RequestedModel: job.ModelType,
		Horizon:        job.HorizonMonths,
		UserID:         job.RequestedBy,
		BeforeCommit:   checkpoint,
	})
	if err != nil {
		return nil, err
	}

	out := &contracts.JobResult{
		ProductID:      job.ProductID,
		Horizon:        job.HorizonMonths,
		ModelType:      job.ModelType,
		RecordsCreated: len(res.Forecasts),
		Forecasts:      make([]contracts.JobResultPoint, 0, len(res.Forecasts)),
	}
	for _, f := range res.Forecasts {
		out.Forecasts = append(out.Forecasts, contracts.JobResultPoint{
			Period:       f.Period.Format(time.DateOnly),
			PredictedQty: f.PredictedQty,
			LowerBound:   f.LowerBound,
			UpperBound:   f.UpperBound,
			Confidence:   f.Confidence,
		})
	}
	return out, nil
}
