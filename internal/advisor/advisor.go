package advisor

import (
	"context"
	"fmt"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/logger"
)

// Warning codes attached to decisions.
const (
	WarnLLMUnavailable = "llm_unavailable"
	WarnRuntimeError   = "advisor_runtime_error"
	WarnInvalidModel   = "advisor_invalid_model"
	WarnNoOptions      = "no_options"
)

// Request is the selection context handed to the advisor and its recommender.
type Request struct {
	RequestedModel   *contracts.ModelID         `json:"requested_model,omitempty"`
	DefaultModel     contracts.ModelID          `json:"default_model"`
	CandidateMetrics []contracts.BacktestMetric `json:"candidate_metrics"`
	HistoryMonths    int                        `json:"history_months"`
	DataQualityFlags []string                   `json:"data_quality_flags"`
}

// Recommender is an untrusted external suggestion source.
// Payloads are free-form and parsed leniently by the Advisor.
type Recommender interface {
	Recommend(ctx context.Context, req Request) (map[string]any, error)
	Compare(ctx context.Context, req CompareRequest) (map[string]any, error)
}

// Advisor picks the model for a forecast run
// ⭐ SSOT: 모델 선택 정책은 여기서만
type Advisor struct {
	recommender Recommender
	logger      *logger.Logger
}

// New creates an advisor. A nil recommender means deterministic selection only.
func New(recommender Recommender, log *logger.Logger) *Advisor {
	if log == nil {
		log = logger.Nop()
	}
	return &Advisor{recommender: recommender, logger: log.WithComponent("advisor")}
}

// Enabled reports whether an external recommender is configured.
func (a *Advisor) Enabled() bool {
	return a.recommender != nil
}

// DefaultModel is the top of the backtest ranking, or the history-length heuristic
// when nothing could be scored.
func DefaultModel(historyMonths int, ranked []contracts.BacktestMetric) contracts.ModelID {
	if len(ranked) > 0 && ranked[0].ModelID.Valid() {
		return ranked[0].ModelID
	}
	return contracts.BestModelForHistory(historyMonths)
}

// Recommend applies the selection policy:
//  1. an explicit request passes through untouched
//  2. no recommender → default model
//  3. recommender suggestion, replaced by the default on any error or unknown id
//
// The returned model id is always a supported one.
func (a *Advisor) Recommend(ctx context.Context, req Request) contracts.AdvisorDecision {
	if req.RequestedModel != nil && *req.RequestedModel != "" {
		return contracts.AdvisorDecision{
			RecommendedModel: *req.RequestedModel,
			Confidence:       1.0,
			Reason:           "Using user-selected model.",
			AdvisorEnabled:   false,
			FallbackUsed:     false,
			Warnings:         []string{},
		}
	}

	defaultModel := req.DefaultModel
	if !defaultModel.Valid() {
		defaultModel = DefaultModel(req.HistoryMonths, req.CandidateMetrics)
	}

	if !a.Enabled() {
		return contracts.AdvisorDecision{
			RecommendedModel: defaultModel,
			Confidence:       0.65,
			Reason:           "External advisor not configured; using deterministic selector.",
			AdvisorEnabled:   false,
			FallbackUsed:     true,
			Warnings:         []string{WarnLLMUnavailable},
		}
	}

	raw, err := a.call(func() (map[string]any, error) { return a.recommender.Recommend(ctx, req) })
	var payload map[string]any
	if err == nil {
		payload, err = ExtractPayload(raw)
	}
	if err != nil {
		a.logger.WithError(err).Warn("Advisor fallback: recommender failed")
		return contracts.AdvisorDecision{
			RecommendedModel: defaultModel,
			Confidence:       0.6,
			Reason:           fmt.Sprintf("Advisor fallback used due to runtime error: %v", err),
			AdvisorEnabled:   true,
			FallbackUsed:     true,
			Warnings:         []string{WarnRuntimeError},
		}
	}

	decision := contracts.AdvisorDecision{
		RecommendedModel: defaultModel,
		Confidence:       clamp01(numberField(payload, "confidence", 0.7)),
		Reason:           stringField(payload, "reason", "External advisor recommendation."),
		AdvisorEnabled:   true,
		Warnings:         []string{},
	}

	suggested := contracts.ModelID(stringField(payload, "recommended_model", ""))
	if suggested.Valid() {
		decision.RecommendedModel = suggested
	} else {
		a.logger.WithField("suggested", string(suggested)).Warn("Advisor suggested unsupported model")
		decision.FallbackUsed = true
		decision.Warnings = append(decision.Warnings, WarnInvalidModel)
	}
	return decision
}

// call shields the pipeline from recommender panics.
func (a *Advisor) call(fn func() (map[string]any, error)) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recommender panic: %v", r)
		}
	}()
	return fn()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
