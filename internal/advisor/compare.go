package advisor

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// unscored options sort last
const unscored = 999999.0

// Option is one model offered for side-by-side comparison.
type Option struct {
	ModelID contracts.ModelID         `json:"model_type"`
	Metric  *contracts.BacktestMetric `json:"metrics,omitempty"`
}

// Score returns the backtest score, or a sentinel when the model was not scored.
func (o Option) Score() float64 {
	if o.Metric == nil {
		return unscored
	}
	return o.Metric.Score
}

// CompareRequest is the sandbox comparison context.
type CompareRequest struct {
	DefaultModel     contracts.ModelID `json:"default_model"`
	HistoryMonths    int               `json:"history_months"`
	DataQualityFlags []string          `json:"data_quality_flags"`
	Options          []Option          `json:"options"`
}

// Comparison is the advisor's verdict over a set of options.
type Comparison struct {
	RecommendedModel  contracts.ModelID            `json:"recommended_model"`
	Confidence        float64                      `json:"confidence"`
	Reason            string                       `json:"reason"`
	AdvisorEnabled    bool                         `json:"advisor_enabled"`
	FallbackUsed      bool                         `json:"fallback_used"`
	Warnings          []string                     `json:"warnings"`
	Ranked            []contracts.ModelID          `json:"ranked"`
	ConservativeModel *contracts.ModelID           `json:"conservative_model,omitempty"`
	AggressiveModel   *contracts.ModelID           `json:"aggressive_model,omitempty"`
	OptionSummaries   map[contracts.ModelID]string `json:"option_summaries,omitempty"`
}

// CompareOptions ranks options by score and optionally asks the recommender to
// narrate the tradeoffs. A suggestion outside the compared set is ignored.
func (a *Advisor) CompareOptions(ctx context.Context, req CompareRequest) Comparison {
	if len(req.Options) == 0 {
		return Comparison{
			RecommendedModel: req.DefaultModel,
			Confidence:       0.5,
			Reason:           "No options available to compare.",
			FallbackUsed:     true,
			Warnings:         []string{WarnNoOptions},
			Ranked:           []contracts.ModelID{},
		}
	}

	ranked := append([]Option(nil), req.Options...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score() < ranked[j].Score()
	})
	req.Options = ranked

	ids := make([]contracts.ModelID, len(ranked))
	inSet := make(map[contracts.ModelID]bool, len(ranked))
	for i, o := range ranked {
		ids[i] = o.ModelID
		inSet[o.ModelID] = true
	}
	best := ids[0]

	if !a.Enabled() {
		return Comparison{
			RecommendedModel: best,
			Confidence:       0.72,
			Reason:           "External advisor unavailable; selected lowest composite error score.",
			FallbackUsed:     true,
			Warnings:         []string{WarnLLMUnavailable},
			Ranked:           ids,
		}
	}

	raw, err := a.call(func() (map[string]any, error) { return a.recommender.Compare(ctx, req) })
	var payload map[string]any
	if err == nil {
		payload, err = ExtractPayload(raw)
	}
	if err != nil {
		a.logger.WithError(err).Warn("Advisor comparison fallback")
		return Comparison{
			RecommendedModel: best,
			Confidence:       0.65,
			Reason:           fmt.Sprintf("Advisor comparison failed; used deterministic ranking. (%v)", err),
			AdvisorEnabled:   true,
			FallbackUsed:     true,
			Warnings:         []string{WarnRuntimeError},
			Ranked:           ids,
		}
	}

	out := Comparison{
		RecommendedModel: best,
		Confidence:       clamp01(numberField(payload, "confidence", 0.75)),
		Reason:           stringField(payload, "reason", "Recommendation generated from multi-model comparison."),
		AdvisorEnabled:   true,
		Warnings:         []string{},
		Ranked:           ids,
	}
	if picked := contracts.ModelID(stringField(payload, "recommended_model", "")); inSet[picked] {
		out.RecommendedModel = picked
	} else {
		out.FallbackUsed = true
		out.Warnings = append(out.Warnings, WarnInvalidModel)
	}
	if m := contracts.ModelID(stringField(payload, "conservative_model", "")); inSet[m] {
		out.ConservativeModel = &m
	}
	if m := contracts.ModelID(stringField(payload, "aggressive_model", "")); inSet[m] {
		out.AggressiveModel = &m
	}
	if summaries, ok := payload["option_summaries"].(map[string]any); ok {
		out.OptionSummaries = make(map[contracts.ModelID]string)
		for k, v := range summaries {
			if s, ok := v.(string); ok && inSet[contracts.ModelID(k)] {
				out.OptionSummaries[contracts.ModelID(k)] = s
			}
		}
	}
	return out
}
