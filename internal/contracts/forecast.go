package contracts

import (
	"encoding/json"
	"time"
)

// ForecastPoint is one predicted month produced by a strategy.
type ForecastPoint struct {
	Period       time.Time `json:"period"`
	PredictedQty float64   `json:"predicted_qty"`
	LowerBound   *float64  `json:"lower_bound,omitempty"`
	UpperBound   *float64  `json:"upper_bound,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"` // 0~100
	MAPE         *float64  `json:"mape,omitempty"`
}

// Forecast is a persisted forecast row.
// (product_id, model_type, period) 기준 latest-wins
type Forecast struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ModelType    ModelID         `json:"model_type"`
	Period       time.Time       `json:"period"`
	PredictedQty float64         `json:"predicted_qty"`
	LowerBound   *float64        `json:"lower_bound,omitempty"`
	UpperBound   *float64        `json:"upper_bound,omitempty"`
	Confidence   *float64        `json:"confidence,omitempty"`
	MAPE         *float64        `json:"mape,omitempty"`
	ModelVersion string          `json:"model_version"`
	FeaturesUsed json.RawMessage `json:"features_used,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ForecastFilter narrows forecast listings. Zero values match everything.
type ForecastFilter struct {
	ProductID *int64
	ModelType *ModelID
	From      *time.Time
	To        *time.Time
}

// BacktestMetric holds walk-forward error statistics for one model.
// score = mape + 0.25·wape, 낮을수록 좋음
type BacktestMetric struct {
	ModelID     ModelID `json:"model_id"`
	MAPE        float64 `json:"mape"`
	WAPE        float64 `json:"wape"`
	RMSE        float64 `json:"rmse"`
	MAE         float64 `json:"mae"`
	Bias        float64 `json:"bias"`
	HitRate     float64 `json:"hit_rate"`
	PeriodCount int     `json:"period_count"`
	Score       float64 `json:"score"`
}

// AdvisorDecision is the model selection outcome. Treat as immutable.
type AdvisorDecision struct {
	RecommendedModel ModelID  `json:"recommended_model_id"`
	Confidence       float64  `json:"confidence"` // 0~1
	Reason           string   `json:"reason"`
	AdvisorEnabled   bool     `json:"advisor_enabled"`
	FallbackUsed     bool     `json:"fallback_used"`
	Warnings         []string `json:"warnings"`
}

// Data quality flags
const (
	FlagShortHistory   = "short_history"
	FlagMissingMonths  = "missing_months"
	FlagHighVolatility = "high_volatility"
)

// Diagnostics explains how a forecast run picked and executed its model.
type Diagnostics struct {
	SelectedModel     ModelID          `json:"selected_model"`
	ExecutedModel     ModelID          `json:"executed_model"`
	SelectionReason   string           `json:"selection_reason"`
	AdvisorConfidence float64          `json:"advisor_confidence"`
	AdvisorEnabled    bool             `json:"advisor_enabled"`
	FallbackUsed      bool             `json:"fallback_used"`
	Warnings          []string         `json:"warnings"`
	HistoryMonths     int              `json:"history_months"`
	CandidateMetrics  []BacktestMetric `json:"candidate_metrics"`
	DataQualityFlags  []string         `json:"data_quality_flags"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// AppendUnique appends s to list unless it is already present.
func AppendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
