package contracts

import "time"

// ForecastRunAudit is the append-only record of one orchestration run.
// ⭐ SSOT: 실행 감사 로그는 Orchestrator만 기록
type ForecastRunAudit struct {
	ID                int64            `json:"id"`
	ProductID         int64            `json:"product_id"`
	UserID            int64            `json:"user_id"`
	RequestedModel    *ModelID         `json:"requested_model"`
	SelectedModel     ModelID          `json:"selected_model"`
	HorizonMonths     int              `json:"horizon_months"`
	AdvisorEnabled    bool             `json:"advisor_enabled"`
	FallbackUsed      bool             `json:"fallback_used"`
	AdvisorConfidence float64          `json:"advisor_confidence"`
	SelectionReason   string           `json:"selection_reason"`
	HistoryMonths     int              `json:"history_months"`
	RecordsCreated    int              `json:"records_created"`
	Warnings          []string         `json:"warnings"`
	CandidateMetrics  []BacktestMetric `json:"candidate_metrics"`
	DataQualityFlags  []string         `json:"data_quality_flags"`
	ConfigHash        string           `json:"config_hash"`
	CreatedAt         time.Time        `json:"created_at"`
}
