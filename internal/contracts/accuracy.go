package contracts

import "time"

// AccuracyReport compares persisted forecasts with recorded actuals for one model.
// ProductID 0 = 전체 상품 집계
type AccuracyReport struct {
	ProductID   int64   `json:"product_id"`
	ModelID     ModelID `json:"model_type"`
	MAPE        float64 `json:"mape"`
	WAPE        float64 `json:"wape"`
	RMSE        float64 `json:"rmse"`
	MAE         float64 `json:"mae"`
	Bias        float64 `json:"bias"`
	HitRate     float64 `json:"hit_rate"`
	PeriodCount int     `json:"period_count"`
}

// Drift severity
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// DriftAlert flags a model whose recent error window degraded against the prior one.
type DriftAlert struct {
	ProductID      int64   `json:"product_id"`
	ModelID        ModelID `json:"model_type"`
	PreviousMAPE   float64 `json:"previous_mape"`
	RecentMAPE     float64 `json:"recent_mape"`
	DegradationPct float64 `json:"degradation_pct"`
	Severity       string  `json:"severity"`
}

// Anomaly is one outlying actual in a demand history.
type Anomaly struct {
	Period   time.Time `json:"period"`
	Value    float64   `json:"value"`
	ZScore   float64   `json:"z_score"`
	Severity string    `json:"severity"`
}

// AnomalyReport summarises outliers for a product.
type AnomalyReport struct {
	ProductID int64     `json:"product_id"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Anomalies []Anomaly `json:"anomalies"`
}
