package modelconfig

import "fmt"

// ValidationError 검증 실패 (로딩 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.ConfigID == "" {
		return ValidationError{"meta.config_id", "required"}
	}

	// === Backtest ===
	if cfg.Backtest.MinTrainMonths < 1 {
		return ValidationError{"backtest.min_train_months", "must be >= 1"}
	}
	if cfg.Backtest.TestMonths < 1 {
		return ValidationError{"backtest.test_months", "must be >= 1"}
	}

	// === Models ===
	m := cfg.Models
	if err := intRange("models.moving_average.window", m.MovingAverage.Window, 2, 12); err != nil {
		return err
	}
	if err := floatRange("models.moving_average.trend_weight", m.MovingAverage.TrendWeight, 0, 1); err != nil {
		return err
	}
	if err := floatRange("models.ewma.alpha", m.EWMA.Alpha, 0.05, 0.95); err != nil {
		return err
	}
	if err := floatRange("models.ewma.trend_weight", m.EWMA.TrendWeight, 0, 1); err != nil {
		return err
	}
	if err := intRange("models.arima.p", m.ARIMA.P, 0, 3); err != nil {
		return err
	}
	if err := intRange("models.arima.d", m.ARIMA.D, 0, 2); err != nil {
		return err
	}
	if err := intRange("models.arima.q", m.ARIMA.Q, 0, 3); err != nil {
		return err
	}
	if err := floatRange("models.prophet.changepoint_prior_scale", m.Prophet.ChangepointPriorScale, 0.001, 0.5); err != nil {
		return err
	}
	if mode := m.Prophet.SeasonalityMode; mode != "additive" && mode != "multiplicative" {
		return ValidationError{"models.prophet.seasonality_mode", fmt.Sprintf("must be additive or multiplicative, got %q", mode)}
	}
	if err := intRange("models.lstm.lookback", m.LSTM.Lookback, 3, 12); err != nil {
		return err
	}
	if err := intRange("models.lstm.hidden_units", m.LSTM.HiddenUnits, 2, 16); err != nil {
		return err
	}
	if m.LSTM.Ridge <= 0 {
		return ValidationError{"models.lstm.ridge", "must be > 0"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Backtest.TestMonths > 12 {
		warnings = append(warnings, Warning{
			Code:    "LONG_TEST_WINDOW",
			Message: "test_months > 12: 짧은 이력 상품은 백테스트 샘플이 거의 없음",
		})
	}
	if cfg.Models.ARIMA.D == 2 {
		warnings = append(warnings, Warning{
			Code:    "ARIMA_DOUBLE_DIFF",
			Message: "d=2: 12개월 이력에서 대부분 exp_smoothing으로 강등됨",
		})
	}
	if cfg.Models.EWMA.Alpha > 0.8 {
		warnings = append(warnings, Warning{
			Code:    "EWMA_HIGH_ALPHA",
			Message: "alpha > 0.8: 노이즈에 과민 반응",
		})
	}

	return warnings
}

// === Helper Functions ===

func intRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return ValidationError{field, fmt.Sprintf("must be in [%d, %d], got %d", lo, hi, v)}
	}
	return nil
}

func floatRange(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return ValidationError{field, fmt.Sprintf("must be in [%g, %g], got %g", lo, hi, v)}
	}
	return nil
}
