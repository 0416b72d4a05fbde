package modelconfig

// Config는 예측 모델 파라미터와 백테스트 윈도우 설정
type Config struct {
	Meta     Meta     `yaml:"meta" json:"meta"`
	Backtest Backtest `yaml:"backtest" json:"backtest"`
	Models   Models   `yaml:"models" json:"models"`
}

// Meta 메타 정보
type Meta struct {
	ConfigID string `yaml:"config_id" json:"config_id"`
	Version  string `yaml:"version" json:"version"`
}

// Backtest rolling-origin 윈도우
type Backtest struct {
	MinTrainMonths int `yaml:"min_train_months" json:"min_train_months"`
	TestMonths     int `yaml:"test_months" json:"test_months"`
}

// Models 모델별 파라미터 (struct → 해시 재현성)
type Models struct {
	MovingAverage MovingAverageParams `yaml:"moving_average" json:"moving_average"`
	EWMA          EWMAParams          `yaml:"ewma" json:"ewma"`
	ExpSmoothing  ExpSmoothingParams  `yaml:"exp_smoothing" json:"exp_smoothing"`
	ARIMA         ARIMAParams         `yaml:"arima" json:"arima"`
	Prophet       ProphetParams       `yaml:"prophet" json:"prophet"`
	LSTM          LSTMParams          `yaml:"lstm" json:"lstm"`
}

type MovingAverageParams struct {
	Window      int     `yaml:"window" json:"window"`
	TrendWeight float64 `yaml:"trend_weight" json:"trend_weight"`
}

type EWMAParams struct {
	Alpha       float64 `yaml:"alpha" json:"alpha"`
	TrendWeight float64 `yaml:"trend_weight" json:"trend_weight"`
}

type ExpSmoothingParams struct {
	DampedTrend bool `yaml:"damped_trend" json:"damped_trend"`
}

type ARIMAParams struct {
	P int `yaml:"p" json:"p"`
	D int `yaml:"d" json:"d"`
	Q int `yaml:"q" json:"q"`
}

type ProphetParams struct {
	ChangepointPriorScale float64 `yaml:"changepoint_prior_scale" json:"changepoint_prior_scale"`
	SeasonalityMode       string  `yaml:"seasonality_mode" json:"seasonality_mode"`
}

type LSTMParams struct {
	Lookback    int     `yaml:"lookback" json:"lookback"`
	HiddenUnits int     `yaml:"hidden_units" json:"hidden_units"`
	Ridge       float64 `yaml:"ridge" json:"ridge"`
	Seed        int64   `yaml:"seed" json:"seed"`
}

// Default returns the built-in model configuration.
func Default() *Config {
	return &Config{
		Meta:     Meta{ConfigID: "default", Version: "1"},
		Backtest: Backtest{MinTrainMonths: 3, TestMonths: 6},
		Models: Models{
			MovingAverage: MovingAverageParams{Window: 6, TrendWeight: 0.5},
			EWMA:          EWMAParams{Alpha: 0.35, TrendWeight: 0.4},
			ExpSmoothing:  ExpSmoothingParams{DampedTrend: true},
			ARIMA:         ARIMAParams{P: 1, D: 1, Q: 1},
			Prophet:       ProphetParams{ChangepointPriorScale: 0.05, SeasonalityMode: "multiplicative"},
			LSTM:          LSTMParams{Lookback: 12, HiddenUnits: 8, Ridge: 0.1, Seed: 42},
		},
	}
}
