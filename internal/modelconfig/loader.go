package modelconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/strategy"
)

// Load reads a YAML file on top of Default() and returns Config with raw bytes.
// An empty path returns the defaults.
// KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	if path == "" {
		return Default(), nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Parse decodes YAML bytes on top of Default() and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Hash generates SHA256 hash from Config (canonical JSON)
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Params converts the typed model settings to per-strategy Params.
func (c *Config) Params() map[contracts.ModelID]strategy.Params {
	m := c.Models
	return map[contracts.ModelID]strategy.Params{
		contracts.ModelMovingAverage: {"window": m.MovingAverage.Window, "trend_weight": m.MovingAverage.TrendWeight},
		contracts.ModelEWMA:          {"alpha": m.EWMA.Alpha, "trend_weight": m.EWMA.TrendWeight},
		contracts.ModelExpSmoothing:  {"damped_trend": m.ExpSmoothing.DampedTrend},
		contracts.ModelSeasonalNaive: {},
		contracts.ModelARIMA:         {"p": m.ARIMA.P, "d": m.ARIMA.D, "q": m.ARIMA.Q},
		contracts.ModelProphet: {
			"changepoint_prior_scale": m.Prophet.ChangepointPriorScale,
			"seasonality_mode":        m.Prophet.SeasonalityMode,
		},
		contracts.ModelLSTM: {
			"lookback":     m.LSTM.Lookback,
			"hidden_units": m.LSTM.HiddenUnits,
			"ridge":        m.LSTM.Ridge,
			"seed":         m.LSTM.Seed,
		},
	}
}
