package modelconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

func TestLoad_DefaultFile(t *testing.T) {
	path := "../../config/models/default.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, data, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	// 파일 내용 == 내장 기본값
	fileHash, err := Hash(cfg)
	require.NoError(t, err)
	defHash, err := Hash(Default())
	require.NoError(t, err)
	assert.Equal(t, defHash, fileHash)
	assert.Len(t, fileHash, 64)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, data, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Overlay(t *testing.T) {
	cfg, err := Parse([]byte("models:\n  ewma:\n    alpha: 0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Models.EWMA.Alpha)
	// 나머지는 기본값 유지
	assert.Equal(t, 0.4, cfg.Models.EWMA.TrendWeight)
	assert.Equal(t, 6, cfg.Models.MovingAverage.Window)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("models:\n  ewma:\n    alpah: 0.5\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"window too small", func(c *Config) { c.Models.MovingAverage.Window = 1 }, "models.moving_average.window"},
		{"alpha too large", func(c *Config) { c.Models.EWMA.Alpha = 0.99 }, "models.ewma.alpha"},
		{"arima d", func(c *Config) { c.Models.ARIMA.D = 3 }, "models.arima.d"},
		{"seasonality mode", func(c *Config) { c.Models.Prophet.SeasonalityMode = "both" }, "models.prophet.seasonality_mode"},
		{"lstm ridge", func(c *Config) { c.Models.LSTM.Ridge = 0 }, "models.lstm.ridge"},
		{"test months", func(c *Config) { c.Backtest.TestMonths = 0 }, "backtest.test_months"},
		{"config id", func(c *Config) { c.Meta.ConfigID = "" }, "meta.config_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.NoError(t, Validate(Default()))
}

func TestHash_ChangesWithParams(t *testing.T) {
	a, err := Hash(Default())
	require.NoError(t, err)

	cfg := Default()
	cfg.Models.ARIMA.P = 2
	b, err := Hash(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParams(t *testing.T) {
	params := Default().Params()
	for _, id := range contracts.SupportedModels {
		_, ok := params[id]
		assert.True(t, ok, string(id))
	}
	assert.Equal(t, 6, params[contracts.ModelMovingAverage].Int("window", 0))
	assert.Equal(t, "multiplicative", params[contracts.ModelProphet].String("seasonality_mode", ""))
}

func TestWarn(t *testing.T) {
	assert.Empty(t, Warn(Default()))

	cfg := Default()
	cfg.Backtest.TestMonths = 18
	warnings := Warn(cfg)
	require.Len(t, warnings, 1)
	assert.Equal(t, "LONG_TEST_WINDOW", warnings[0].Code)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
