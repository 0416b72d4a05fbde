package strategy

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// ============================================================================
// Moving Average (terminal)
// ============================================================================

// MovingAverage is a linearly weighted moving average with trend extrapolation.
type MovingAverage struct{}

func (MovingAverage) ID() contracts.ModelID       { return contracts.ModelMovingAverage }
func (MovingAverage) DisplayName() string         { return "Moving Average" }
func (MovingAverage) MinDataMonths() int          { return 3 }
func (MovingAverage) Fallback() contracts.ModelID { return "" }
func (MovingAverage) Description() string {
	return "Weighted moving average with simple trend extrapolation"
}

// Try params: window (2..12, default 6), trend_weight (0..1, default 0.5)
func (MovingAverage) Try(history contracts.HistorySeries, horizon int, params Params) Result {
	y := history.Values()
	if err := requireLength(y, 1); err != nil {
		return Fail(err)
	}

	window := clampInt(params.Int("window", 6), 2, 12)
	trendWeight := clampFloat(params.Float("trend_weight", 0.5), 0, 1)

	if window > len(y) {
		window = len(y)
	}
	recent := y[len(y)-window:]
	weights := make([]float64, window)
	for i := range weights {
		weights[i] = float64(i + 1)
	}
	avg := stat.Mean(recent, weights)

	trend := 0.0
	if len(y) >= 2 {
		trend = (y[len(y)-1] - y[len(y)-2]) * 0.3
	}

	std := avg * 0.1
	if len(y) > 1 {
		std = sampleStd(y)
	}

	bands := make([]band, horizon)
	for i := range bands {
		step := float64(i + 1)
		bands[i] = band{value: avg + trend*step*trendWeight, halfWidth: 1.96 * std}
	}

	points, err := buildPoints(history, bands, 80)
	if err != nil {
		return Fail(err)
	}
	return Ok(points)
}

// ============================================================================
// EWMA (terminal)
// ============================================================================

// EWMA is an exponentially weighted moving average baseline.
type EWMA struct{}

func (EWMA) ID() contracts.ModelID       { return contracts.ModelEWMA }
func (EWMA) DisplayName() string         { return "EWMA" }
func (EWMA) MinDataMonths() int          { return 4 }
func (EWMA) Fallback() contracts.ModelID { return "" }
func (EWMA) Description() string {
	return "Exponentially weighted moving average baseline"
}

// Try params: alpha (0.05..0.95, default 0.35), trend_weight (0..1, default 0.4)
func (EWMA) Try(history contracts.HistorySeries, horizon int, params Params) Result {
	y := history.Values()
	if err := requireLength(y, 1); err != nil {
		return Fail(err)
	}

	alpha := clampFloat(params.Float("alpha", 0.35), 0.05, 0.95)
	trendWeight := clampFloat(params.Float("trend_weight", 0.4), 0, 1)

	// adjust=False 재귀식
	level := y[0]
	for _, v := range y[1:] {
		level = alpha*v + (1-alpha)*level
	}

	trend := 0.0
	if len(y) >= 4 {
		d := diff(y, 1)
		trend = stat.Mean(d[len(d)-3:], nil)
	}

	// 상수 시계열이면 std=0, 밴드 폭도 0
	std := math.Max(1, level*0.1)
	if len(y) > 1 {
		std = sampleStd(y)
	}

	bands := make([]band, horizon)
	for i := range bands {
		step := float64(i + 1)
		bands[i] = band{value: level + trend*step*trendWeight, halfWidth: 1.64 * std}
	}

	points, err := buildPoints(history, bands, 82)
	if err != nil {
		return Fail(err)
	}
	return Ok(points)
}

// ============================================================================
// Seasonal Naive
// ============================================================================

// SeasonalNaive repeats the value from twelve months earlier.
type SeasonalNaive struct{}

func (SeasonalNaive) ID() contracts.ModelID       { return contracts.ModelSeasonalNaive }
func (SeasonalNaive) DisplayName() string         { return "Seasonal Naive" }
func (SeasonalNaive) MinDataMonths() int          { return 12 }
func (SeasonalNaive) Fallback() contracts.ModelID { return contracts.ModelEWMA }
func (SeasonalNaive) Description() string {
	return "Seasonal naive baseline using prior year values"
}

func (s SeasonalNaive) Try(history contracts.HistorySeries, horizon int, _ Params) Result {
	y := history.Values()
	if err := requireLength(y, s.MinDataMonths()); err != nil {
		return Fail(err)
	}

	std := sampleStd(y)
	n := len(y)
	bands := make([]band, horizon)
	for i := range bands {
		v := y[n-12+(i%12)]
		bands[i] = band{value: v, halfWidth: 1.64 * std}
	}

	points, err := buildPoints(history, bands, 78)
	if err != nil {
		return Fail(err)
	}
	return Ok(points)
}
