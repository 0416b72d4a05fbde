package strategy

import (
	"math"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

const seasonLength = 12

// ExpSmoothing is Holt-Winters exponential smoothing: additive (optionally damped)
// trend, plus additive monthly seasonality once two full years are available.
type ExpSmoothing struct{}

func (ExpSmoothing) ID() contracts.ModelID       { return contracts.ModelExpSmoothing }
func (ExpSmoothing) DisplayName() string         { return "Exponential Smoothing (Holt-Winters)" }
func (ExpSmoothing) MinDataMonths() int          { return 12 }
func (ExpSmoothing) Fallback() contracts.ModelID { return contracts.ModelMovingAverage }
func (ExpSmoothing) Description() string {
	return "Holt-Winters triple exponential smoothing (trend + seasonality)"
}

// Try params: damped_trend (default true)
func (ExpSmoothing) Try(history contracts.HistorySeries, horizon int, params Params) Result {
	y := history.Values()
	if err := requireLength(y, 4); err != nil {
		return Fail(err)
	}

	seasonal := len(y) >= 2*seasonLength
	damped := params.Bool("damped_trend", true)

	fit := fitHoltWinters(y, seasonal, damped)
	if fit == nil {
		return Fail(errNonFinite)
	}

	std := populationStd(fit.residuals)
	forecast := fit.forecast(horizon)
	bands := make([]band, horizon)
	for i, v := range forecast {
		bands[i] = band{value: v, halfWidth: 1.96 * std}
	}

	points, err := buildPoints(history, bands, 85)
	if err != nil {
		return Fail(err)
	}
	return Ok(points)
}

// holtWinters is a fitted smoothing state.
type holtWinters struct {
	alpha, beta, gamma, phi float64
	level, trend            float64
	season                  []float64 // last seasonLength seasonal terms, oldest first
	seasonal                bool
	residuals               []float64
	sse                     float64
}

// fitHoltWinters grid-searches smoothing parameters by in-sample SSE.
// 그리드는 고정 → 동일 입력이면 동일 결과 (백테스트 재현성)
func fitHoltWinters(y []float64, seasonal, damped bool) *holtWinters {
	alphas := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	betas := []float64{0.01, 0.05, 0.1, 0.2, 0.3}
	gammas := []float64{0}
	if seasonal {
		gammas = []float64{0.05, 0.1, 0.2, 0.3, 0.5}
	}
	phis := []float64{1}
	if damped {
		phis = []float64{0.8, 0.9, 0.95, 0.98}
	}

	var best *holtWinters
	for _, a := range alphas {
		for _, b := range betas {
			for _, g := range gammas {
				for _, p := range phis {
					hw := runHoltWinters(y, a, b, g, p, seasonal)
					if hw == nil {
						continue
					}
					if best == nil || hw.sse < best.sse {
						best = hw
					}
				}
			}
		}
	}
	return best
}

func runHoltWinters(y []float64, alpha, beta, gamma, phi float64, seasonal bool) *holtWinters {
	hw := &holtWinters{alpha: alpha, beta: beta, gamma: gamma, phi: phi, seasonal: seasonal}

	start := 1
	if seasonal {
		var first, second float64
		for i := 0; i < seasonLength; i++ {
			first += y[i]
			second += y[i+seasonLength]
		}
		first /= seasonLength
		second /= seasonLength
		hw.level = first
		hw.trend = (second - first) / seasonLength
		hw.season = make([]float64, seasonLength)
		for i := 0; i < seasonLength; i++ {
			hw.season[i] = y[i] - first
		}
		start = seasonLength
	} else {
		hw.level = y[0]
		hw.trend = y[1] - y[0]
	}

	hw.residuals = make([]float64, 0, len(y)-start)
	for t := start; t < len(y); t++ {
		s := 0.0
		if seasonal {
			s = hw.season[0]
		}
		predicted := hw.level + phi*hw.trend + s
		err := y[t] - predicted
		hw.residuals = append(hw.residuals, err)
		hw.sse += err * err

		prevLevel := hw.level
		hw.level = alpha*(y[t]-s) + (1-alpha)*(prevLevel+phi*hw.trend)
		hw.trend = beta*(hw.level-prevLevel) + (1-beta)*phi*hw.trend
		if seasonal {
			next := gamma*(y[t]-hw.level) + (1-gamma)*s
			hw.season = append(hw.season[1:], next)
		}
	}

	if math.IsNaN(hw.sse) || math.IsInf(hw.sse, 0) {
		return nil
	}
	return hw
}

func (hw *holtWinters) forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	damp := 0.0
	pow := 1.0
	for h := 1; h <= horizon; h++ {
		pow *= hw.phi
		damp += pow
		v := hw.level + damp*hw.trend
		if hw.seasonal {
			v += hw.season[(h-1)%seasonLength]
		}
		out[h-1] = v
	}
	return out
}
