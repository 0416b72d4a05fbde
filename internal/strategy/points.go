package strategy

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

var errNonFinite = errors.New("non-finite forecast value")

// band is a raw prediction with its interval half-width.
type band struct {
	value     float64
	halfWidth float64
}

// buildPoints floors, rounds and dates the raw predictions.
// lower/upper는 raw 값 기준, 모두 0 이상으로 보정
func buildPoints(history contracts.HistorySeries, bands []band, confidence float64) ([]contracts.ForecastPoint, error) {
	periods := contracts.FuturePeriods(history.LastPeriod(), len(bands))
	points := make([]contracts.ForecastPoint, len(bands))
	for i, b := range bands {
		if math.IsNaN(b.value) || math.IsInf(b.value, 0) || math.IsNaN(b.halfWidth) || math.IsInf(b.halfWidth, 0) {
			return nil, fmt.Errorf("step %d: %w", i+1, errNonFinite)
		}
		points[i] = contracts.ForecastPoint{
			Period:       periods[i],
			PredictedQty: round2(math.Max(0, b.value)),
			LowerBound:   contracts.Float(round2(math.Max(0, b.value-b.halfWidth))),
			UpperBound:   contracts.Float(round2(math.Max(0, b.value+b.halfWidth))),
			Confidence:   contracts.Float(confidence),
		}
	}
	return points, nil
}

func requireLength(values []float64, n int) error {
	if len(values) < n {
		return fmt.Errorf("%w: need %d points, got %d", ErrShortHistory, n, len(values))
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// sampleStd returns the n-1 standard deviation, or NaN for fewer than 2 values.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// populationStd returns the n standard deviation.
func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(values, nil)
	return math.Sqrt(variance)
}

func diff(values []float64, order int) []float64 {
	out := append([]float64(nil), values...)
	for k := 0; k < order; k++ {
		if len(out) < 2 {
			return nil
		}
		next := make([]float64, len(out)-1)
		for i := 1; i < len(out); i++ {
			next[i-1] = out[i] - out[i-1]
		}
		out = next
	}
	return out
}
