package backtest

import (
	"math"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// hitThreshold |pct error| ≤ 20% → hit
const hitThreshold = 0.2

// accumulator collects paired (predicted, actual) observations.
// 백테스트와 사후 정확도 리포트가 같은 집계를 사용
type accumulator struct {
	absErrors []float64
	sqErrors  []float64
	pctErrors []float64
	biasPct   []float64
	actualSum float64
	hits      int
}

func (a *accumulator) add(predicted, actual float64) {
	err := predicted - actual
	absErr := math.Abs(err)
	a.absErrors = append(a.absErrors, absErr)
	a.sqErrors = append(a.sqErrors, err*err)
	a.actualSum += math.Abs(actual)

	// actual == 0 → 퍼센트 오차 제외
	if actual != 0 {
		pct := absErr / math.Abs(actual)
		a.pctErrors = append(a.pctErrors, pct)
		a.biasPct = append(a.biasPct, err/actual)
		if pct <= hitThreshold {
			a.hits++
		}
	}
}

func (a *accumulator) samples() int {
	return len(a.absErrors)
}

func (a *accumulator) metric(id contracts.ModelID) contracts.BacktestMetric {
	var mape, wape, bias, hitRate float64
	if len(a.pctErrors) > 0 {
		mape = mean(a.pctErrors) * 100
		bias = mean(a.biasPct) * 100
		hitRate = float64(a.hits) / float64(len(a.pctErrors)) * 100
	}
	if a.actualSum > 0 {
		wape = sum(a.absErrors) / a.actualSum * 100
	}
	m := contracts.BacktestMetric{
		ModelID:     id,
		MAPE:        round4(mape),
		WAPE:        round4(wape),
		RMSE:        round4(math.Sqrt(mean(a.sqErrors))),
		MAE:         round4(mean(a.absErrors)),
		Bias:        round4(bias),
		HitRate:     round4(hitRate),
		PeriodCount: a.samples(),
	}
	m.Score = round4(mape + 0.25*wape)
	return m
}

func sum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
