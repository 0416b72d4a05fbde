package strategy

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

var errUnderdetermined = errors.New("not enough observations for model order")

// ARIMA fits an ARIMA(p,d,q) model with the Hannan-Rissanen two-stage regression.
type ARIMA struct{}

func (ARIMA) ID() contracts.ModelID       { return contracts.ModelARIMA }
func (ARIMA) DisplayName() string         { return "ARIMA" }
func (ARIMA) MinDataMonths() int          { return 12 }
func (ARIMA) Fallback() contracts.ModelID { return contracts.ModelExpSmoothing }
func (ARIMA) Description() string {
	return "ARIMA(p,d,q) with guarded fallback to exponential smoothing"
}

// Try params: p (0..3), d (0..2), q (0..3), default (1,1,1)
func (a ARIMA) Try(history contracts.HistorySeries, horizon int, params Params) Result {
	y := history.Values()
	if err := requireLength(y, a.MinDataMonths()); err != nil {
		return Fail(err)
	}

	p := clampInt(params.Int("p", 1), 0, 3)
	d := clampInt(params.Int("d", 1), 0, 2)
	q := clampInt(params.Int("q", 1), 0, 3)

	model, err := fitARIMA(y, p, d, q)
	if err != nil {
		return Fail(fmt.Errorf("arima(%d,%d,%d): %w", p, d, q, err))
	}

	values := model.forecast(y, horizon)
	psi := model.psiWeights(horizon)
	bands := make([]band, horizon)
	cum := 0.0
	for h := 0; h < horizon; h++ {
		cum += psi[h] * psi[h]
		bands[h] = band{value: values[h], halfWidth: 1.96 * math.Sqrt(model.sigma2*cum)}
	}

	points, err := buildPoints(history, bands, 88)
	if err != nil {
		return Fail(err)
	}
	return Ok(points)
}

type arimaModel struct {
	p, d, q   int
	intercept float64
	phi       []float64
	theta     []float64
	sigma2    float64
	z         []float64 // differenced series
	resid     []float64 // residuals aligned with z
}

func fitARIMA(y []float64, p, d, q int) (*arimaModel, error) {
	z := diff(y, d)
	m := &arimaModel{p: p, d: d, q: q, z: z}
	withIntercept := d == 0

	// Stage 1: long AR → 잔차 추정 (q > 0 일 때만)
	resid := make([]float64, len(z))
	start := p
	if q > 0 {
		long := max(p, q) + 3
		coef, err := leastSquaresLagged(z, long, nil, 0, true)
		if err != nil {
			return nil, fmt.Errorf("long AR: %w", err)
		}
		for t := long; t < len(z); t++ {
			resid[t] = z[t] - predictLagged(z, nil, t, coef, long, 0, true)
		}
		start = long + q
	}

	// Stage 2: z_t ~ z_{t-1..t-p} + e_{t-1..t-q}
	coef, err := leastSquaresLagged(z, p, resid, q, withIntercept, start)
	if err != nil {
		return nil, err
	}
	off := 0
	if withIntercept {
		m.intercept = coef[0]
		off = 1
	}
	m.phi = coef[off : off+p]
	m.theta = coef[off+p:]

	var sse float64
	var count int
	m.resid = make([]float64, len(z))
	for t := start; t < len(z); t++ {
		e := z[t] - m.predictAt(z, m.resid, t)
		m.resid[t] = e
		sse += e * e
		count++
	}
	dof := count - len(coef)
	if dof < 1 {
		return nil, errUnderdetermined
	}
	m.sigma2 = sse / float64(dof)
	if math.IsNaN(m.sigma2) || math.IsInf(m.sigma2, 0) {
		return nil, errNonFinite
	}
	return m, nil
}

// leastSquaresLagged regresses z_t on p lags of z and q lags of e.
// begin overrides the first usable row when given.
func leastSquaresLagged(z []float64, p int, e []float64, q int, intercept bool, begin ...int) ([]float64, error) {
	first := max(p, q)
	if len(begin) > 0 && begin[0] > first {
		first = begin[0]
	}
	cols := p + q
	if intercept {
		cols++
	}
	rows := len(z) - first
	if cols == 0 {
		return []float64{}, nil
	}
	if rows < cols+1 {
		return nil, errUnderdetermined
	}

	X := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := first + r
		c := 0
		if intercept {
			X.Set(r, c, 1)
			c++
		}
		for i := 1; i <= p; i++ {
			X.Set(r, c, z[t-i])
			c++
		}
		for j := 1; j <= q; j++ {
			X.Set(r, c, e[t-j])
			c++
		}
		b.SetVec(r, z[t])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(X, b); err != nil {
		return nil, fmt.Errorf("least squares: %w", err)
	}
	out := make([]float64, cols)
	for i := range out {
		out[i] = beta.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, errNonFinite
		}
	}
	return out, nil
}

func predictLagged(z, e []float64, t int, coef []float64, p, q int, intercept bool) float64 {
	v := 0.0
	c := 0
	if intercept {
		v += coef[0]
		c++
	}
	for i := 1; i <= p; i++ {
		v += coef[c] * z[t-i]
		c++
	}
	for j := 1; j <= q; j++ {
		v += coef[c] * e[t-j]
		c++
	}
	return v
}

func (m *arimaModel) predictAt(z, e []float64, t int) float64 {
	v := m.intercept
	for i, phi := range m.phi {
		v += phi * z[t-i-1]
	}
	for j, theta := range m.theta {
		v += theta * e[t-j-1]
	}
	return v
}

// forecast extends the differenced series and integrates back to levels.
func (m *arimaModel) forecast(y []float64, horizon int) []float64 {
	z := append([]float64(nil), m.z...)
	e := append([]float64(nil), m.resid...)
	for h := 0; h < horizon; h++ {
		t := len(z)
		z = append(z, 0)
		e = append(e, 0)
		z[t] = m.predictAt(z, e, t)
	}
	future := z[len(m.z):]

	// 차분 역변환: 각 차수의 마지막 값을 기준으로 누적
	levels := [][]float64{y}
	for k := 1; k < m.d; k++ {
		levels = append(levels, diff(y, k))
	}
	out := future
	for k := m.d - 1; k >= 0; k-- {
		base := levels[k]
		last := base[len(base)-1]
		integrated := make([]float64, len(out))
		for i, v := range out {
			last += v
			integrated[i] = last
		}
		out = integrated
	}
	return out
}

// psiWeights returns the MA(∞) weights of the integrated process.
func (m *arimaModel) psiWeights(horizon int) []float64 {
	// AR 다항식에 (1-B)^d 를 곱함
	ar := append([]float64(nil), m.phi...)
	for k := 0; k < m.d; k++ {
		next := make([]float64, len(ar)+1)
		for i := range next {
			var cur, prev float64
			if i < len(ar) {
				cur = ar[i]
			}
			if i > 0 {
				prev = ar[i-1]
			} else {
				prev = -1
			}
			next[i] = cur - prev
		}
		ar = next
	}

	psi := make([]float64, horizon)
	for j := 0; j < horizon; j++ {
		if j == 0 {
			psi[0] = 1
			continue
		}
		v := 0.0
		if j-1 < len(m.theta) {
			v = m.theta[j-1]
		}
		for i := 1; i <= len(ar) && i <= j; i++ {
			v += ar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}
