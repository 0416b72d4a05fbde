package strategy

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// Prophet is a decomposable trend + yearly seasonality regression in the style of
// Facebook Prophet: piecewise-linear trend with regularised changepoints and
// Fourier terms for the yearly cycle.
type Prophet struct{}

func (Prophet) ID() contracts.ModelID       { return contracts.ModelProphet }
func (Prophet) DisplayName() string         { return "Prophet" }
func (Prophet) MinDataMonths() int          { return 24 }
func (Prophet) Fallback() contracts.ModelID { return contracts.ModelExpSmoothing }
func (Prophet) Description() string {
	return "Piecewise-linear trend with yearly Fourier seasonality"
}

const (
	prophetFourierOrder = 3
	prophetMaxChanges   = 25
)

// Try params:
//   - changepoint_prior_scale (0.001..0.5, default 0.05)
//   - seasonality_mode (additive | multiplicative, default multiplicative)
func (Prophet) Try(history contracts.HistorySeries, horizon int, params Params) Result {
	y := history.Values()
	if err := requireLength(y, 12); err != nil {
		return Fail(err)
	}

	cps := clampFloat(params.Float("changepoint_prior_scale", 0.05), 0.001, 0.5)
	mode := params.String("seasonality_mode", "multiplicative")
	if mode != "additive" && mode != "multiplicative" {
		mode = "multiplicative"
	}

	n := len(y)
	scale := 0.0
	for _, v := range y {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 {
		scale = 1
	}
	ys := make([]float64, n)
	for i, v := range y {
		ys[i] = v / scale
	}

	// 시간축 0~1 정규화, changepoint는 앞쪽 80% 구간에 균등 배치
	span := float64(n - 1)
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) / span
	}
	changes := min(prophetMaxChanges, int(0.8*float64(n))-1)
	cpts := make([]float64, 0, changes)
	for k := 1; k <= changes; k++ {
		cpts = append(cpts, ts[int(math.Round(float64(k)*0.8*span/float64(changes+1)))])
	}

	fit, err := fitProphet(history, ys, ts, cpts, cps, mode)
	if err != nil {
		return Fail(err)
	}

	residStd := sampleStd(fit.residuals) * scale
	future := contracts.FuturePeriods(history.LastPeriod(), horizon)
	bands := make([]band, horizon)
	for h := range bands {
		t := float64(n-1+h+1) / span
		bands[h] = band{
			value:     fit.predict(t, future[h]) * scale,
			halfWidth: 1.96 * residStd * math.Sqrt(1+float64(h)/12),
		}
	}

	points, err := buildPoints(history, bands, 95)
	if err != nil {
		return Fail(err)
	}
	return Ok(points)
}

type prophetFit struct {
	mode      string
	cpts      []float64
	trend     []float64 // k, m, deltas...
	season    []float64 // fourier coefs
	residuals []float64
}

func fitProphet(history contracts.HistorySeries, ys, ts, cpts []float64, cps float64, mode string) (*prophetFit, error) {
	n := len(ys)
	fit := &prophetFit{mode: mode, cpts: cpts}

	// 1) trend: [t, 1, (t - c_j)+ ...], changepoint에만 ridge penalty
	trendCols := 2 + len(cpts)
	X := mat.NewDense(n, trendCols, nil)
	for i, t := range ts {
		X.Set(i, 0, t)
		X.Set(i, 1, 1)
		for j, c := range cpts {
			X.Set(i, 2+j, math.Max(0, t-c))
		}
	}
	penalty := make([]float64, trendCols)
	for j := 2; j < trendCols; j++ {
		penalty[j] = 1 / (cps * 100)
	}
	trend, err := ridgeSolve(X, ys, penalty)
	if err != nil {
		return nil, err
	}
	fit.trend = trend

	// 2) seasonality on the detrended (or trend-relative) series
	target := make([]float64, n)
	for i, t := range ts {
		tr := fit.trendAt(t)
		if mode == "multiplicative" {
			if math.Abs(tr) < 1e-9 {
				return nil, errNonFinite
			}
			target[i] = ys[i]/tr - 1
		} else {
			target[i] = ys[i] - tr
		}
	}
	F := mat.NewDense(n, 2*prophetFourierOrder, nil)
	for i, p := range history {
		row := fourierRow(p.Period.Month())
		for j, v := range row {
			F.Set(i, j, v)
		}
	}
	seasonPenalty := make([]float64, 2*prophetFourierOrder)
	for j := range seasonPenalty {
		seasonPenalty[j] = 1e-8
	}
	season, err := ridgeSolve(F, target, seasonPenalty)
	if err != nil {
		return nil, err
	}
	fit.season = season

	fit.residuals = make([]float64, n)
	for i, p := range history {
		fit.residuals[i] = ys[i] - fit.predict(ts[i], p.Period)
	}
	if math.IsNaN(stat.Mean(fit.residuals, nil)) {
		return nil, errNonFinite
	}
	return fit, nil
}

func (f *prophetFit) trendAt(t float64) float64 {
	v := f.trend[0]*t + f.trend[1]
	for j, c := range f.cpts {
		v += f.trend[2+j] * math.Max(0, t-c)
	}
	return v
}

func (f *prophetFit) predict(t float64, period time.Time) float64 {
	row := fourierRow(period.Month())
	s := 0.0
	for j, v := range row {
		s += f.season[j] * v
	}
	tr := f.trendAt(t)
	if f.mode == "multiplicative" {
		return tr * (1 + s)
	}
	return tr + s
}

func fourierRow(m time.Month) []float64 {
	row := make([]float64, 2*prophetFourierOrder)
	x := 2 * math.Pi * float64(int(m)-1) / 12
	for k := 1; k <= prophetFourierOrder; k++ {
		row[2*(k-1)] = math.Sin(float64(k) * x)
		row[2*(k-1)+1] = math.Cos(float64(k) * x)
	}
	return row
}

// ridgeSolve solves (XᵀX + diag(penalty))β = Xᵀy.
func ridgeSolve(X *mat.Dense, y []float64, penalty []float64) ([]float64, error) {
	_, cols := X.Dims()
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j := 0; j < cols; j++ {
		xtx.Set(j, j, xtx.At(j, j)+penalty[j])
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), mat.NewVecDense(len(y), y))

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, err
	}
	out := make([]float64, cols)
	for j := range out {
		out[j] = beta.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, errNonFinite
		}
	}
	return out, nil
}
