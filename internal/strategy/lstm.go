package strategy

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// LSTM encodes a lookback window with a single recurrent LSTM cell and maps the
// final hidden state to the next value with a ridge-regressed linear readout.
// Cell weights come from a seeded generator, so identical input gives identical output.
type LSTM struct{}

func (LSTM) ID() contracts.ModelID       { return contracts.ModelLSTM }
func (LSTM) DisplayName() string         { return "LSTM" }
func (LSTM) MinDataMonths() int          { return 24 }
func (LSTM) Fallback() contracts.ModelID { return contracts.ModelExpSmoothing }
func (LSTM) Description() string {
	return "Recurrent LSTM encoder with linear readout, recursive multi-step forecast"
}

// Try params: lookback (3..12, default 12), hidden_units (2..16, default 8),
// ridge (default 0.1), seed (default 42)
func (l LSTM) Try(history contracts.HistorySeries, horizon int, params Params) Result {
	y := history.Values()
	if err := requireLength(y, l.MinDataMonths()); err != nil {
		return Fail(err)
	}

	lookback := clampInt(params.Int("lookback", 12), 3, 12)
	hidden := clampInt(params.Int("hidden_units", 8), 2, 16)
	ridge := clampFloat(params.Float("ridge", 0.1), 1e-6, 100)
	seed := int64(params.Int("seed", 42))

	mu := stat.Mean(y, nil)
	sigma := sampleStd(y)
	if !(sigma > 0) {
		sigma = 1
	}
	x := make([]float64, len(y))
	for i, v := range y {
		x[i] = (v - mu) / sigma
	}

	cell := newLSTMCell(hidden, seed)

	// 학습 샘플: window → 다음 값
	rows := len(x) - lookback
	F := mat.NewDense(rows, hidden+1, nil)
	targets := make([]float64, rows)
	for r := 0; r < rows; r++ {
		h := cell.encode(x[r : r+lookback])
		for j, v := range h {
			F.Set(r, j, v)
		}
		F.Set(r, hidden, 1)
		targets[r] = x[r+lookback]
	}

	penalty := make([]float64, hidden+1)
	for j := 0; j < hidden; j++ {
		penalty[j] = ridge
	}
	w, err := ridgeSolve(F, targets, penalty)
	if err != nil {
		return Fail(err)
	}

	readout := func(h []float64) float64 {
		v := w[hidden]
		for j, hv := range h {
			v += w[j] * hv
		}
		return v
	}

	resid := make([]float64, rows)
	for r := 0; r < rows; r++ {
		resid[r] = (targets[r] - readout(F.RawRowView(r)[:hidden])) * sigma
	}
	residStd := populationStd(resid)

	window := append([]float64(nil), x[len(x)-lookback:]...)
	bands := make([]band, horizon)
	for h := range bands {
		next := readout(cell.encode(window))
		window = append(window[1:], next)
		bands[h] = band{
			value:     next*sigma + mu,
			halfWidth: 1.96 * residStd * math.Sqrt(float64(h+1)),
		}
	}

	points, err := buildPoints(history, bands, 90)
	if err != nil {
		return Fail(err)
	}
	return Ok(points)
}

// lstmCell holds gate weights over [x, h_prev] plus bias.
type lstmCell struct {
	hidden         int
	wi, wf, wo, wc *mat.Dense // hidden × (hidden+2)
}

func newLSTMCell(hidden int, seed int64) *lstmCell {
	rng := rand.New(rand.NewSource(seed))
	scale := 1 / math.Sqrt(float64(hidden))
	gate := func(bias float64) *mat.Dense {
		m := mat.NewDense(hidden, hidden+2, nil)
		for i := 0; i < hidden; i++ {
			for j := 0; j < hidden+1; j++ {
				m.Set(i, j, (rng.Float64()*2-1)*scale)
			}
			m.Set(i, hidden+1, bias)
		}
		return m
	}
	return &lstmCell{
		hidden: hidden,
		wi:     gate(0),
		wf:     gate(1), // forget gate bias 1
		wo:     gate(0),
		wc:     gate(0),
	}
}

// encode runs the cell over the window and returns the final hidden state.
func (c *lstmCell) encode(window []float64) []float64 {
	h := make([]float64, c.hidden)
	state := make([]float64, c.hidden)
	in := mat.NewVecDense(c.hidden+2, nil)

	for _, xv := range window {
		in.SetVec(0, xv)
		for j := 0; j < c.hidden; j++ {
			in.SetVec(1+j, h[j])
		}
		in.SetVec(c.hidden+1, 1)

		var gi, gf, gOut, gc mat.VecDense
		gi.MulVec(c.wi, in)
		gf.MulVec(c.wf, in)
		gOut.MulVec(c.wo, in)
		gc.MulVec(c.wc, in)

		for j := 0; j < c.hidden; j++ {
			i := sigmoid(gi.AtVec(j))
			f := sigmoid(gf.AtVec(j))
			o := sigmoid(gOut.AtVec(j))
			g := math.Tanh(gc.AtVec(j))
			state[j] = f*state[j] + i*g
			h[j] = o * math.Tanh(state[j])
		}
	}
	return h
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
