package strategy

import (
	"errors"
	"fmt"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// ErrShortHistory is returned by a strategy attempt when the series is too short.
var ErrShortHistory = errors.New("history too short")

// Strategy is one forecasting algorithm.
// ⭐ SSOT: 전략 목록은 closed set (contracts.SupportedModels)
type Strategy interface {
	ID() contracts.ModelID
	DisplayName() string
	Description() string
	MinDataMonths() int
	// Fallback names the strategy to try when Try fails. Empty for terminal strategies.
	Fallback() contracts.ModelID
	// Try runs the algorithm without any fallback.
	Try(history contracts.HistorySeries, horizon int, params Params) Result
}

// Result is the fallible outcome of one strategy attempt.
type Result struct {
	Points []contracts.ForecastPoint
	Err    error
}

// Ok wraps successful points.
func Ok(points []contracts.ForecastPoint) Result {
	return Result{Points: points}
}

// Fail wraps an attempt error.
func Fail(err error) Result {
	return Result{Err: err}
}

// OK reports whether the attempt produced points.
func (r Result) OK() bool {
	return r.Err == nil
}

// Attempt records one failed step of a fallback chain.
type Attempt struct {
	Model contracts.ModelID
	Err   error
}

// Outcome is the result of running a strategy with its full fallback chain.
type Outcome struct {
	Requested contracts.ModelID
	Executed  contracts.ModelID
	Points    []contracts.ForecastPoint
	Attempts  []Attempt
	Err       error
}

// Degraded reports whether a fallback strategy produced the points.
func (o Outcome) Degraded() bool {
	return o.Err == nil && o.Executed != o.Requested
}

// Info describes a strategy for catalogue listings.
type Info struct {
	ID            contracts.ModelID `json:"id"`
	DisplayName   string            `json:"display_name"`
	Description   string            `json:"description"`
	MinDataMonths int               `json:"min_data_months"`
	Fallback      contracts.ModelID `json:"fallback,omitempty"`
}

// Lookup returns the strategy for id.
func Lookup(id contracts.ModelID) (Strategy, bool) {
	switch id {
	case contracts.ModelMovingAverage:
		return MovingAverage{}, true
	case contracts.ModelEWMA:
		return EWMA{}, true
	case contracts.ModelExpSmoothing:
		return ExpSmoothing{}, true
	case contracts.ModelSeasonalNaive:
		return SeasonalNaive{}, true
	case contracts.ModelARIMA:
		return ARIMA{}, true
	case contracts.ModelProphet:
		return Prophet{}, true
	case contracts.ModelLSTM:
		return LSTM{}, true
	}
	return nil, false
}

// MinDataMonths returns the minimum history for id, or 0 when unknown.
func MinDataMonths(id contracts.ModelID) int {
	s, ok := Lookup(id)
	if !ok {
		return 0
	}
	return s.MinDataMonths()
}

// Registry runs strategies with their configured parameters.
type Registry struct {
	params map[contracts.ModelID]Params
}

// NewRegistry creates a registry. params may be nil.
func NewRegistry(params map[contracts.ModelID]Params) *Registry {
	if params == nil {
		params = map[contracts.ModelID]Params{}
	}
	return &Registry{params: params}
}

// Params returns the configured parameters for id.
func (r *Registry) Params(id contracts.ModelID) Params {
	return r.params[id]
}

// Catalogue lists every supported strategy.
func (r *Registry) Catalogue() []Info {
	infos := make([]Info, 0, len(contracts.SupportedModels))
	for _, id := range contracts.SupportedModels {
		s, _ := Lookup(id)
		infos = append(infos, Info{
			ID:            s.ID(),
			DisplayName:   s.DisplayName(),
			Description:   s.Description(),
			MinDataMonths: s.MinDataMonths(),
			Fallback:      s.Fallback(),
		})
	}
	return infos
}

// Forecast runs id and walks its fallback chain until a strategy succeeds.
// Moving average terminates every chain and succeeds for any non-empty history.
func (r *Registry) Forecast(history contracts.HistorySeries, horizon int, id contracts.ModelID) Outcome {
	out := Outcome{Requested: id}

	current := id
	for step := 0; step <= len(contracts.SupportedModels); step++ {
		s, ok := Lookup(current)
		if !ok {
			out.Err = fmt.Errorf("unknown model %q", current)
			return out
		}

		res := r.try(s, history, horizon)
		if res.OK() {
			out.Executed = current
			out.Points = res.Points
			return out
		}

		out.Attempts = append(out.Attempts, Attempt{Model: current, Err: res.Err})
		next := s.Fallback()
		if next == "" {
			out.Err = fmt.Errorf("terminal strategy %s failed: %w", current, res.Err)
			return out
		}
		current = next
	}

	out.Err = fmt.Errorf("fallback chain for %s did not terminate", id)
	return out
}

// try converts panics from numeric code into attempt errors.
func (r *Registry) try(s Strategy, history contracts.HistorySeries, horizon int) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail(fmt.Errorf("%s panicked: %v", s.ID(), p))
		}
	}()
	return s.Try(history, horizon, r.params[s.ID()])
}
