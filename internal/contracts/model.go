package contracts

import "fmt"

// ModelID identifies one forecasting strategy.
// ⭐ SSOT: 지원 모델 목록은 여기서만 정의
type ModelID string

const (
	ModelMovingAverage ModelID = "moving_average"
	ModelEWMA          ModelID = "ewma"
	ModelExpSmoothing  ModelID = "exp_smoothing"
	ModelSeasonalNaive ModelID = "seasonal_naive"
	ModelARIMA         ModelID = "arima"
	ModelProphet       ModelID = "prophet"
	ModelLSTM          ModelID = "lstm"
)

// SupportedModels is the closed set of model ids, in catalogue order.
var SupportedModels = []ModelID{
	ModelMovingAverage,
	ModelEWMA,
	ModelExpSmoothing,
	ModelSeasonalNaive,
	ModelARIMA,
	ModelProphet,
	ModelLSTM,
}

// Valid reports whether id belongs to the supported set.
func (id ModelID) Valid() bool {
	for _, m := range SupportedModels {
		if m == id {
			return true
		}
	}
	return false
}

func (id ModelID) String() string {
	return string(id)
}

// ParseModelID validates a raw model id.
func ParseModelID(raw string) (ModelID, error) {
	id := ModelID(raw)
	if !id.Valid() {
		return "", &BusinessRuleError{
			Rule:    "supported_model",
			Message: fmt.Sprintf("unsupported model %q", raw),
		}
	}
	return id, nil
}

// BestModelForHistory picks a model from history length alone.
// 백테스트 결과가 없을 때 사용하는 휴리스틱
func BestModelForHistory(historyMonths int) ModelID {
	switch {
	case historyMonths >= 24:
		return ModelProphet
	case historyMonths >= 12:
		return ModelExpSmoothing
	case historyMonths >= 6:
		return ModelEWMA
	default:
		return ModelMovingAverage
	}
}
