package forecast

import (
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// QualityFlags inspects a history series
//   - short_history: fewer than 12 months
//   - missing_months: gaps between first and last period
//   - high_volatility: sample std > 1.5 × mean
func QualityFlags(history contracts.HistorySeries) []string {
	flags := []string{}
	if history.Len() < 12 {
		flags = append(flags, contracts.FlagShortHistory)
	}
	if history.HasGaps() {
		flags = append(flags, contracts.FlagMissingMonths)
	}
	if history.Len() >= 2 {
		values := history.Values()
		mean := stat.Mean(values, nil)
		if mean > 0 && stat.StdDev(values, nil) > 1.5*mean {
			flags = append(flags, contracts.FlagHighVolatility)
		}
	}
	return flags
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
