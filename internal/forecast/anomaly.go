package forecast

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

const (
	anomalyMinPoints = 6
	anomalyZ         = 1.5
	anomalyHighZ     = 2.0
)

// DetectAnomalies flags actuals whose z-score reaches 1.5.
// 6개월 미만이면 빈 리포트
func (s *Service) DetectAnomalies(ctx context.Context, productID int64) (*contracts.AnomalyReport, error) {
	history, err := s.store.History().ActualsSeries(ctx, productID)
	if err != nil {
		return nil, err
	}

	report := &contracts.AnomalyReport{ProductID: productID, Anomalies: []contracts.Anomaly{}}
	if history.Len() < anomalyMinPoints {
		return report, nil
	}

	values := history.Values()
	mean, std := stat.PopMeanStdDev(values, nil)
	report.Mean = round2(mean)
	report.Std = round2(std)
	if std == 0 {
		return report, nil
	}

	for i, v := range values {
		z := (v - mean) / std
		if math.Abs(z) < anomalyZ {
			continue
		}
		severity := contracts.SeverityMedium
		if math.Abs(z) > anomalyHighZ {
			severity = contracts.SeverityHigh
		}
		report.Anomalies = append(report.Anomalies, contracts.Anomaly{
			Period:   history[i].Period,
			Value:    v,
			ZScore:   round2(z),
			Severity: severity,
		})
	}
	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
