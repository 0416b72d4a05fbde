package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

type historySource struct{ db DBTX }

// ActualsSeries sums demand plan actuals per month.
func (h *historySource) ActualsSeries(ctx context.Context, productID int64) (contracts.HistorySeries, error) {
	query := `
		SELECT date_trunc('month', period)::date AS month, SUM(actual_qty)
		FROM demand_plans
		WHERE product_id = $1 AND actual_qty IS NOT NULL
		GROUP BY month
		ORDER BY month`

	rows, err := h.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query actuals: %w", err)
	}
	defer rows.Close()

	var points []contracts.HistoryPoint
	for rows.Next() {
		var period time.Time
		var qty decimal.Decimal
		if err := rows.Scan(&period, &qty); err != nil {
			return nil, fmt.Errorf("scan actual: %w", err)
		}
		points = append(points, contracts.HistoryPoint{Period: period, ActualQty: qty})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contracts.NormalizeSeries(points), nil
}
