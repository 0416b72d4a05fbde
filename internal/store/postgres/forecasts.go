package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

type forecastRepo struct{ db DBTX }

// Replace deletes any row for (product, model, period) then inserts f
func (r *forecastRepo) Replace(ctx context.Context, f *contracts.Forecast) error {
	f.Period = contracts.MonthStart(f.Period)

	if _, err := r.db.Exec(ctx, `
		DELETE FROM forecasts
		WHERE product_id = $1 AND model_type = $2 AND period = $3`,
		f.ProductID, string(f.ModelType), f.Period,
	); err != nil {
		return fmt.Errorf("delete forecast: %w", err)
	}

	var features []byte
	if len(f.FeaturesUsed) > 0 {
		features = f.FeaturesUsed
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO forecasts
			(product_id, model_type, period, predicted_qty, lower_bound, upper_bound,
			 confidence, mape, model_version, features_used, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		f.ProductID, string(f.ModelType), f.Period, f.PredictedQty, f.LowerBound, f.UpperBound,
		f.Confidence, f.MAPE, f.ModelVersion, features, f.CreatedBy,
	).Scan(&f.ID, &f.CreatedAt)
	return mapError(err, "Forecast", f.ProductID)
}

func (r *forecastRepo) List(ctx context.Context, filter contracts.ForecastFilter) ([]contracts.Forecast, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProductID != nil {
		add("product_id = $%d", *filter.ProductID)
	}
	if filter.ModelType != nil {
		add("model_type = $%d", string(*filter.ModelType))
	}
	if filter.From != nil {
		add("period >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("period <= $%d", *filter.To)
	}

	query := `
		SELECT id, product_id, model_type, period, predicted_qty, lower_bound, upper_bound,
			   confidence, mape, model_version, features_used, created_by, created_at
		FROM forecasts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	defer rows.Close()

	var out []contracts.Forecast
	for rows.Next() {
		var f contracts.Forecast
		var model string
		var features []byte
		if err := rows.Scan(
			&f.ID, &f.ProductID, &model, &f.Period, &f.PredictedQty, &f.LowerBound, &f.UpperBound,
			&f.Confidence, &f.MAPE, &f.ModelVersion, &features, &f.CreatedBy, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		f.ModelType = contracts.ModelID(model)
		f.FeaturesUsed = features
		out = append(out, f)
	}
	return out, rows.Err()
}
