package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

type auditRepo struct{ db DBTX }

const auditColumns = `
	id, product_id, user_id, requested_model, selected_model, horizon_months,
	advisor_enabled, fallback_used, advisor_confidence, selection_reason,
	history_months, records_created, warnings, candidate_metrics,
	data_quality_flags, config_hash, created_at`

// orEmpty keeps JSON encoding as [] instead of null
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (r *auditRepo) Create(ctx context.Context, a *contracts.ForecastRunAudit) error {
	warnings, err := json.Marshal(orEmpty(a.Warnings))
	if err != nil {
		return err
	}
	metrics, err := json.Marshal(orEmpty(a.CandidateMetrics))
	if err != nil {
		return err
	}
	flags, err := json.Marshal(orEmpty(a.DataQualityFlags))
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO forecast_run_audits
			(product_id, user_id, requested_model, selected_model, horizon_months,
			 advisor_enabled, fallback_used, advisor_confidence, selection_reason,
			 history_months, records_created, warnings, candidate_metrics,
			 data_quality_flags, config_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`,
		a.ProductID, a.UserID, modelArg(a.RequestedModel), string(a.SelectedModel), a.HorizonMonths,
		a.AdvisorEnabled, a.FallbackUsed, a.AdvisorConfidence, a.SelectionReason,
		a.HistoryMonths, a.RecordsCreated, warnings, metrics, flags, a.ConfigHash,
	).Scan(&a.ID, &a.CreatedAt)
	return mapError(err, "ForecastRunAudit", a.ProductID)
}

func scanAudit(row scannable) (*contracts.ForecastRunAudit, error) {
	var a contracts.ForecastRunAudit
	var requested *string
	var selected string
	var warnings, metrics, flags []byte
	if err := row.Scan(
		&a.ID, &a.ProductID, &a.UserID, &requested, &selected, &a.HorizonMonths,
		&a.AdvisorEnabled, &a.FallbackUsed, &a.AdvisorConfidence, &a.SelectionReason,
		&a.HistoryMonths, &a.RecordsCreated, &warnings, &metrics, &flags, &a.ConfigHash, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.RequestedModel = modelPtr(requested)
	a.SelectedModel = contracts.ModelID(selected)
	if err := json.Unmarshal(warnings, &a.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if err := json.Unmarshal(metrics, &a.CandidateMetrics); err != nil {
		return nil, fmt.Errorf("decode candidate_metrics: %w", err)
	}
	if err := json.Unmarshal(flags, &a.DataQualityFlags); err != nil {
		return nil, fmt.Errorf("decode data_quality_flags: %w", err)
	}
	return &a, nil
}

func (r *auditRepo) Get(ctx context.Context, id int64) (*contracts.ForecastRunAudit, error) {
	a, err := scanAudit(r.db.QueryRow(ctx, `SELECT `+auditColumns+` FROM forecast_run_audits WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "ForecastRunAudit", id)
	}
	return a, nil
}

func (r *auditRepo) ListByProduct(ctx context.Context, productID int64, limit int) ([]contracts.ForecastRunAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+auditColumns+`
		FROM forecast_run_audits
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	defer rows.Close()

	var out []contracts.ForecastRunAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
