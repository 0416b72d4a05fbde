package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

type planRepo struct{ db DBTX }

const planColumns = `
	id, product_id, period, region, channel, forecast_qty, consensus_qty, actual_qty,
	status, version, notes, created_by, created_at, updated_at`

func scanPlan(row scannable) (*contracts.DemandPlan, error) {
	var p contracts.DemandPlan
	var consensus, actual decimal.NullDecimal
	if err := row.Scan(
		&p.ID, &p.ProductID, &p.Period, &p.Region, &p.Channel, &p.ForecastQty, &consensus, &actual,
		&p.Status, &p.Version, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if consensus.Valid {
		p.ConsensusQty = &consensus.Decimal
	}
	if actual.Valid {
		p.ActualQty = &actual.Decimal
	}
	return &p, nil
}

// FindByProductPeriod returns the oldest plan row for the month, nil if none
func (r *planRepo) FindByProductPeriod(ctx context.Context, productID int64, period time.Time) (*contracts.DemandPlan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM demand_plans
		WHERE product_id = $1 AND period = $2
		ORDER BY id
		LIMIT 1`, productID, contracts.MonthStart(period)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find demand plan: %w", err)
	}
	return p, nil
}

func (r *planRepo) Create(ctx context.Context, p *contracts.DemandPlan) error {
	p.Period = contracts.MonthStart(p.Period)
	if p.Version == 0 {
		p.Version = 1
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO demand_plans
			(product_id, period, region, channel, forecast_qty, consensus_qty, actual_qty,
			 status, version, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		p.ProductID, p.Period, p.Region, p.Channel, p.ForecastQty,
		nullDecimal(p.ConsensusQty), nullDecimal(p.ActualQty),
		p.Status, p.Version, p.Notes, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err, "DemandPlan", p.ProductID)
}

func (r *planRepo) Update(ctx context.Context, p *contracts.DemandPlan) error {
	err := r.db.QueryRow(ctx, `
		UPDATE demand_plans SET
			forecast_qty = $2, consensus_qty = $3, actual_qty = $4,
			status = $5, version = $6, notes = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.ForecastQty, nullDecimal(p.ConsensusQty), nullDecimal(p.ActualQty),
		p.Status, p.Version, p.Notes,
	).Scan(&p.UpdatedAt)
	return mapError(err, "DemandPlan", p.ID)
}

func (r *planRepo) ListWithActuals(ctx context.Context, productID *int64) ([]contracts.DemandPlan, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+planColumns+`
		FROM demand_plans
		WHERE actual_qty IS NOT NULL AND ($1::BIGINT IS NULL OR product_id = $1)
		ORDER BY product_id, period, id`, productID)
	if err != nil {
		return nil, fmt.Errorf("query demand plans: %w", err)
	}
	defer rows.Close()

	var out []contracts.DemandPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan demand plan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
