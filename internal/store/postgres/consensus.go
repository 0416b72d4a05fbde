package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

type consensusRepo struct{ db DBTX }

const consensusColumns = `
	id, forecast_run_audit_id, product_id, period, baseline_qty, sales_override_qty,
	marketing_uplift_qty, finance_adjustment_qty, constraint_cap_qty, pre_consensus_qty,
	final_consensus_qty, status, version, notes, approved_by, approved_at,
	created_by, created_at, updated_at`

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func scanConsensus(row scannable) (*contracts.ConsensusRecord, error) {
	var c contracts.ConsensusRecord
	var capQty decimal.NullDecimal
	var status string
	if err := row.Scan(
		&c.ID, &c.RunAuditRef, &c.ProductID, &c.Period, &c.BaselineQty, &c.SalesOverrideQty,
		&c.MarketingUpliftQty, &c.FinanceAdjustmentQty, &capQty, &c.PreConsensusQty,
		&c.FinalConsensusQty, &status, &c.Version, &c.Notes, &c.ApprovedBy, &c.ApprovedAt,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if capQty.Valid {
		c.ConstraintCapQty = &capQty.Decimal
	}
	c.Status = contracts.ConsensusStatus(status)
	return &c, nil
}

func (r *consensusRepo) Create(ctx context.Context, c *contracts.ConsensusRecord) error {
	c.Period = contracts.MonthStart(c.Period)
	err := r.db.QueryRow(ctx, `
		INSERT INTO forecast_consensus
			(forecast_run_audit_id, product_id, period, baseline_qty, sales_override_qty,
			 marketing_uplift_qty, finance_adjustment_qty, constraint_cap_qty, pre_consensus_qty,
			 final_consensus_qty, status, version, notes, approved_by, approved_at,
			 created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`,
		c.RunAuditRef, c.ProductID, c.Period, c.BaselineQty, c.SalesOverrideQty,
		c.MarketingUpliftQty, c.FinanceAdjustmentQty, nullDecimal(c.ConstraintCapQty), c.PreConsensusQty,
		c.FinalConsensusQty, string(c.Status), c.Version, c.Notes, c.ApprovedBy, c.ApprovedAt,
		c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	return mapError(err, "ConsensusRecord", c.ProductID)
}

func (r *consensusRepo) Get(ctx context.Context, id int64) (*contracts.ConsensusRecord, error) {
	c, err := scanConsensus(r.db.QueryRow(ctx, `SELECT `+consensusColumns+` FROM forecast_consensus WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "ConsensusRecord", id)
	}
	return c, nil
}

// MaxVersion: run ref가 있으면 run 기준, 없으면 product 기준
func (r *consensusRepo) MaxVersion(ctx context.Context, runAuditRef *int64, productID int64, period time.Time) (int, error) {
	var version int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM forecast_consensus
		WHERE period = $1
		  AND (($2::BIGINT IS NOT NULL AND forecast_run_audit_id = $2)
		    OR ($2::BIGINT IS NULL AND forecast_run_audit_id IS NULL AND product_id = $3))`,
		contracts.MonthStart(period), runAuditRef, productID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("max consensus version: %w", err)
	}
	return version, nil
}

// Update is a compare-and-swap on version
func (r *consensusRepo) Update(ctx context.Context, c *contracts.ConsensusRecord, expectedVersion int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE forecast_consensus SET
			baseline_qty = $3, sales_override_qty = $4, marketing_uplift_qty = $5,
			finance_adjustment_qty = $6, constraint_cap_qty = $7, pre_consensus_qty = $8,
			final_consensus_qty = $9, status = $10, version = $11, notes = $12,
			approved_by = $13, approved_at = $14, updated_at = $15
		WHERE id = $1 AND version = $2`,
		c.ID, expectedVersion,
		c.BaselineQty, c.SalesOverrideQty, c.MarketingUpliftQty,
		c.FinanceAdjustmentQty, nullDecimal(c.ConstraintCapQty), c.PreConsensusQty,
		c.FinalConsensusQty, string(c.Status), c.Version, c.Notes,
		c.ApprovedBy, c.ApprovedAt, c.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "ConsensusRecord", c.ID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current int
	err = r.db.QueryRow(ctx, `SELECT version FROM forecast_consensus WHERE id = $1`, c.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return &contracts.NotFoundError{Entity: "ConsensusRecord", ID: c.ID}
	}
	if err != nil {
		return fmt.Errorf("read consensus version: %w", err)
	}
	return &contracts.ConflictError{Entity: "ConsensusRecord", ID: c.ID, ExpectedVersion: expectedVersion, ActualVersion: current}
}

func (r *consensusRepo) List(ctx context.Context, filter contracts.ConsensusFilter) ([]contracts.ConsensusRecord, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProductID != nil {
		add("product_id = $%d", *filter.ProductID)
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.Period != nil {
		add("period = $%d", contracts.MonthStart(*filter.Period))
	}

	query := `SELECT ` + consensusColumns + ` FROM forecast_consensus`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period ASC, version DESC, id ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query consensus: %w", err)
	}
	defer rows.Close()

	var out []contracts.ConsensusRecord
	for rows.Next() {
		c, err := scanConsensus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consensus: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
