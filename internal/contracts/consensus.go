package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsensusStatus is the approval state of a consensus record.
type ConsensusStatus string

const (
	ConsensusDraft    ConsensusStatus = "draft"
	ConsensusProposed ConsensusStatus = "proposed"
	ConsensusApproved ConsensusStatus = "approved"
	ConsensusFrozen   ConsensusStatus = "frozen"
)

// Locked reports whether the record no longer accepts edits.
func (s ConsensusStatus) Locked() bool {
	return s == ConsensusApproved || s == ConsensusFrozen
}

// Valid reports whether s is a known status.
func (s ConsensusStatus) Valid() bool {
	switch s {
	case ConsensusDraft, ConsensusProposed, ConsensusApproved, ConsensusFrozen:
		return true
	}
	return false
}

// ConsensusRecord reconciles stakeholder adjustments into one demand number.
type ConsensusRecord struct {
	ID                   int64            `json:"id"`
	RunAuditRef          *int64           `json:"run_audit_ref"`
	ProductID            int64            `json:"product_id"`
	Period               time.Time        `json:"period"`
	BaselineQty          decimal.Decimal  `json:"baseline_qty"`
	SalesOverrideQty     decimal.Decimal  `json:"sales_override_qty"`
	MarketingUpliftQty   decimal.Decimal  `json:"marketing_uplift_qty"`
	FinanceAdjustmentQty decimal.Decimal  `json:"finance_adjustment_qty"`
	ConstraintCapQty     *decimal.Decimal `json:"constraint_cap_qty"`
	PreConsensusQty      decimal.Decimal  `json:"pre_consensus_qty"`
	FinalConsensusQty    decimal.Decimal  `json:"final_consensus_qty"`
	Status               ConsensusStatus  `json:"status"`
	Version              int              `json:"version"`
	Notes                *string          `json:"notes"`
	ApprovedBy           *int64           `json:"approved_by"`
	ApprovedAt           *time.Time       `json:"approved_at"`
	CreatedBy            int64            `json:"created_by"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// ConsensusFilter narrows consensus listings.
type ConsensusFilter struct {
	ProductID *int64
	Status    *ConsensusStatus
	Period    *time.Time
}

// DemandPlan is the downstream planning row consensus approval writes through to.
type DemandPlan struct {
	ID           int64            `json:"id"`
	ProductID    int64            `json:"product_id"`
	Period       time.Time        `json:"period"`
	Region       string           `json:"region"`
	Channel      string           `json:"channel"`
	ForecastQty  decimal.Decimal  `json:"forecast_qty"`
	ConsensusQty *decimal.Decimal `json:"consensus_qty"`
	ActualQty    *decimal.Decimal `json:"actual_qty"`
	Status       string           `json:"status"`
	Version      int              `json:"version"`
	Notes        *string          `json:"notes"`
	CreatedBy    int64            `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Demand plan defaults for rows created by the engine
const (
	DemandPlanDraft = "draft"
	DefaultRegion   = "Global"
	DefaultChannel  = "All"
)
