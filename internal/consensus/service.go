// Package consensus reconciles baseline and stakeholder adjustments into one
// versioned demand number, and writes approved numbers through to the demand plan.
package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/logger"
)

const entity = "ConsensusRecord"

// Service runs the consensus state machine
// ⭐ SSOT: draft ⇄ proposed → approved → frozen 전이는 여기서만
type Service struct {
	store  contracts.Store
	now    func() time.Time
	logger *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = l.WithComponent("consensus") }
}

// NewService creates a consensus service
func NewService(store contracts.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest opens a new consensus version
type CreateRequest struct {
	RunAuditRef          *int64
	ProductID            int64
	Period               time.Time
	BaselineQty          decimal.Decimal
	SalesOverrideQty     decimal.Decimal
	MarketingUpliftQty   decimal.Decimal
	FinanceAdjustmentQty decimal.Decimal
	ConstraintCapQty     *decimal.Decimal
	Status               contracts.ConsensusStatus // 빈 값 = draft
	Notes                *string
	CreatedBy            int64
}

// UpdateRequest patches an open record. Nil fields keep their stored value.
type UpdateRequest struct {
	ID int64
	// ExpectedVersion is the version the caller read; nil uses the stored one
	ExpectedVersion      *int
	BaselineQty          *decimal.Decimal
	SalesOverrideQty     *decimal.Decimal
	MarketingUpliftQty   *decimal.Decimal
	FinanceAdjustmentQty *decimal.Decimal
	// ConstraintCapQty: nil = unchanged, Valid=false = remove the cap
	ConstraintCapQty *decimal.NullDecimal
	Status           *contracts.ConsensusStatus
	Notes            *string
}

// ApproveRequest approves a record
type ApproveRequest struct {
	ID              int64
	ExpectedVersion *int
	ApproverID      int64
	Notes           string
}

// Create computes the record and stores it as the next version of its business key
func (s *Service) Create(ctx context.Context, req CreateRequest) (*contracts.ConsensusRecord, error) {
	status := req.Status
	if status == "" {
		status = contracts.ConsensusDraft
	}
	if status != contracts.ConsensusDraft && status != contracts.ConsensusProposed {
		return nil, &contracts.BusinessRuleError{
			Rule:    "consensus_status",
			Message: fmt.Sprintf("new records must be draft or proposed, got %q", status),
		}
	}
	if err := validateQuantities(&req.BaselineQty, req.ConstraintCapQty); err != nil {
		return nil, err
	}

	pre, final := Compute(Inputs{
		Baseline:          req.BaselineQty,
		SalesOverride:     req.SalesOverrideQty,
		MarketingUplift:   req.MarketingUpliftQty,
		FinanceAdjustment: req.FinanceAdjustmentQty,
		Cap:               req.ConstraintCapQty,
	})
	now := s.now().UTC()
	rec := &contracts.ConsensusRecord{
		RunAuditRef:          req.RunAuditRef,
		ProductID:            req.ProductID,
		Period:               contracts.MonthStart(req.Period),
		BaselineQty:          req.BaselineQty,
		SalesOverrideQty:     req.SalesOverrideQty,
		MarketingUpliftQty:   req.MarketingUpliftQty,
		FinanceAdjustmentQty: req.FinanceAdjustmentQty,
		ConstraintCapQty:     req.ConstraintCapQty,
		PreConsensusQty:      pre,
		FinalConsensusQty:    final,
		Status:               status,
		Notes:                req.Notes,
		CreatedBy:            req.CreatedBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.store.InTx(ctx, func(tx contracts.Repositories) error {
		if req.RunAuditRef != nil {
			if _, err := tx.Audits().Get(ctx, *req.RunAuditRef); err != nil {
				return err
			}
		}
		latest, err := tx.Consensus().MaxVersion(ctx, rec.RunAuditRef, rec.ProductID, rec.Period)
		if err != nil {
			return err
		}
		rec.Version = latest + 1
		return tx.Consensus().Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"consensus_id": rec.ID,
		"product_id":   rec.ProductID,
		"version":      rec.Version,
		"final_qty":    rec.FinalConsensusQty.String(),
	}).Info("Consensus created")
	return rec, nil
}

// Update recomputes an open record and bumps its version
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*contracts.ConsensusRecord, error) {
	var rec *contracts.ConsensusRecord
	err := s.mutate(ctx, req.ID, req.ExpectedVersion, func(tx contracts.Repositories, r *contracts.ConsensusRecord) error {
		if r.Status.Locked() {
			return &contracts.BusinessRuleError{
				Rule:    "consensus_locked",
				Message: fmt.Sprintf("cannot modify %s consensus record", r.Status),
			}
		}
		if req.Status != nil {
			next := *req.Status
			if next != contracts.ConsensusDraft && next != contracts.ConsensusProposed {
				return &contracts.TransitionError{Entity: entity, From: string(r.Status), To: string(next)}
			}
			r.Status = next
		}

		if req.BaselineQty != nil {
			r.BaselineQty = *req.BaselineQty
		}
		if req.SalesOverrideQty != nil {
			r.SalesOverrideQty = *req.SalesOverrideQty
		}
		if req.MarketingUpliftQty != nil {
			r.MarketingUpliftQty = *req.MarketingUpliftQty
		}
		if req.FinanceAdjustmentQty != nil {
			r.FinanceAdjustmentQty = *req.FinanceAdjustmentQty
		}
		if req.ConstraintCapQty != nil {
			if req.ConstraintCapQty.Valid {
				capQty := req.ConstraintCapQty.Decimal
				r.ConstraintCapQty = &capQty
			} else {
				r.ConstraintCapQty = nil
			}
		}
		if req.Notes != nil {
			r.Notes = req.Notes
		}
		if err := validateQuantities(&r.BaselineQty, r.ConstraintCapQty); err != nil {
			return err
		}

		r.PreConsensusQty, r.FinalConsensusQty = Compute(inputsOf(r))
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"consensus_id": rec.ID,
		"version":      rec.Version,
		"status":       rec.Status,
		"final_qty":    rec.FinalConsensusQty.String(),
	}).Info("Consensus updated")
	return rec, nil
}

// Approve locks the record and writes its final number through to the demand
// plan for (product, period), all in one transaction.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) (*contracts.ConsensusRecord, error) {
	var rec *contracts.ConsensusRecord
	err := s.mutate(ctx, req.ID, req.ExpectedVersion, func(tx contracts.Repositories, r *contracts.ConsensusRecord) error {
		if r.Status.Locked() {
			return &contracts.TransitionError{Entity: entity, From: string(r.Status), To: string(contracts.ConsensusApproved)}
		}
		at := s.now().UTC()
		approver := req.ApproverID
		r.Status = contracts.ConsensusApproved
		r.ApprovedBy = &approver
		r.ApprovedAt = &at
		if note := strings.TrimSpace(req.Notes); note != "" {
			r.Notes = appendNote(r.Notes, "[Approved] "+note)
		}
		rec = r
		return writeThrough(ctx, tx.DemandPlans(), r, approver)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"consensus_id": rec.ID,
		"product_id":   rec.ProductID,
		"approved_by":  req.ApproverID,
		"final_qty":    rec.FinalConsensusQty.String(),
	}).Info("Consensus approved")
	return rec, nil
}

// Freeze moves an approved record to frozen
func (s *Service) Freeze(ctx context.Context, id int64, expectedVersion *int) (*contracts.ConsensusRecord, error) {
	var rec *contracts.ConsensusRecord
	err := s.mutate(ctx, id, expectedVersion, func(_ contracts.Repositories, r *contracts.ConsensusRecord) error {
		if r.Status != contracts.ConsensusApproved {
			return &contracts.TransitionError{Entity: entity, From: string(r.Status), To: string(contracts.ConsensusFrozen)}
		}
		r.Status = contracts.ConsensusFrozen
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithField("consensus_id", id).Info("Consensus frozen")
	return rec, nil
}

// AppendNote adds a line to the notes in any status
func (s *Service) AppendNote(ctx context.Context, id int64, note string, expectedVersion *int) (*contracts.ConsensusRecord, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, &contracts.BusinessRuleError{Rule: "consensus_note", Message: "note must not be empty"}
	}
	var rec *contracts.ConsensusRecord
	err := s.mutate(ctx, id, expectedVersion, func(_ contracts.Repositories, r *contracts.ConsensusRecord) error {
		r.Notes = appendNote(r.Notes, note)
		rec = r
		return nil
	})
	return rec, err
}

// Get returns one record
func (s *Service) Get(ctx context.Context, id int64) (*contracts.ConsensusRecord, error) {
	return s.store.Consensus().Get(ctx, id)
}

// List returns records ordered by period, newest version first
func (s *Service) List(ctx context.Context, filter contracts.ConsensusFilter) ([]contracts.ConsensusRecord, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, &contracts.BusinessRuleError{Rule: "consensus_status", Message: fmt.Sprintf("unknown status %q", *filter.Status)}
	}
	return s.store.Consensus().List(ctx, filter)
}

// mutate loads the record, applies fn and writes it back with a version CAS.
// The new version is one above the highest version of the business key, so
// it never collides with a later Create of the same key.
func (s *Service) mutate(ctx context.Context, id int64, expectedVersion *int, fn func(tx contracts.Repositories, r *contracts.ConsensusRecord) error) error {
	return s.store.InTx(ctx, func(tx contracts.Repositories) error {
		r, err := tx.Consensus().Get(ctx, id)
		if err != nil {
			return err
		}
		expected := r.Version
		if expectedVersion != nil {
			if *expectedVersion != r.Version {
				return &contracts.ConflictError{Entity: entity, ID: id, ExpectedVersion: *expectedVersion, ActualVersion: r.Version}
			}
			expected = *expectedVersion
		}

		if err := fn(tx, r); err != nil {
			return err
		}

		latest, err := tx.Consensus().MaxVersion(ctx, r.RunAuditRef, r.ProductID, r.Period)
		if err != nil {
			return err
		}
		r.Version = max(latest, expected) + 1
		r.UpdatedAt = s.now().UTC()
		return tx.Consensus().Update(ctx, r, expected)
	})
}

// writeThrough pushes the final number into the demand plan.
// 기존 plan: consensus_qty 갱신 + version+1, 없으면 Global/All draft 생성
func writeThrough(ctx context.Context, plans contracts.DemandPlanRepository, r *contracts.ConsensusRecord, userID int64) error {
	final := r.FinalConsensusQty
	plan, err := plans.FindByProductPeriod(ctx, r.ProductID, r.Period)
	if err != nil {
		return err
	}
	if plan != nil {
		plan.ConsensusQty = &final
		plan.Version++
		if err := plans.Update(ctx, plan); err != nil {
			return fmt.Errorf("update demand plan %d: %w", plan.ID, err)
		}
		return nil
	}

	plan = &contracts.DemandPlan{
		ProductID:    r.ProductID,
		Period:       r.Period,
		Region:       contracts.DefaultRegion,
		Channel:      contracts.DefaultChannel,
		ForecastQty:  r.BaselineQty,
		ConsensusQty: &final,
		Status:       contracts.DemandPlanDraft,
		Version:      1,
		CreatedBy:    userID,
	}
	if err := plans.Create(ctx, plan); err != nil {
		return fmt.Errorf("create demand plan: %w", err)
	}
	return nil
}

func validateQuantities(baseline *decimal.Decimal, capQty *decimal.Decimal) error {
	if baseline.IsNegative() {
		return &contracts.BusinessRuleError{Rule: "baseline_qty", Message: "baseline must be >= 0"}
	}
	if capQty != nil && capQty.IsNegative() {
		return &contracts.BusinessRuleError{Rule: "constraint_cap_qty", Message: "cap must be >= 0"}
	}
	return nil
}

func inputsOf(r *contracts.ConsensusRecord) Inputs {
	return Inputs{
		Baseline:          r.BaselineQty,
		SalesOverride:     r.SalesOverrideQty,
		MarketingUplift:   r.MarketingUpliftQty,
		FinanceAdjustment: r.FinanceAdjustmentQty,
		Cap:               r.ConstraintCapQty,
	}
}

func appendNote(notes *string, line string) *string {
	out := line
	if notes != nil && strings.TrimSpace(*notes) != "" {
		out = strings.TrimSpace(*notes + "\n" + line)
	}
	return &out
}
