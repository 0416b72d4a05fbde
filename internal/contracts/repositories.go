package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// HistorySource loads monthly demand actuals. Read-only for the engine.
type HistorySource interface {
	ActualsSeries(ctx context.Context, productID int64) (HistorySeries, error)
}

// ForecastRepository manages forecast output rows
type ForecastRepository interface {
	// Replace deletes any row sharing (product, model, period) and inserts f
	Replace(ctx context.Context, f *Forecast) error
	List(ctx context.Context, filter ForecastFilter) ([]Forecast, error)
}

// AuditRepository manages the append-only run audit ledger
type AuditRepository interface {
	Create(ctx context.Context, audit *ForecastRunAudit) error
	Get(ctx context.Context, id int64) (*ForecastRunAudit, error)
	ListByProduct(ctx context.Context, productID int64, limit int) ([]ForecastRunAudit, error)
}

// ConsensusRepository manages consensus records
type ConsensusRepository interface {
	Create(ctx context.Context, record *ConsensusRecord) error
	Get(ctx context.Context, id int64) (*ConsensusRecord, error)
	// MaxVersion returns the highest version for the business key, 0 if none
	MaxVersion(ctx context.Context, runAuditRef *int64, productID int64, period time.Time) (int, error)
	// Update writes record only if the stored version still equals expectedVersion
	Update(ctx context.Context, record *ConsensusRecord, expectedVersion int) error
	List(ctx context.Context, filter ConsensusFilter) ([]ConsensusRecord, error)
}

// DemandPlanRepository manages downstream demand plan rows
type DemandPlanRepository interface {
	FindByProductPeriod(ctx context.Context, productID int64, period time.Time) (*DemandPlan, error)
	Create(ctx context.Context, plan *DemandPlan) error
	Update(ctx context.Context, plan *DemandPlan) error
	ListWithActuals(ctx context.Context, productID *int64) ([]DemandPlan, error)
}

// JobRepository manages forecast job rows.
// 상태 전이 메서드는 CAS: 조건이 맞지 않으면 false 반환
type JobRepository interface {
	Create(ctx context.Context, job *ForecastJob) error
	Get(ctx context.Context, jobID string) (*ForecastJob, error)
	List(ctx context.Context, limit int) ([]ForecastJob, error)
	ListQueued(ctx context.Context, limit int) ([]ForecastJob, error)
	Claim(ctx context.Context, jobID string, at time.Time) (bool, error)
	Complete(ctx context.Context, jobID string, result []byte, at time.Time) (bool, error)
	Fail(ctx context.Context, jobID string, message string, at time.Time) (bool, error)
	Cancel(ctx context.Context, jobID string, reason string, at time.Time) (bool, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Metrics(ctx context.Context, now time.Time) (*JobMetrics, error)
}

// Repositories groups the repositories that take part in one transaction.
type Repositories interface {
	Forecasts() ForecastRepository
	Audits() AuditRepository
	Consensus() ConsensusRepository
	DemandPlans() DemandPlanRepository
}

// Store is the persistence root shared by the engine services.
type Store interface {
	Repositories
	History() HistorySource
	Jobs() JobRepository
	// InTx runs fn in one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}
