// Package memory is an in-process contracts.Store.
// InTx works on a cloned snapshot and swaps it in on success, so a
// failed transaction leaves no partial writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// Verify interface compliance
var _ contracts.Store = (*Store)(nil)

type data struct {
	forecasts      []contracts.Forecast
	audits         []contracts.ForecastRunAudit
	consensus      map[int64]contracts.ConsensusRecord
	plans          map[int64]contracts.DemandPlan
	nextForecastID int64
	nextAuditID    int64
	nextRecordID   int64
	nextPlanID     int64
}

func newData() *data {
	return &data{
		consensus: make(map[int64]contracts.ConsensusRecord),
		plans:     make(map[int64]contracts.DemandPlan),
	}
}

// clone copies every table. Nested slices are shared because rows are
// replaced wholesale, never mutated in place.
func (d *data) clone() *data {
	c := *d
	c.forecasts = append([]contracts.Forecast(nil), d.forecasts...)
	c.audits = append([]contracts.ForecastRunAudit(nil), d.audits...)
	c.consensus = make(map[int64]contracts.ConsensusRecord, len(d.consensus))
	for k, v := range d.consensus {
		c.consensus[k] = v
	}
	c.plans = make(map[int64]contracts.DemandPlan, len(d.plans))
	for k, v := range d.plans {
		c.plans[k] = v
	}
	return &c
}

// Store keeps all rows in memory behind one mutex
type Store struct {
	mu   sync.Mutex
	d    *data
	jobs *jobTable
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{d: newData(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.jobs = newJobTable(s.clock)
	return s
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// SeedHistory stores monthly actuals as demand plan rows (Global/All).
func (s *Store) SeedHistory(productID int64, series contracts.HistorySeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for _, p := range series {
		actual := p.ActualQty
		s.d.nextPlanID++
		s.d.plans[s.d.nextPlanID] = contracts.DemandPlan{
			ID:          s.d.nextPlanID,
			ProductID:   productID,
			Period:      contracts.MonthStart(p.Period),
			Region:      contracts.DefaultRegion,
			Channel:     contracts.DefaultChannel,
			ForecastQty: actual,
			ActualQty:   &actual,
			Status:      contracts.DemandPlanDraft,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
}

// view runs repository calls either directly against the store (locking per
// call) or against a transaction snapshot (lock already held by InTx).
type view struct {
	s  *Store
	tx *data
}

func (v view) with(fn func(d *data) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.d)
}

func (s *Store) Forecasts() contracts.ForecastRepository     { return forecastRepo{view{s: s}} }
func (s *Store) Audits() contracts.AuditRepository           { return auditRepo{view{s: s}} }
func (s *Store) Consensus() contracts.ConsensusRepository    { return consensusRepo{view{s: s}} }
func (s *Store) DemandPlans() contracts.DemandPlanRepository { return planRepo{view{s: s}} }
func (s *Store) History() contracts.HistorySource            { return historySource{view{s: s}} }
func (s *Store) Jobs() contracts.JobRepository               { return s.jobs }

// InTx runs fn against a snapshot and commits it only when fn succeeds.
// fn must use tx only; calling back into the Store deadlocks.
func (s *Store) InTx(ctx context.Context, fn func(tx contracts.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(txRepos{view{s: s, tx: snapshot}}); err != nil {
		return err
	}
	s.d = snapshot
	return nil
}

type txRepos struct{ v view }

func (t txRepos) Forecasts() contracts.ForecastRepository     { return forecastRepo{t.v} }
func (t txRepos) Audits() contracts.AuditRepository           { return auditRepo{t.v} }
func (t txRepos) Consensus() contracts.ConsensusRepository    { return consensusRepo{t.v} }
func (t txRepos) DemandPlans() contracts.DemandPlanRepository { return planRepo{t.v} }

// ============================================================================
// History
// ============================================================================

type historySource struct{ v view }

// ActualsSeries sums demand plan actuals per month.
func (h historySource) ActualsSeries(_ context.Context, productID int64) (contracts.HistorySeries, error) {
	var points []contracts.HistoryPoint
	err := h.v.with(func(d *data) error {
		byPeriod := make(map[time.Time]int)
		for _, p := range d.plans {
			if p.ProductID != productID || p.ActualQty == nil {
				continue
			}
			period := contracts.MonthStart(p.Period)
			if idx, ok := byPeriod[period]; ok {
				points[idx].ActualQty = points[idx].ActualQty.Add(*p.ActualQty)
				continue
			}
			byPeriod[period] = len(points)
			points = append(points, contracts.HistoryPoint{Period: period, ActualQty: *p.ActualQty})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contracts.NormalizeSeries(points), nil
}

// ============================================================================
// Forecasts
// ============================================================================

type forecastRepo struct{ v view }

func (r forecastRepo) Replace(_ context.Context, f *contracts.Forecast) error {
	return r.v.with(func(d *data) error {
		period := contracts.MonthStart(f.Period)
		kept := d.forecasts[:0:0]
		for _, existing := range d.forecasts {
			if existing.ProductID == f.ProductID && existing.ModelType == f.ModelType && existing.Period.Equal(period) {
				continue
			}
			kept = append(kept, existing)
		}
		d.nextForecastID++
		f.ID = d.nextForecastID
		f.Period = period
		if f.CreatedAt.IsZero() {
			f.CreatedAt = r.v.s.clock()
		}
		d.forecasts = append(kept, *f)
		return nil
	})
}

func (r forecastRepo) List(_ context.Context, filter contracts.ForecastFilter) ([]contracts.Forecast, error) {
	var out []contracts.Forecast
	err := r.v.with(func(d *data) error {
		for _, f := range d.forecasts {
			if filter.ProductID != nil && f.ProductID != *filter.ProductID {
				continue
			}
			if filter.ModelType != nil && f.ModelType != *filter.ModelType {
				continue
			}
			if filter.From != nil && f.Period.Before(*filter.From) {
				continue
			}
			if filter.To != nil && f.Period.After(*filter.To) {
				continue
			}
			out = append(out, f)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Period.Equal(out[j].Period) {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// ============================================================================
// Audits
// ============================================================================

type auditRepo struct{ v view }

func (r auditRepo) Create(_ context.Context, a *contracts.ForecastRunAudit) error {
	return r.v.with(func(d *data) error {
		d.nextAuditID++
		a.ID = d.nextAuditID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = r.v.s.clock()
		}
		d.audits = append(d.audits, *a)
		return nil
	})
}

func (r auditRepo) Get(_ context.Context, id int64) (*contracts.ForecastRunAudit, error) {
	var found *contracts.ForecastRunAudit
	err := r.v.with(func(d *data) error {
		for i := range d.audits {
			if d.audits[i].ID == id {
				a := d.audits[i]
				found = &a
				return nil
			}
		}
		return &contracts.NotFoundError{Entity: "ForecastRunAudit", ID: id}
	})
	return found, err
}

func (r auditRepo) ListByProduct(_ context.Context, productID int64, limit int) ([]contracts.ForecastRunAudit, error) {
	var out []contracts.ForecastRunAudit
	err := r.v.with(func(d *data) error {
		for i := len(d.audits) - 1; i >= 0; i-- {
			if d.audits[i].ProductID != productID {
				continue
			}
			out = append(out, d.audits[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// ============================================================================
// Consensus
// ============================================================================

type consensusRepo struct{ v view }

func sameKey(a, b contracts.ConsensusRecord) bool {
	if !a.Period.Equal(b.Period) {
		return false
	}
	if a.RunAuditRef != nil || b.RunAuditRef != nil {
		return a.RunAuditRef != nil && b.RunAuditRef != nil && *a.RunAuditRef == *b.RunAuditRef
	}
	return a.ProductID == b.ProductID
}

func (r consensusRepo) Create(_ context.Context, rec *contracts.ConsensusRecord) error {
	return r.v.with(func(d *data) error {
		rec.Period = contracts.MonthStart(rec.Period)
		for _, existing := range d.consensus {
			if sameKey(existing, *rec) && existing.Version == rec.Version {
				return &contracts.ConflictError{Entity: "ConsensusRecord", ID: existing.ID, ExpectedVersion: rec.Version, ActualVersion: existing.Version}
			}
		}
		d.nextRecordID++
		rec.ID = d.nextRecordID
		d.consensus[rec.ID] = *rec
		return nil
	})
}

func (r consensusRepo) Get(_ context.Context, id int64) (*contracts.ConsensusRecord, error) {
	var found *contracts.ConsensusRecord
	err := r.v.with(func(d *data) error {
		rec, ok := d.consensus[id]
		if !ok {
			return &contracts.NotFoundError{Entity: "ConsensusRecord", ID: id}
		}
		found = &rec
		return nil
	})
	return found, err
}

func (r consensusRepo) MaxVersion(_ context.Context, runAuditRef *int64, productID int64, period time.Time) (int, error) {
	probe := contracts.ConsensusRecord{RunAuditRef: runAuditRef, ProductID: productID, Period: contracts.MonthStart(period)}
	maxVersion := 0
	err := r.v.with(func(d *data) error {
		for _, existing := range d.consensus {
			if sameKey(existing, probe) && existing.Version > maxVersion {
				maxVersion = existing.Version
			}
		}
		return nil
	})
	return maxVersion, err
}

func (r consensusRepo) Update(_ context.Context, rec *contracts.ConsensusRecord, expectedVersion int) error {
	return r.v.with(func(d *data) error {
		stored, ok := d.consensus[rec.ID]
		if !ok {
			return &contracts.NotFoundError{Entity: "ConsensusRecord", ID: rec.ID}
		}
		if stored.Version != expectedVersion {
			return &contracts.ConflictError{Entity: "ConsensusRecord", ID: rec.ID, ExpectedVersion: expectedVersion, ActualVersion: stored.Version}
		}
		d.consensus[rec.ID] = *rec
		return nil
	})
}

func (r consensusRepo) List(_ context.Context, filter contracts.ConsensusFilter) ([]contracts.ConsensusRecord, error) {
	var out []contracts.ConsensusRecord
	err := r.v.with(func(d *data) error {
		for _, rec := range d.consensus {
			if filter.ProductID != nil && rec.ProductID != *filter.ProductID {
				continue
			}
			if filter.Status != nil && rec.Status != *filter.Status {
				continue
			}
			if filter.Period != nil && !rec.Period.Equal(contracts.MonthStart(*filter.Period)) {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	// period 오름차순, version 내림차순
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Period.Equal(out[j].Period) {
			return out[i].Period.Before(out[j].Period)
		}
		if out[i].Version != out[j].Version {
			return out[i].Version > out[j].Version
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// ============================================================================
// Demand plans
// ============================================================================

type planRepo struct{ v view }

func (r planRepo) FindByProductPeriod(_ context.Context, productID int64, period time.Time) (*contracts.DemandPlan, error) {
	var found *contracts.DemandPlan
	period = contracts.MonthStart(period)
	err := r.v.with(func(d *data) error {
		var bestID int64
		for id, p := range d.plans {
			if p.ProductID == productID && p.Period.Equal(period) && (bestID == 0 || id < bestID) {
				bestID = id
			}
		}
		if bestID != 0 {
			p := d.plans[bestID]
			found = &p
		}
		return nil
	})
	return found, err
}

func (r planRepo) Create(_ context.Context, plan *contracts.DemandPlan) error {
	return r.v.with(func(d *data) error {
		now := r.v.s.clock()
		d.nextPlanID++
		plan.ID = d.nextPlanID
		plan.Period = contracts.MonthStart(plan.Period)
		if plan.Version == 0 {
			plan.Version = 1
		}
		plan.CreatedAt = now
		plan.UpdatedAt = now
		d.plans[plan.ID] = *plan
		return nil
	})
}

func (r planRepo) Update(_ context.Context, plan *contracts.DemandPlan) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.plans[plan.ID]; !ok {
			return &contracts.NotFoundError{Entity: "DemandPlan", ID: plan.ID}
		}
		plan.UpdatedAt = r.v.s.clock()
		d.plans[plan.ID] = *plan
		return nil
	})
}

func (r planRepo) ListWithActuals(_ context.Context, productID *int64) ([]contracts.DemandPlan, error) {
	var out []contracts.DemandPlan
	err := r.v.with(func(d *data) error {
		for _, p := range d.plans {
			if p.ActualQty == nil {
				continue
			}
			if productID != nil && p.ProductID != *productID {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		if !out[i].Period.Equal(out[j].Period) {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}
