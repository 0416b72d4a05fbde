// Package forecast orchestrates a forecast run: history, backtests, model
// selection, strategy execution, persistence and the run audit.
package forecast

import (
	"context"
	"time"

	"github.com/wonny/genxsop/backend/internal/advisor"
	"github.com/wonny/genxsop/backend/internal/backtest"
	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/events"
	"github.com/wonny/genxsop/backend/internal/strategy"
	"github.com/wonny/genxsop/backend/pkg/logger"
	"github.com/wonny/genxsop/backend/pkg/metrics"
)

const (
	// ModelVersion is stamped on every persisted forecast row
	ModelVersion = "genxai-advisor-v1"

	minHistoryPoints  = 3
	defaultMaxHorizon = 24
)

// Service is the forecast orchestrator
// ⭐ SSOT: ForecastRunAudit와 Forecast 행은 이 서비스만 기록
type Service struct {
	store      contracts.Store
	registry   *strategy.Registry
	engine     *backtest.Engine
	advisor    *advisor.Advisor
	publisher  events.Publisher
	metrics    *metrics.Collector
	window     backtest.Window
	configHash string
	maxHorizon int
	now        func() time.Time
	logger     *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the domain event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics enables Prometheus counters.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithWindow overrides the backtest window.
func WithWindow(w backtest.Window) Option {
	return func(s *Service) { s.window = w }
}

// WithConfigHash records the model config hash on each audit row.
func WithConfigHash(hash string) Option {
	return func(s *Service) { s.configHash = hash }
}

// WithMaxHorizon caps the forecast horizon.
func WithMaxHorizon(months int) Option {
	return func(s *Service) { s.maxHorizon = months }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = l.WithComponent("forecast.orchestrator") }
}

// NewService wires the orchestrator
func NewService(store contracts.Store, registry *strategy.Registry, engine *backtest.Engine, adv *advisor.Advisor, opts ...Option) *Service {
	s := &Service{
		store:      store,
		registry:   registry,
		engine:     engine,
		advisor:    adv,
		publisher:  events.Nop{},
		window:     backtest.DefaultWindow,
		maxHorizon: defaultMaxHorizon,
		now:        time.Now,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListModels returns the strategy catalogue
func (s *Service) ListModels() []strategy.Info {
	return s.registry.Catalogue()
}

// loadHistory fails with InsufficientDataError below three points
func (s *Service) loadHistory(ctx context.Context, operation string, productID int64) (contracts.HistorySeries, error) {
	history, err := s.store.History().ActualsSeries(ctx, productID)
	if err != nil {
		return nil, err
	}
	if history.Len() < minHistoryPoints {
		return nil, &contracts.InsufficientDataError{
			Operation: operation,
			Required:  minHistoryPoints,
			Available: history.Len(),
		}
	}
	return history, nil
}

func (s *Service) validateHorizon(horizon int) error {
	if horizon < 1 || horizon > s.maxHorizon {
		return &contracts.BusinessRuleError{
			Rule:    "horizon",
			Message: "horizon must be between 1 and " + itoa(s.maxHorizon),
		}
	}
	return nil
}

func validateModel(id *contracts.ModelID) error {
	if id == nil {
		return nil
	}
	_, err := contracts.ParseModelID(string(*id))
	return err
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WithError(err).WithField("event", e.EventName()).Warn("Event publish failed")
	}
}
