package backtest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/strategy"
	"github.com/wonny/genxsop/backend/pkg/logger"
)

// Window is the rolling-origin evaluation setup.
type Window struct {
	MinTrainMonths int
	TestMonths     int
}

// DefaultWindow train ≥3개월, 최근 6개월 평가
var DefaultWindow = Window{MinTrainMonths: 3, TestMonths: 6}

// Engine runs walk-forward backtests over the strategy registry
// ⭐ SSOT: 후보 모델 평가는 여기서만
type Engine struct {
	registry   *strategy.Registry
	cache      *Cache
	configHash string
	logger     *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables result caching keyed by series fingerprint.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithConfigHash mixes the model config hash into cache keys.
func WithConfigHash(hash string) Option {
	return func(e *Engine) { e.configHash = hash }
}

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l.WithComponent("backtest.engine") }
}

// NewEngine creates a new backtest engine
func NewEngine(registry *strategy.Registry, opts ...Option) *Engine {
	e := &Engine{registry: registry, logger: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every candidate and returns metrics ranked by ascending score.
// Candidates without a single usable split are omitted.
func (e *Engine) Run(ctx context.Context, series contracts.HistorySeries, w Window, candidates []contracts.ModelID) ([]contracts.BacktestMetric, error) {
	if w.MinTrainMonths < 1 || w.TestMonths < 1 {
		return nil, &contracts.BusinessRuleError{
			Rule:    "backtest_window",
			Message: fmt.Sprintf("min_train_months and test_months must be >= 1, got %d/%d", w.MinTrainMonths, w.TestMonths),
		}
	}

	key := ""
	if e.cache != nil {
		key = cacheKey(series, w, candidates, e.configHash)
		if cached, ok := e.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	results := make([]*contracts.BacktestMetric, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range candidates {
		i, id := i, id
		g.Go(func() error {
			m, err := e.evaluate(gctx, series, w, id)
			if err != nil {
				return fmt.Errorf("backtest %s: %w", id, err)
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]contracts.BacktestMetric, 0, len(results))
	for _, m := range results {
		if m != nil {
			ranked = append(ranked, *m)
		}
	}
	// 동점이면 후보 순서 유지
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score < ranked[j].Score
	})

	e.logger.WithFields(map[string]interface{}{
		"history_months": series.Len(),
		"candidates":     len(candidates),
		"scored":         len(ranked),
	}).Debug("Backtest completed")

	if e.cache != nil {
		e.cache.Set(ctx, key, ranked)
	}
	return ranked, nil
}

// evaluate walks forward one step at a time: train on series[:split], predict series[split].
func (e *Engine) evaluate(ctx context.Context, series contracts.HistorySeries, w Window, id contracts.ModelID) (*contracts.BacktestMetric, error) {
	n := series.Len()
	minHistory := max(w.MinTrainMonths, strategy.MinDataMonths(id))
	if n <= minHistory {
		return nil, nil
	}

	var acc accumulator
	for split := max(minHistory, n-w.TestMonths); split < n; split++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := e.registry.Forecast(series.Head(split), 1, id)
		if out.Err != nil || len(out.Points) == 0 {
			continue
		}
		acc.add(out.Points[0].PredictedQty, series[split].ActualQty.InexactFloat64())
	}
	if acc.samples() == 0 {
		return nil, nil
	}
	m := acc.metric(id)
	return &m, nil
}

// cacheKey fingerprints everything a ranking depends on.
func cacheKey(series contracts.HistorySeries, w Window, candidates []contracts.ModelID, configHash string) string {
	h := sha256.New()
	var buf [8]byte
	for _, p := range series {
		binary.BigEndian.PutUint64(buf[:], uint64(p.Period.Unix()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.ActualQty.InexactFloat64()))
		h.Write(buf[:])
	}
	fmt.Fprintf(h, "|%d|%d|", w.MinTrainMonths, w.TestMonths)
	for _, id := range candidates {
		fmt.Fprintf(h, "%s,", id)
	}
	fmt.Fprintf(h, "|%s", configHash)
	return hex.EncodeToString(h.Sum(nil))
}
