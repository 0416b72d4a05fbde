package backtest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/logger"
	"github.com/wonny/genxsop/backend/pkg/redis"
)

// Cache stores ranked backtest results: in-process L1 (ristretto) with an
// optional shared L2 (Redis) so workers reuse each other's rankings.
type Cache struct {
	l1     *ristretto.Cache[string, []byte]
	l2     *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCache creates the L1 cache. l2 may be nil.
func NewCache(maxCostBytes int64, ttl time.Duration, l2 *redis.Cache, log *logger.Logger) (*Cache, error) {
	l1, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{l1: l1, l2: l2, ttl: ttl, logger: log.WithComponent("backtest.cache")}, nil
}

// Get looks up L1 then L2. An L2 hit is promoted to L1.
func (c *Cache) Get(ctx context.Context, key string) ([]contracts.BacktestMetric, bool) {
	if data, ok := c.l1.Get(key); ok {
		var metrics []contracts.BacktestMetric
		if err := json.Unmarshal(data, &metrics); err == nil {
			return metrics, true
		}
	}
	if c.l2 == nil {
		return nil, false
	}

	var metrics []contracts.BacktestMetric
	found, err := c.l2.Get(ctx, redis.BacktestKey(key), &metrics)
	if err != nil {
		c.logger.WithError(err).Warn("L2 cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	c.setL1(key, metrics)
	return metrics, true
}

// Set writes both levels. Cache failures never fail a backtest.
func (c *Cache) Set(ctx context.Context, key string, metrics []contracts.BacktestMetric) {
	c.setL1(key, metrics)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, redis.BacktestKey(key), metrics, c.ttl); err != nil {
		c.logger.WithError(err).Warn("L2 cache write failed")
	}
}

func (c *Cache) setL1(key string, metrics []contracts.BacktestMetric) {
	data, err := json.Marshal(metrics)
	if err != nil {
		return
	}
	c.l1.SetWithTTL(key, data, int64(len(data)), c.ttl)
	c.l1.Wait()
}

// Close shuts down the L1 cache.
func (c *Cache) Close() {
	c.l1.Close()
}
