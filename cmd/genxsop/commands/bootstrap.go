package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/wonny/genxsop/backend/internal/advisor"
	"github.com/wonny/genxsop/backend/internal/backtest"
	"github.com/wonny/genxsop/backend/internal/consensus"
	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/events"
	"github.com/wonny/genxsop/backend/internal/forecast"
	"github.com/wonny/genxsop/backend/internal/jobs"
	"github.com/wonny/genxsop/backend/internal/modelconfig"
	"github.com/wonny/genxsop/backend/internal/store/memory"
	"github.com/wonny/genxsop/backend/internal/store/postgres"
	"github.com/wonny/genxsop/backend/internal/strategy"
	"github.com/wonny/genxsop/backend/pkg/config"
	"github.com/wonny/genxsop/backend/pkg/database"
	"github.com/wonny/genxsop/backend/pkg/httputil"
	"github.com/wonny/genxsop/backend/pkg/logger"
	"github.com/wonny/genxsop/backend/pkg/metrics"
	"github.com/wonny/genxsop/backend/pkg/redis"
)

// Store backends
const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

const cachePrefix = "genxsop"

// app holds every wired component for one CLI invocation
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	db         *database.DB
	store      contracts.Store
	redis      *redis.Client
	metrics    *metrics.Collector
	publisher  events.Publisher
	configHash string
	forecast   *forecast.Service
	consensus  *consensus.Service
	jobs       *jobs.Pool
	closers    []func()
}

// loadConfig applies CLI overrides on top of the environment
func loadConfig() (*config.Config, error) {
	if env != "" {
		if err := os.Setenv("ENV", env); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if modelConfigFile != "" {
		cfg.Forecast.ModelConfigPath = modelConfigFile
	}
	return cfg, nil
}

// newApp wires store, cache, advisor, events, metrics and the services
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger.New(cfg)}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}

	rc, err := redis.New(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.redis = rc
	a.closers = append(a.closers, func() { _ = rc.Close() })

	if a.cfg.MetricsEnabled {
		if a.metrics, err = metrics.New(); err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}
	}

	if err := a.openPublisher(); err != nil {
		return err
	}

	mc, window, err := a.loadModelConfig()
	if err != nil {
		return err
	}
	registry := strategy.NewRegistry(mc.Params())

	var l2 *redis.Cache
	if a.redis.Enabled() {
		l2 = redis.NewCache(a.redis, cachePrefix)
	}
	cache, err := backtest.NewCache(a.cfg.Forecast.CacheMaxCost, a.cfg.Forecast.CacheTTL, l2, a.log)
	if err != nil {
		return fmt.Errorf("failed to init backtest cache: %w", err)
	}
	engine := backtest.NewEngine(registry,
		backtest.WithCache(cache),
		backtest.WithConfigHash(a.configHash),
		backtest.WithLogger(a.log),
	)

	adv := advisor.New(a.newRecommender(), a.log)

	a.forecast = forecast.NewService(a.store, registry, engine, adv,
		forecast.WithPublisher(a.publisher),
		forecast.WithMetrics(a.metrics),
		forecast.WithWindow(window),
		forecast.WithConfigHash(a.configHash),
		forecast.WithMaxHorizon(a.cfg.Forecast.MaxHorizon),
		forecast.WithLogger(a.log),
	)
	a.consensus = consensus.NewService(a.store, consensus.WithLogger(a.log))
	a.jobs = jobs.NewPool(a.store.Jobs(), a.forecast,
		jobs.WithWorkers(a.cfg.Jobs.Workers),
		jobs.WithQueueSize(a.cfg.Jobs.QueueSize),
		jobs.WithMaxHorizon(a.cfg.Forecast.MaxHorizon),
		jobs.WithPollInterval(a.cfg.Jobs.PollInterval),
		jobs.WithPublisher(a.publisher),
		jobs.WithMetrics(a.metrics),
		jobs.WithLogger(a.log),
	)
	return nil
}

// openStore selects the persistence backend from --store
func (a *app) openStore(ctx context.Context) error {
	switch storeBackend {
	case storePostgres:
		db, err := database.New(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.db = db
		a.store = postgres.New(db.Pool)
		a.closers = append(a.closers, db.Close)
		if seedFile != "" {
			a.log.Warn("--seed is ignored for the postgres store")
		}
		return nil

	case storeMemory:
		mem := memory.New()
		if seedFile != "" {
			n, err := seedMemory(mem, seedFile)
			if err != nil {
				return err
			}
			a.log.WithFields(map[string]interface{}{
				"file":     seedFile,
				"products": n,
			}).Info("Memory store seeded")
		}
		a.store = mem
		return nil
	}
	return fmt.Errorf("unknown store %q (postgres|memory)", storeBackend)
}

// historySeed is the --seed file layout
type historySeed struct {
	Products []struct {
		ProductID int64                   `json:"product_id"`
		History   contracts.HistorySeries `json:"history"`
	} `json:"products"`
}

func seedMemory(mem *memory.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed: %w", err)
	}
	var seed historySeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for _, p := range seed.Products {
		mem.SeedHistory(p.ProductID, p.History)
	}
	return len(seed.Products), nil
}

// openPublisher picks none/redis/nats from EVENTS_BACKEND
func (a *app) openPublisher() error {
	switch a.cfg.Events.Backend {
	case "redis":
		a.publisher = events.NewRedisPublisher(a.redis, a.cfg.Events.Channel)
	case "nats":
		pub, err := events.ConnectNATS(a.cfg.NATS.URL, a.cfg.NATS.SubjectPrefix)
		if err != nil {
			return err
		}
		a.publisher = pub
		a.closers = append(a.closers, func() { _ = pub.Close() })
	default:
		a.publisher = events.Nop{}
	}
	return nil
}

// loadModelConfig reads strategy params and the backtest window.
// 파일이 없으면 env 윈도우 + 기본 파라미터
func (a *app) loadModelConfig() (*modelconfig.Config, backtest.Window, error) {
	window := backtest.Window{
		MinTrainMonths: a.cfg.Forecast.MinTrainMonths,
		TestMonths:     a.cfg.Forecast.TestMonths,
	}

	path := a.cfg.Forecast.ModelConfigPath
	mc, _, err := modelconfig.Load(path)
	if err != nil {
		return nil, window, fmt.Errorf("failed to load model config %s: %w", path, err)
	}
	if path != "" {
		window = backtest.Window{
			MinTrainMonths: mc.Backtest.MinTrainMonths,
			TestMonths:     mc.Backtest.TestMonths,
		}
	}
	for _, w := range modelconfig.Warn(mc) {
		a.log.WithField("code", w.Code).Warn(w.Message)
	}

	if a.configHash, err = modelconfig.Hash(mc); err != nil {
		return nil, window, fmt.Errorf("failed to hash model config: %w", err)
	}
	return mc, window, nil
}

// newRecommender returns nil (deterministic selection) unless the advisor is enabled
func (a *app) newRecommender() advisor.Recommender {
	if !a.cfg.Advisor.Enabled {
		return nil
	}

	var limiter httputil.Limiter = httputil.PerMinute(a.cfg.Advisor.RequestsPerMinute)
	if a.redis.Enabled() {
		// 워커 여러 대가 같은 한도를 공유
		limiter = httputil.RedisLimiter{
			Limiter: redis.NewRateLimiter(a.redis, cachePrefix),
			Config:  redis.AdvisorRateLimit(a.cfg.Advisor.RequestsPerMinute),
		}
	}
	doer := httputil.New(a.cfg, a.log.WithComponent("advisor.http")).WithLimiter(limiter)

	return advisor.NewOpenAIRecommender(advisor.OpenAIConfig{
		APIKey:          a.cfg.Advisor.APIKey,
		BaseURL:         a.cfg.Advisor.BaseURL,
		Model:           a.cfg.Advisor.Model,
		BreakerFailures: uint32(a.cfg.Advisor.BreakerFailures),
		BreakerCooldown: a.cfg.Advisor.BreakerCooldown,
	}, doer, a.log)
}

// health reports store readiness for /healthz
func (a *app) health(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Ping(ctx)
}

// Close releases connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
