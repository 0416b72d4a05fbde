package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/events"
	"github.com/wonny/genxsop/backend/pkg/logger"
	"github.com/wonny/genxsop/backend/pkg/metrics"
	"github.com/wonny/genxsop/backend/pkg/tracing"
)

// Verify interface compliance
var _ Scheduler = (*Pool)(nil)

const (
	defaultWorkers      = 2
	defaultQueueSize    = 64
	defaultPollInterval = 5 * time.Second
	defaultListLimit    = 50
	defaultMaxHorizon   = 24
)

// Pool is a fixed-size worker pool over a job repository
type Pool struct {
	repo      contracts.JobRepository
	runner    Runner
	publisher events.Publisher
	metrics   *metrics.Collector
	logger    *logger.Logger
	now       func() time.Time
	newID     func() string

	workers      int
	maxHorizon   int
	pollInterval time.Duration
	queue        chan string

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of concurrent jobs.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxHorizon rejects jobs the orchestrator would refuse.
func WithMaxHorizon(months int) Option {
	return func(p *Pool) {
		if months > 0 {
			p.maxHorizon = months
		}
	}
}

// WithQueueSize sets the in-process dispatch buffer.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queue = make(chan string, n)
		}
	}
}

// WithPollInterval sets how often queued rows are re-read from the repository.
// Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) { p.pollInterval = d }
}

// WithPublisher sets the event publisher for cleanup summaries.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pool) { p.publisher = pub }
}

// WithMetrics enables Prometheus job metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pool) { p.metrics = c }
}

// WithLogger sets the pool logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pool) { p.logger = l.WithComponent("jobs.pool") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithIDGenerator overrides uuid job ids.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pool) { p.newID = fn }
}

// NewPool creates a pool. Call Start to begin executing jobs; without Start
// the pool only manages rows (enqueue from the CLI, cancel, cleanup).
func NewPool(repo contracts.JobRepository, runner Runner, opts ...Option) *Pool {
	p := &Pool{
		repo:         repo,
		runner:       runner,
		publisher:    events.Nop{},
		logger:       logger.Nop(),
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
		workers:      defaultWorkers,
		maxHorizon:   defaultMaxHorizon,
		pollInterval: defaultPollInterval,
		queue:        make(chan string, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers and the queue poller. They stop when ctx is done;
// a job already running is allowed to finish.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	if p.pollInterval > 0 {
		p.wg.Add(1)
		go p.poll(ctx)
	}

	p.logger.WithFields(map[string]interface{}{
		"workers":       p.workers,
		"queue_size":    cap(p.queue),
		"poll_interval": p.pollInterval.String(),
	}).Info("Job pool started")
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// dispatch hands a job id to the workers without blocking.
// 큐가 가득 차면 poller가 다시 집어감
func (p *Pool) dispatch(jobID string) {
	if !p.running() {
		return
	}
	select {
	case p.queue <- jobID:
	default:
		p.logger.WithField("job_id", jobID).Warn("Job queue full, deferring to poller")
	}
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	log := p.logger.WithField("worker", n)
	for {
		select {
		case <-ctx.Done():
			log.Debug("Worker stopped")
			return
		case jobID := <-p.queue:
			// 종료 신호와 무관하게 실행 중인 작업은 끝까지
			p.process(context.WithoutCancel(ctx), jobID)
		}
	}
}

func (p *Pool) poll(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep re-dispatches queued rows, including ones enqueued by other processes.
// A row dispatched twice is harmless: only one Claim can succeed.
func (p *Pool) sweep(ctx context.Context) {
	queued, err := p.repo.ListQueued(ctx, cap(p.queue))
	if err != nil {
		if ctx.Err() == nil {
			p.logger.WithError(err).Warn("Queue poll failed")
		}
		return
	}
	for _, job := range queued {
		p.dispatch(job.JobID)
	}
}

// process runs one job through queued → running → completed|failed.
// Cancellation is checked by the claim (before pickup), by the runner's
// checkpoint and by the completion CAS (before write-back).
func (p *Pool) process(ctx context.Context, jobID string) {
	log := p.logger.WithField("job_id", jobID)

	claimed, err := p.repo.Claim(ctx, jobID, p.now())
	if err != nil {
		log.WithError(err).Error("Job claim failed")
		return
	}
	if !claimed {
		log.Debug("Job no longer queued, skipping")
		return
	}
	p.metrics.JobTransition(contracts.JobRunning)

	job, err := p.repo.Get(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Job reload failed")
		// claim 이후라 running으로 남지 않게 failed 처리
		if ok, ferr := p.repo.Fail(ctx, jobID, "reload claimed job: "+err.Error(), p.now()); ferr != nil {
			log.WithError(ferr).Error("Job failure write failed")
		} else if ok {
			p.metrics.JobTransition(contracts.JobFailed)
		}
		return
	}
	log.WithFields(map[string]interface{}{
		"product_id": job.ProductID,
		"horizon":    job.HorizonMonths,
	}).Info("Job started")

	started := p.now()
	result, runErr := p.execute(ctx, *job)
	elapsed := p.now().Sub(started)

	if runErr != nil {
		if errors.Is(runErr, ErrCancelled) {
			log.Info("Job cancelled during execution, nothing written")
			return
		}
		ok, err := p.repo.Fail(ctx, jobID, runErr.Error(), p.now())
		switch {
		case err != nil:
			log.WithError(err).Error("Job failure write failed")
		case !ok:
			log.Info("Job cancelled during execution, error discarded")
		default:
			p.metrics.JobTransition(contracts.JobFailed)
			p.metrics.ObserveJob(elapsed)
			log.WithError(runErr).Warn("Job failed")
		}
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		if _, ferr := p.repo.Fail(ctx, jobID, fmt.Sprintf("encode result: %v", err), p.now()); ferr != nil {
			log.WithError(ferr).Error("Job failure write failed")
		}
		return
	}
	ok, err := p.repo.Complete(ctx, jobID, payload, p.now())
	switch {
	case err != nil:
		log.WithError(err).Error("Job completion write failed")
	case !ok:
		log.Info("Job cancelled during execution, result discarded")
	default:
		p.metrics.JobTransition(contracts.JobCompleted)
		p.metrics.ObserveJob(elapsed)
		log.WithFields(map[string]interface{}{
			"records":  result.RecordsCreated,
			"duration": elapsed.String(),
		}).Info("Job completed")
	}
}

// execute calls the runner and turns a panic into a job error.
func (p *Pool) execute(ctx context.Context, job contracts.ForecastJob) (result *contracts.JobResult, err error) {
	ctx, span := tracing.Start(ctx, "jobs.execute", tracing.Job(job.JobID), tracing.Product(job.ProductID))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		tracing.End(span, err)
	}()

	result, err = p.runner.ExecuteJob(ctx, job, p.checkpoint(job.JobID))
	if err == nil && result == nil {
		err = fmt.Errorf("runner returned no result")
	}
	return result, err
}

// checkpoint reports ErrCancelled once the row has left running.
func (p *Pool) checkpoint(jobID string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		job, err := p.repo.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != contracts.JobRunning {
			return fmt.Errorf("%w: status %s", ErrCancelled, job.Status)
		}
		return nil
	}
}
