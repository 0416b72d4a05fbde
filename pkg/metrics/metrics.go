// Package metrics exposes Prometheus collectors for jobs and forecast runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

const namespace = "genxsop"

// Collector holds every engine metric on a private registry.
// Methods are nil-safe so callers may run without metrics.
type Collector struct {
	registry         *prometheus.Registry
	jobTransitions   *prometheus.CounterVec
	jobDuration      prometheus.Histogram
	jobStatus        *prometheus.GaugeVec
	oldestQueuedAge  prometheus.Gauge
	forecastRuns     *prometheus.CounterVec
	forecastDuration prometheus.Histogram
}

// New registers all collectors on a fresh registry
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Forecast job state transitions.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall time of forecast job execution.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		jobStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "by_status",
			Help:      "Forecast jobs per status at the last metrics snapshot.",
		}, []string{"status"}),
		oldestQueuedAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "oldest_queued_age_seconds",
			Help:      "Age of the oldest queued job, 0 when the queue is empty.",
		}),
		forecastRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "runs_total",
			Help:      "Forecast generations by selected and executed model.",
		}, []string{"selected", "executed", "fallback"}),
		forecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "generate_duration_seconds",
			Help:      "Latency of one forecast generation including backtests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, col := range []prometheus.Collector{
		c.jobTransitions, c.jobDuration, c.jobStatus, c.oldestQueuedAge,
		c.forecastRuns, c.forecastDuration,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler serves the registry in Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests, extra collectors)
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// JobTransition counts one job reaching status
func (c *Collector) JobTransition(status contracts.JobStatus) {
	if c == nil {
		return
	}
	c.jobTransitions.WithLabelValues(string(status)).Inc()
}

// ObserveJob records the duration of one job execution
func (c *Collector) ObserveJob(d time.Duration) {
	if c == nil {
		return
	}
	c.jobDuration.Observe(d.Seconds())
}

// SetJobMetrics copies a queue snapshot into gauges
func (c *Collector) SetJobMetrics(m *contracts.JobMetrics) {
	if c == nil || m == nil {
		return
	}
	for status, count := range m.StatusCounts {
		c.jobStatus.WithLabelValues(string(status)).Set(float64(count))
	}
	age := 0.0
	if m.OldestQueuedAgeSeconds != nil {
		age = *m.OldestQueuedAgeSeconds
	}
	c.oldestQueuedAge.Set(age)
}

// ForecastRun counts one generation
func (c *Collector) ForecastRun(selected, executed contracts.ModelID, fallback bool, d time.Duration) {
	if c == nil {
		return
	}
	c.forecastRuns.WithLabelValues(string(selected), string(executed), strconv.FormatBool(fallback)).Inc()
	c.forecastDuration.Observe(d.Seconds())
}
