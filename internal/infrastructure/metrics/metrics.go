// Package metrics exposes Prometheus instruments for sequence issuing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"seqnum/internal/core/numerator"
	"seqnum/internal/domain/sequence"
	"seqnum/internal/infrastructure/storage/postgres"
)

const namespace = "seqnum"

// Metrics implements sequence.Observer.
type Metrics struct {
	issued  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	resets  *prometheus.CounterVec
	busy    prometheus.Counter
}

var _ sequence.Observer = (*Metrics)(nil)

// New registers the sequence instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		issued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_issued_total",
			Help:      "Sequence values issued, by implementation.",
		}, []string{"implementation"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "advance_duration_seconds",
			Help:      "Time spent advancing a sequence.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"implementation"}),
		resets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Automatic counter restarts, by reset period.",
		}, []string{"period"}),
		busy: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_busy_total",
			Help:      "Row-backed sequence calls rejected because the row was locked.",
		}),
	}
}

// ValueIssued implements sequence.Observer.
func (m *Metrics) ValueIssued(impl numerator.Implementation, elapsed time.Duration) {
	m.issued.WithLabelValues(string(impl)).Inc()
	m.latency.WithLabelValues(string(impl)).Observe(elapsed.Seconds())
}

// Reset implements sequence.Observer.
func (m *Metrics) Reset(period numerator.Period) {
	m.resets.WithLabelValues(string(period)).Inc()
}

// Busy implements sequence.Observer.
func (m *Metrics) Busy() {
	m.busy.Inc()
}

// PoolStatter reports connection pool counters; *postgres.Pool implements it.
type PoolStatter interface {
	Stats() postgres.PoolStats
}

// RegisterPool exposes connection pool gauges read on scrape.
func RegisterPool(reg prometheus.Registerer, pool PoolStatter) {
	factory := promauto.With(reg)
	gauge := func(name, help string, read func(postgres.PoolStats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return read(pool.Stats())
		})
	}

	gauge("total_conns", "Open connections.", func(s postgres.PoolStats) float64 { return float64(s.TotalConns) })
	gauge("acquired_conns", "Connections in use.", func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) })
	gauge("idle_conns", "Idle connections.", func(s postgres.PoolStats) float64 { return float64(s.IdleConns) })
	gauge("max_conns", "Pool size limit.", func(s postgres.PoolStats) float64 { return float64(s.MaxConns) })
	gauge("empty_acquires", "Acquires that waited for a free connection.", func(s postgres.PoolStats) float64 {
		return float64(s.EmptyAcquireCount)
	})
}

// CacheSource is the definition cache as seen by metrics.
type CacheSource interface {
	Len() int
	OnInvalidation(func(code string))
}

// RegisterCache exposes the number of cached codes and counts invalidations.
func RegisterCache(reg prometheus.Registerer, c CacheSource) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "codes",
		Help:      "Sequence codes held in the definition cache.",
	}, func() float64 {
		return float64(c.Len())
	})
	invalidations := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Cache invalidations, local writes and notifications alike.",
	})
	c.OnInvalidation(func(string) { invalidations.Inc() })
}
