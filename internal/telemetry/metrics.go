// Package telemetry wires Prometheus instrumentation for the generation
// pipeline. It is the engine-domain rework of the teacher's
// internal/service/metrics_service.go: the HTTP-request histograms are gone
// (there is no HTTP surface here) and replaced with stage/solve duration
// histograms, cluster-outcome counters, and an in-flight-clusters gauge.
package telemetry

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates the Prometheus collectors the saga controller and
// stage components report into.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	stageDuration   *prometheus.HistogramVec
	solveDuration   prometheus.Histogram
	clusterOutcomes *prometheus.CounterVec
	clustersInFlight prometheus.Gauge
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// New registers the core collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_stage_duration_seconds",
		Help:    "Duration of each generation pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	solveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_solve_duration_seconds",
		Help:    "End-to-end duration of a single generation job",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	clusterOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_cluster_outcomes_total",
		Help: "Cluster solve outcomes by result",
	}, []string{"outcome"}) // feasible|sentineled

	clustersInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_clusters_in_flight",
		Help: "Number of clusters currently being solved in parallel",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache read operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache write operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		stageDuration, solveDuration, clusterOutcomes, clustersInFlight,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, goroutines,
	)

	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		stageDuration:    stageDuration,
		solveDuration:    solveDuration,
		clusterOutcomes:  clusterOutcomes,
		clustersInFlight: clustersInFlight,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveStage records how long a named pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveSolve records the end-to-end duration of a completed job.
func (m *Metrics) ObserveSolve(d time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.Observe(d.Seconds())
}

// RecordClusterOutcome increments the feasible/sentineled counter.
func (m *Metrics) RecordClusterOutcome(feasible bool) {
	if m == nil {
		return
	}
	if feasible {
		m.clusterOutcomes.WithLabelValues("feasible").Inc()
	} else {
		m.clusterOutcomes.WithLabelValues("sentineled").Inc()
	}
}

// ClusterStarted / ClusterFinished track the in-flight parallel cluster gauge.
func (m *Metrics) ClusterStarted() {
	if m == nil {
		return
	}
	m.clustersInFlight.Inc()
}

func (m *Metrics) ClusterFinished() {
	if m == nil {
		return
	}
	m.clustersInFlight.Dec()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *Metrics) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration of cache write operations.
func (m *Metrics) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *Metrics) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}
