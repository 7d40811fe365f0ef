package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobMetrics tracks job queue lifecycle counters.
type JobMetrics struct {
	enqueued  *prometheus.CounterVec
	deduped   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	retried   *prometheus.CounterVec
	stalled   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{
		enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteforge_jobs_enqueued_total",
			Help: "Jobs enqueued, by type.",
		}, []string{"type"}),
		deduped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteforge_jobs_deduped_total",
			Help: "Job submissions short-circuited by an existing idempotency claim.",
		}, []string{"type"}),
		completed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteforge_jobs_completed_total",
			Help: "Jobs that reached the completed state.",
		}, []string{"type"}),
		failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteforge_jobs_failed_total",
			Help: "Jobs that reached the terminal failed state.",
		}, []string{"type"}),
		retried: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteforge_jobs_retried_total",
			Help: "Job attempts rescheduled after a retryable failure.",
		}, []string{"type"}),
		stalled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteforge_jobs_stalled_total",
			Help: "Jobs whose worker heartbeat expired.",
		}, []string{"type"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quoteforge_job_duration_seconds",
			Help:    "Job processing duration per attempt.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"type"}),
	}
}

func (m *JobMetrics) IncEnqueued(jobType string)  { m.enqueued.WithLabelValues(jobType).Inc() }
func (m *JobMetrics) IncDeduped(jobType string)   { m.deduped.WithLabelValues(jobType).Inc() }
func (m *JobMetrics) IncCompleted(jobType string) { m.completed.WithLabelValues(jobType).Inc() }
func (m *JobMetrics) IncFailed(jobType string)    { m.failed.WithLabelValues(jobType).Inc() }
func (m *JobMetrics) IncRetried(jobType string)   { m.retried.WithLabelValues(jobType).Inc() }
func (m *JobMetrics) IncStalled(jobType string)   { m.stalled.WithLabelValues(jobType).Inc() }

func (m *JobMetrics) ObserveDuration(jobType string, d time.Duration) {
	m.duration.WithLabelValues(jobType).Observe(d.Seconds())
}

// PricingMetrics tracks the synchronous pricing path.
type PricingMetrics struct {
	computes  *prometheus.CounterVec
	cacheHits prometheus.Counter
	latency   prometheus.Histogram
}

func NewPricingMetrics() *PricingMetrics {
	return &PricingMetrics{
		computes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteforge_pricing_computes_total",
			Help: "Price matrix computations, by process.",
		}, []string{"process"}),
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quoteforge_pricing_cache_hits_total",
			Help: "Price matrix computations served from the input-hash cache.",
		}),
		latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quoteforge_pricing_compute_seconds",
			Help:    "Latency of the synchronous pricing path.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

func (m *PricingMetrics) IncCompute(process string) { m.computes.WithLabelValues(process).Inc() }
func (m *PricingMetrics) IncCacheHit()              { m.cacheHits.Inc() }
func (m *PricingMetrics) ObserveLatency(d time.Duration) {
	m.latency.Observe(d.Seconds())
}
