package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/internal/imagecache"
)

const namespace = "imageviewer"

// CacheMetrics exports image cache statistics
type CacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions *prometheus.CounterVec
	entries   prometheus.Gauge
	bytes     prometheus.Gauge
}

// PoolMetrics exports priority worker pool statistics
type PoolMetrics struct {
	submitted *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// DecodeMetrics exports RAW decode pool statistics
type DecodeMetrics struct {
	decoded  *prometheus.CounterVec
	deferred prometheus.Counter
	duration prometheus.Histogram
}

// NewCacheMetrics creates the cache metrics and registers them with reg.
// A nil registerer leaves them unregistered.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of images served from the cache",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of image lookups not found in the cache",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Number of images removed from the cache",
		}, []string{"reason"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of images in the cache",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "Approximate size of the cached bitmaps",
		}),
	}
	register(reg, m.hits, m.misses, m.evictions, m.entries, m.bytes)
	return m
}

func (m *CacheMetrics) Hit() {
	m.hits.Inc()
}

func (m *CacheMetrics) Miss() {
	m.misses.Inc()
}

func (m *CacheMetrics) Evict(reason imagecache.EvictReason, count int) {
	m.evictions.WithLabelValues(reason.String()).Add(float64(count))
}

func (m *CacheMetrics) Size(entries int, byteSize int64) {
	m.entries.Set(float64(entries))
	m.bytes.Set(float64(byteSize))
}

func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "submitted_total",
			Help:      "Number of tasks submitted to the worker pool",
		}, []string{"priority"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "cancelled_total",
			Help:      "Number of queued tasks cancelled before they ran",
		}, []string{"priority"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_duration_seconds",
			Help:      "Time from submission to task completion",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"priority"}),
	}
	register(reg, m.submitted, m.cancelled, m.duration)
	return m
}

func (m *PoolMetrics) Submitted(priority apitype.Priority) {
	m.submitted.WithLabelValues(priority.String()).Inc()
}

func (m *PoolMetrics) Cancelled(priority apitype.Priority, count int) {
	m.cancelled.WithLabelValues(priority.String()).Add(float64(count))
}

func (m *PoolMetrics) Completed(priority apitype.Priority, duration time.Duration) {
	m.duration.WithLabelValues(priority.String()).Observe(duration.Seconds())
}

func NewDecodeMetrics(reg prometheus.Registerer) *DecodeMetrics {
	m := &DecodeMetrics{
		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raw_decode",
			Name:      "decoded_total",
			Help:      "Number of full RAW decodes by outcome",
		}, []string{"result"}),
		deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raw_decode",
			Name:      "deferred_total",
			Help:      "Number of times a decode was postponed because memory was low",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "raw_decode",
			Name:      "duration_seconds",
			Help:      "Duration of full RAW decodes",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	register(reg, m.decoded, m.deferred, m.duration)
	return m
}

func (m *DecodeMetrics) Decoded(success bool, duration time.Duration) {
	if success {
		m.decoded.WithLabelValues("success").Inc()
	} else {
		m.decoded.WithLabelValues("failure").Inc()
	}
	m.duration.Observe(duration.Seconds())
}

func (m *DecodeMetrics) Deferred() {
	m.deferred.Inc()
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) {
	if reg == nil {
		return
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			// Registering twice is fine, e.g. in tests
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
