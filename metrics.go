package reqgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one of the gate's counters or histograms.
type MetricID uint16

const (
	// MetricRequestAllowed counts requests admitted after policy evaluation.
	MetricRequestAllowed MetricID = iota
	// MetricRequestPassthrough counts requests that matched no policy.
	MetricRequestPassthrough
	// MetricCSRFIssued counts issued CSRF tokens.
	MetricCSRFIssued
	// MetricCSRFVerified counts successful CSRF verifications.
	MetricCSRFVerified
	// MetricCSRFRejected counts requests rejected for a missing or
	// mismatched CSRF token.
	MetricCSRFRejected
	// MetricThrottled counts requests rejected by the global throttle.
	MetricThrottled
	// MetricRateLimited counts rejections across all policy tiers.
	MetricRateLimited
	// MetricAuthLimited counts rejections in the auth tier.
	MetricAuthLimited
	// MetricWriteLimited counts rejections in the write tier.
	MetricWriteLimited
	// MetricReadLimited counts rejections in the read tier.
	MetricReadLimited
	// MetricSensitiveLimited counts rejections in the sensitive tier.
	MetricSensitiveLimited
	// MetricSearchLimited counts rejections in the search tier.
	MetricSearchLimited
	// MetricSweepRemoved counts window records evicted by the sweeper.
	MetricSweepRemoved
	// MetricStoreError counts shared-store failures (admitted fail-open
	// or rejected fail-closed per Config.Store.FailOpen).
	MetricStoreError
	// MetricCheckLatency is the Check latency histogram. Only populated
	// when Config.Metrics.EnableLatencyHistogram is set.
	MetricCheckLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the gate's lock-free counter set. All methods are safe for
// concurrent use; a nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters, suitable for
// export. Histograms is non-empty only when latency recording is on.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a counter set honoring the given config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistogram,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to the counter.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a latency sample into the Check histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricCheckLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters (and histogram buckets when enabled) into
// an exportable value.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCheckLatency].buckets[i])
		}
		s.Histograms[MetricCheckLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 5:
		return 0
	case us <= 10:
		return 1
	case us <= 25:
		return 2
	case us <= 50:
		return 3
	case us <= 100:
		return 4
	case us <= 250:
		return 5
	case us <= 1000:
		return 6
	default:
		return 7
	}
}

func limitedMetricFor(class PolicyClass) MetricID {
	switch class {
	case ClassAuth:
		return MetricAuthLimited
	case ClassWrite:
		return MetricWriteLimited
	case ClassRead:
		return MetricReadLimited
	case ClassSensitive:
		return MetricSensitiveLimited
	case ClassSearch:
		return MetricSearchLimited
	default:
		return MetricRateLimited
	}
}
