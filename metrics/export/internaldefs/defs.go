package internaldefs

import (
	reqgate "github.com/reqgate/reqgate"
)

// CounterDef binds a gate counter to its stable exported name.
type CounterDef struct {
	ID   reqgate.MetricID
	Name string
	Help string
}

// HistogramDef binds a gate histogram to its stable exported name.
type HistogramDef struct {
	ID   reqgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: reqgate.MetricRequestAllowed, Name: "reqgate_request_allowed_total", Help: "Requests admitted after policy evaluation."},
	{ID: reqgate.MetricRequestPassthrough, Name: "reqgate_request_passthrough_total", Help: "Requests matching no rate-limit policy."},
	{ID: reqgate.MetricCSRFIssued, Name: "reqgate_csrf_issued_total", Help: "Issued CSRF tokens."},
	{ID: reqgate.MetricCSRFVerified, Name: "reqgate_csrf_verified_total", Help: "Successful CSRF verifications."},
	{ID: reqgate.MetricCSRFRejected, Name: "reqgate_csrf_rejected_total", Help: "Requests rejected for a missing or mismatched CSRF token."},
	{ID: reqgate.MetricThrottled, Name: "reqgate_throttled_total", Help: "Requests rejected by the global throughput throttle."},
	{ID: reqgate.MetricRateLimited, Name: "reqgate_rate_limited_total", Help: "Rate-limit rejections across all tiers."},
	{ID: reqgate.MetricAuthLimited, Name: "reqgate_auth_limited_total", Help: "Rate-limit rejections in the auth tier."},
	{ID: reqgate.MetricWriteLimited, Name: "reqgate_write_limited_total", Help: "Rate-limit rejections in the write tier."},
	{ID: reqgate.MetricReadLimited, Name: "reqgate_read_limited_total", Help: "Rate-limit rejections in the read tier."},
	{ID: reqgate.MetricSensitiveLimited, Name: "reqgate_sensitive_limited_total", Help: "Rate-limit rejections in the sensitive tier."},
	{ID: reqgate.MetricSearchLimited, Name: "reqgate_search_limited_total", Help: "Rate-limit rejections in the search tier."},
	{ID: reqgate.MetricSweepRemoved, Name: "reqgate_sweep_removed_total", Help: "Window records evicted by the periodic sweep."},
	{ID: reqgate.MetricStoreError, Name: "reqgate_store_error_total", Help: "Shared window store failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: reqgate.MetricCheckLatency, Name: "reqgate_check_latency_seconds", Help: "Gate check latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// gate's microsecond-resolution buckets.
var HistogramBounds = []string{
	"0.000005",
	"0.00001",
	"0.000025",
	"0.00005",
	"0.0001",
	"0.00025",
	"0.001",
	"+Inf",
}

// HistogramBoundSuffix provides OTel-safe instrument name suffixes for
// each bucket bound.
var HistogramBoundSuffix = []string{
	"5us",
	"10us",
	"25us",
	"50us",
	"100us",
	"250us",
	"1ms",
	"inf",
}

// NormalizeBuckets copies a snapshot bucket slice into the fixed-width
// array exporters render from, tolerating short or missing slices.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms require.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
