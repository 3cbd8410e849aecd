package goTrust

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter or histogram. IDs are dense so the
// engine can index fixed arrays without locking.
type MetricID uint16

const (
	// MetricEvaluateAllowed counts authenticated requests allowed through.
	MetricEvaluateAllowed MetricID = iota
	// MetricEvaluateRedirected counts requests redirected to the step-up challenge.
	MetricEvaluateRedirected
	// MetricEvaluatePassThrough counts unauthenticated requests passed through untouched.
	MetricEvaluatePassThrough
	// MetricEvaluateFailure counts Evaluate calls that returned an error.
	MetricEvaluateFailure
	// MetricFirstObservation counts requests from principals with no stored context.
	MetricFirstObservation
	// MetricContextUpdated counts expected-context writes.
	MetricContextUpdated
	// MetricGeoLookupDegraded counts requests whose location resolved to Unknown.
	MetricGeoLookupDegraded
	// MetricSessionWarning counts decisions that carried the expiry warning.
	MetricSessionWarning
	// MetricRiskTierLow is an exported constant or variable used by the trust engine.
	MetricRiskTierLow
	// MetricRiskTierMedium is an exported constant or variable used by the trust engine.
	MetricRiskTierMedium
	// MetricRiskTierHigh is an exported constant or variable used by the trust engine.
	MetricRiskTierHigh
	// MetricChallengeIssued counts freshly generated one-time codes.
	MetricChallengeIssued
	// MetricChallengeReused counts challenge entries that kept a pending code.
	MetricChallengeReused
	// MetricChallengeResent counts explicit resends.
	MetricChallengeResent
	// MetricChallengeVerified counts successful step-ups.
	MetricChallengeVerified
	// MetricChallengeMismatch is an exported constant or variable used by the trust engine.
	MetricChallengeMismatch
	// MetricChallengeExpired is an exported constant or variable used by the trust engine.
	MetricChallengeExpired
	// MetricChallengeRateLimited is an exported constant or variable used by the trust engine.
	MetricChallengeRateLimited
	// MetricNotificationFailed counts code deliveries the notifier rejected.
	MetricNotificationFailed
	// MetricSessionCreated is an exported constant or variable used by the trust engine.
	MetricSessionCreated
	// MetricLogout is an exported constant or variable used by the trust engine.
	MetricLogout
	// MetricEvaluateLatency is the Evaluate latency histogram.
	MetricEvaluateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of every bucket but the last,
// which is unbounded. Exporters mirror these in seconds.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// counter sits alone on a cache line; hot counters are bumped from every
// request goroutine.
type counter struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds in-process counters. A nil or disabled *Metrics accepts every
// call and records nothing.
type Metrics struct {
	enabled  bool
	latency  bool
	counters [metricIDCount]counter
	evalHist [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters and, when latency
// histograms are on, the per-bucket Evaluate latency counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a collector configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether Evaluate latency is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d in the histogram id. Only [MetricEvaluateLatency] has a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricEvaluateLatency {
		return
	}
	m.evalHist[latencyBucket(d)].Add(1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies the current values. Counters are read one at a time, so a
// snapshot taken under load is not a single atomic cut.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].n.Load()
	}
	if m.latency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.evalHist[i].Load()
		}
		snap.Histograms[MetricEvaluateLatency] = buckets
	}
	return snap
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
