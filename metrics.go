package authgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID uint16

const (
	// MetricGateAuthenticated counts requests resolved to a full identity.
	MetricGateAuthenticated MetricID = iota
	// MetricGateNoCredential counts requests arriving without a credential cookie.
	MetricGateNoCredential
	// MetricGateInvalidCredential counts credentials failing signature or shape checks.
	MetricGateInvalidCredential
	// MetricGateExpiredSession counts credentials whose embedded session is gone or expired.
	MetricGateExpiredSession
	// MetricGateTwoFactorPending counts requests rejected while a second factor is pending.
	MetricGateTwoFactorPending
	// MetricGatePrivilegeRejected counts valid sessions failing the elevated predicate.
	MetricGatePrivilegeRejected
	// MetricGateStoreFailure counts gate evaluations aborted by a backing-store failure.
	MetricGateStoreFailure
	// MetricCacheHit counts snapshot resolutions served from the identity cache.
	MetricCacheHit
	// MetricCacheMiss counts snapshot resolutions that fell back to the user store.
	MetricCacheMiss
	// MetricSessionCreated counts successful session creations.
	MetricSessionCreated
	// MetricSessionQuotaRejected counts logins rejected at the session quota.
	MetricSessionQuotaRejected
	// MetricSessionRevoked counts explicit session deletions (logout and revocation).
	MetricSessionRevoked
	// MetricSessionSwept counts records removed by the expiry sweep.
	MetricSessionSwept
	// MetricSecondFactorSuccess counts OTP/backup-code verifications that cleared the pending flag.
	MetricSecondFactorSuccess
	// MetricSecondFactorFailure counts rejected OTP/backup-code submissions.
	MetricSecondFactorFailure
	// MetricSecondFactorRateLimited counts submissions rejected by the attempt budget.
	MetricSecondFactorRateLimited
	// MetricOAuthStateIssued counts issued state handshakes.
	MetricOAuthStateIssued
	// MetricOAuthStateConsumed counts handshakes completed exactly once.
	MetricOAuthStateConsumed
	// MetricOAuthStateMismatch counts missing, replayed, or mismatched state callbacks.
	MetricOAuthStateMismatch
	// MetricLinkRejected counts provider-link attempts rejected by the linking invariant.
	MetricLinkRejected
	// MetricAuthenticateLatency is the gate's end-to-end latency histogram.
	MetricAuthenticateLatency
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

// Metrics is the in-process counter set. All mutation is atomic; a nil or
// disabled Metrics is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histogram
// buckets, safe to hand to exporters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
