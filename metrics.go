package jwtauth

import (
	"sync/atomic"
	"time"

	"github.com/zeroing/jwtauth/jwt"
)

// MetricID names one engine counter or histogram.
type MetricID uint16

const (
	MetricTokenIssued MetricID = iota
	MetricTokenIssueFailure
	MetricValidateSuccess
	MetricValidateMalformed
	MetricValidateSignatureInvalid
	MetricValidateExpired
	MetricValidateClaimMissing
	MetricValidateSubjectMismatch
	MetricValidateIssuedBeforeReset
	MetricValidateUserNotFound
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricPasswordUpgraded
	MetricPasswordReset
	MetricStoreError
	// MetricValidateLatency is the only histogram; it times Authenticate.
	MetricValidateLatency
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

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are non-cumulative with upper
// bounds of 5, 10, 25, 50, 100, 250 and 500 ms plus an overflow bucket.
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

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
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
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

// validateFailureMetric maps a rejection kind to its counter.
func validateFailureMetric(kind jwt.ErrorKind) MetricID {
	switch kind {
	case jwt.KindMalformed:
		return MetricValidateMalformed
	case jwt.KindSignature:
		return MetricValidateSignatureInvalid
	case jwt.KindExpired:
		return MetricValidateExpired
	case jwt.KindClaimMissing:
		return MetricValidateClaimMissing
	case jwt.KindSubjectMismatch:
		return MetricValidateSubjectMismatch
	case jwt.KindRevokedByReset:
		return MetricValidateIssuedBeforeReset
	default:
		return MetricValidateMalformed
	}
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
