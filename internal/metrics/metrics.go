// Package metrics provides application-level counters using atomics.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds counters for device traffic, cache effectiveness and
// frontload progress. The zero value is ready to use.
type Metrics struct {
	// Device channel
	deviceCallsTotal   atomic.Int64
	deviceErrorsTotal  atomic.Int64
	deviceLatencyNanos atomic.Int64

	// Address cache
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	// Frontload
	pathsDerived atomic.Int64
	pathsSkipped atomic.Int64

	// Pricing service
	balanceRefreshes      atomic.Int64
	balanceRefreshErrors  atomic.Int64
	pricingRequestsTotal  atomic.Int64
	pricingRequestsFailed atomic.Int64
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordDeviceCall records one request/response exchange with the device.
func (m *Metrics) RecordDeviceCall(duration time.Duration, err error) {
	m.deviceCallsTotal.Add(1)
	m.deviceLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.deviceErrorsTotal.Add(1)
	}
}

// RecordCacheHit records an address cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records an address cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordPathDerived records an address or xpub fetched from the device.
func (m *Metrics) RecordPathDerived() {
	m.pathsDerived.Add(1)
}

// RecordPathSkipped records a path or network that frontload skipped.
func (m *Metrics) RecordPathSkipped() {
	m.pathsSkipped.Add(1)
}

// RecordBalanceRefresh records a balance refresh attempt.
func (m *Metrics) RecordBalanceRefresh(err error) {
	m.balanceRefreshes.Add(1)
	if err != nil {
		m.balanceRefreshErrors.Add(1)
	}
}

// RecordPricingRequest records an HTTP call to the pricing service.
func (m *Metrics) RecordPricingRequest(err error) {
	m.pricingRequestsTotal.Add(1)
	if err != nil {
		m.pricingRequestsFailed.Add(1)
	}
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	DeviceCallsTotal      int64
	DeviceErrorsTotal     int64
	DeviceLatencyNanos    int64
	CacheHits             int64
	CacheMisses           int64
	PathsDerived          int64
	PathsSkipped          int64
	BalanceRefreshes      int64
	BalanceRefreshErrors  int64
	PricingRequestsTotal  int64
	PricingRequestsFailed int64
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		DeviceCallsTotal:      m.deviceCallsTotal.Load(),
		DeviceErrorsTotal:     m.deviceErrorsTotal.Load(),
		DeviceLatencyNanos:    m.deviceLatencyNanos.Load(),
		CacheHits:             m.cacheHits.Load(),
		CacheMisses:           m.cacheMisses.Load(),
		PathsDerived:          m.pathsDerived.Load(),
		PathsSkipped:          m.pathsSkipped.Load(),
		BalanceRefreshes:      m.balanceRefreshes.Load(),
		BalanceRefreshErrors:  m.balanceRefreshErrors.Load(),
		PricingRequestsTotal:  m.pricingRequestsTotal.Load(),
		PricingRequestsFailed: m.pricingRequestsFailed.Load(),
	}
}

// DeviceCallsTotal returns the number of device exchanges.
func (m *Metrics) DeviceCallsTotal() int64 {
	return m.deviceCallsTotal.Load()
}

// DeviceLatencyAvgMs returns the average device exchange latency in
// milliseconds, or 0 before the first call.
func (m *Metrics) DeviceLatencyAvgMs() float64 {
	calls := m.deviceCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.deviceLatencyNanos.Load()) / float64(calls) / 1e6
}

// CacheHitRate returns the cache hit rate as a percentage (0-100).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.deviceCallsTotal.Store(0)
	m.deviceErrorsTotal.Store(0)
	m.deviceLatencyNanos.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.pathsDerived.Store(0)
	m.pathsSkipped.Store(0)
	m.balanceRefreshes.Store(0)
	m.balanceRefreshErrors.Store(0)
	m.pricingRequestsTotal.Store(0)
	m.pricingRequestsFailed.Store(0)
}
