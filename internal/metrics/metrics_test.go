package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

func TestMetrics_RecordDeviceCall(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordDeviceCall(100*time.Millisecond, nil)
	assert.Equal(t, int64(1), m.DeviceCallsTotal())
	assert.Equal(t, int64(0), m.Snapshot().DeviceErrorsTotal)

	m.RecordDeviceCall(300*time.Millisecond, kkerr.ErrTransport)
	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.DeviceCallsTotal)
	assert.Equal(t, int64(1), snap.DeviceErrorsTotal)
	assert.InDelta(t, 200.0, m.DeviceLatencyAvgMs(), 0.001)
}

func TestMetrics_DeviceLatencyNoCalls(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, (&Metrics{}).DeviceLatencyAvgMs(), 0.001)
}

func TestMetrics_CacheHitRate(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	assert.InDelta(t, 0.0, m.CacheHitRate(), 0.001)

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	assert.InDelta(t, 75.0, m.CacheHitRate(), 0.001)
}

func TestMetrics_FrontloadAndPricing(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordPathDerived()
	m.RecordPathDerived()
	m.RecordPathSkipped()
	m.RecordBalanceRefresh(nil)
	m.RecordBalanceRefresh(kkerr.ErrTransport)
	m.RecordPricingRequest(nil)
	m.RecordPricingRequest(kkerr.ErrTimeout)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.PathsDerived)
	assert.Equal(t, int64(1), snap.PathsSkipped)
	assert.Equal(t, int64(2), snap.BalanceRefreshes)
	assert.Equal(t, int64(1), snap.BalanceRefreshErrors)
	assert.Equal(t, int64(2), snap.PricingRequestsTotal)
	assert.Equal(t, int64(1), snap.PricingRequestsFailed)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	m.RecordDeviceCall(time.Millisecond, kkerr.ErrTransport)
	m.RecordCacheHit()
	m.RecordPathDerived()
	m.RecordBalanceRefresh(nil)
	m.RecordPricingRequest(nil)

	m.Reset()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetrics_Concurrent(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordDeviceCall(time.Millisecond, nil)
			m.RecordCacheMiss()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(50), snap.DeviceCallsTotal)
	assert.Equal(t, int64(50), snap.CacheMisses)
}
