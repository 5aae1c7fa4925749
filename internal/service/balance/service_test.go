package balance_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/balance"
)

const deviceID = "DEADBEEF"

// mockPricer answers Portfolio with a canned response and records queries.
type mockPricer struct {
	entries []pricing.PortfolioEntry
	err     error
	queries [][]pricing.PortfolioQuery
}

func (m *mockPricer) Portfolio(_ context.Context, q []pricing.PortfolioQuery) ([]pricing.PortfolioEntry, error) {
	m.queries = append(m.queries, q)
	return m.entries, m.err
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func entry(caip, pubkey, bal, price, value string) pricing.PortfolioEntry {
	return pricing.PortfolioEntry{CAIP: caip, Pubkey: pubkey, Balance: dec(bal), PriceUSD: dec(price), ValueUSD: dec(value)}
}

func setup(t *testing.T, now *time.Time) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"),
		cache.WithMetrics(&metrics.Metrics{}),
		cache.WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	account := []uint32{device.Hardened(84), device.Hardened(0), device.Hardened(0)}
	require.NoError(t, s.SaveAddress(ctx, cache.Address{
		DeviceID: deviceID, CoinName: "Bitcoin", ScriptType: "p2wpkh_xpub",
		Path: account, NetworkID: chain.NetworkBitcoin, Address: "xpubA", Pubkey: "xpubA",
	}))
	require.NoError(t, s.SaveAddress(ctx, cache.Address{
		DeviceID: deviceID, CoinName: "Bitcoin", ScriptType: "p2wpkh",
		Path: append(account, 0, 0), NetworkID: chain.NetworkBitcoin, Address: "bc1q0",
	}))
	require.NoError(t, s.SaveAddress(ctx, cache.Address{
		DeviceID: deviceID, CoinName: "Ethereum", ScriptType: "ethereum",
		Path:      []uint32{device.Hardened(44), device.Hardened(60), device.Hardened(0), 0, 0},
		NetworkID: chain.NetworkEthereum, Address: "0xabc",
	}))
	// No network: not priced.
	require.NoError(t, s.SaveAddress(ctx, cache.Address{
		DeviceID: deviceID, CoinName: "Bitcoin", ScriptType: "p2pkh",
		Path: []uint32{device.Hardened(44), device.Hardened(0), device.Hardened(0), 0, 0}, Address: "1legacy",
	}))
	return s
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := setup(t, &now)

	btc := chain.NetworkBitcoin + "/slip44:0"
	eth := chain.NetworkEthereum + "/slip44:60"
	pricer := &mockPricer{entries: []pricing.PortfolioEntry{
		entry(btc, "xpubA", "0.5", "60000", "30000"),
		entry(btc, "bc1q0", "0", "60000", "0"),
		entry(eth, "0xabc", "2", "3000", "6000"),
		{CAIP: eth, Pubkey: "0xabc"}, // no numbers
	}}
	m := &metrics.Metrics{}
	svc := balance.NewService(&balance.Config{
		Store:   store,
		Pricer:  pricer,
		Logger:  config.NullLogger(),
		Metrics: m,
	})

	res, err := svc.Refresh(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, &balance.RefreshResult{Queried: 3, Saved: 3, Skipped: 1}, res)

	require.Len(t, pricer.queries, 1)
	assert.Equal(t, []pricing.PortfolioQuery{
		{CAIP: btc, Pubkey: "xpubA"},
		{CAIP: btc, Pubkey: "bc1q0"},
		{CAIP: eth, Pubkey: "0xabc"},
	}, pricer.queries[0])

	sum, err := svc.Summary(ctx, deviceID)
	require.NoError(t, err)
	assert.Len(t, sum.Balances, 3)
	assert.True(t, decimal.NewFromInt(36000).Equal(sum.TotalUSD))
	assert.False(t, sum.Stale)
	for _, b := range sum.Balances {
		if b.Pubkey == "0xabc" {
			assert.Equal(t, "ETH", b.Symbol)
			assert.Equal(t, chain.NetworkEthereum, b.NetworkID)
		}
	}

	// An asset missing from the next response is removed.
	now = now.Add(2 * time.Hour)
	pricer.entries = pricer.entries[:1]
	res, err = svc.Refresh(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Removed)

	left, err := store.CachedBalances(ctx, deviceID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "xpubA", left[0].Pubkey)
	assert.Equal(t, int64(2), m.Snapshot().BalanceRefreshes)
}

func TestRefresh_FailureKeepsCachedBalances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := setup(t, &now)

	btc := chain.NetworkBitcoin + "/slip44:0"
	pricer := &mockPricer{entries: []pricing.PortfolioEntry{entry(btc, "xpubA", "1", "1", "1")}}
	m := &metrics.Metrics{}
	svc := balance.NewService(&balance.Config{Store: store, Pricer: pricer, Metrics: m})

	_, err := svc.Refresh(ctx, deviceID)
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	pricer.err = pricing.ErrUnreachable
	_, err = svc.Refresh(ctx, deviceID)
	require.ErrorIs(t, err, pricing.ErrUnreachable)

	left, err := store.CachedBalances(ctx, deviceID)
	require.NoError(t, err)
	assert.Len(t, left, 1, "stale balances survive a failed refresh")
	assert.Equal(t, int64(1), m.Snapshot().BalanceRefreshErrors)
}

func TestRefreshIfStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := setup(t, &now)

	btc := chain.NetworkBitcoin + "/slip44:0"
	pricer := &mockPricer{entries: []pricing.PortfolioEntry{entry(btc, "xpubA", "1", "1", "1")}}
	svc := balance.NewService(&balance.Config{Store: store, Pricer: pricer, Metrics: &metrics.Metrics{}})

	_, ran, err := svc.RefreshIfStale(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, ran)

	_, ran, err = svc.RefreshIfStale(ctx, deviceID)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Len(t, pricer.queries, 1)

	now = now.Add(cache.DefaultFreshness + time.Minute)
	_, ran, err = svc.RefreshIfStale(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRefresh_NoAddresses(t *testing.T) {
	t.Parallel()
	now := time.Now()
	store := setup(t, &now)
	pricer := &mockPricer{}
	svc := balance.NewService(&balance.Config{Store: store, Pricer: pricer, Metrics: &metrics.Metrics{}})

	res, err := svc.Refresh(context.Background(), "EMPTY")
	require.NoError(t, err)
	assert.Zero(t, res.Queried)
	assert.Empty(t, pricer.queries)
}
