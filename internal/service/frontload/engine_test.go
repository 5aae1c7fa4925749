package frontload_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip32"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device/devicetest"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/balance"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/frontload"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

const rawDeviceID = "a1b2c3d4e5f6"

// fakeDevice answers derivation requests deterministically. Addresses are
// derived from the path text so tests can predict them.
type fakeDevice struct {
	t      *testing.T
	xpub   string
	failAt string // path that answers with Failure
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	master, err := bip32.NewMasterKey(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	account, err := master.NewChildKey(bip32.FirstHardenedChild + 84)
	require.NoError(t, err)
	return &fakeDevice{t: t, xpub: account.PublicKey().String()}
}

func leafAddress(path []uint32) string {
	return "addr:" + device.FormatPath(path)
}

func (f *fakeDevice) handle(req device.Request) (device.Response, error) {
	switch r := req.(type) {
	case *device.GetFeatures:
		return &device.Features{DeviceID: rawDeviceID, Initialized: true, Label: "test"}, nil
	case *device.GetPublicKey:
		return &device.PublicKey{Xpub: f.xpub}, nil
	case *device.GetAddress:
		if device.FormatPath(r.AddressN) == f.failAt {
			return &device.Failure{Code: device.FailureActionCancelled, Message: "Action cancelled by user"}, nil
		}
		return &device.Address{Address: leafAddress(r.AddressN)}, nil
	case *device.EthereumGetAddress:
		return &device.EthereumAddress{Address: "0x52908400098527886e0f7030069857d2e4169ee7"}, nil
	case *device.CosmosGetAddress:
		return &device.CosmosAddress{Address: "cosmos1" + strings.ToLower(r.CoinName)}, nil
	case *device.RippleGetAddress:
		return &device.RippleAddress{Address: "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY"}, nil
	default:
		f.t.Errorf("unexpected request %s", req.MessageType())
		return &device.Failure{Message: "unexpected"}, nil
	}
}

type fixture struct {
	store   *cache.Store
	handler *devicetest.Handler
	device  *fakeDevice
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := &metrics.Metrics{}
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), cache.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fd := newFakeDevice(t)
	return &fixture{store: store, handler: devicetest.NewHandler(fd.handle), device: fd, metrics: m}
}

func (f *fixture) engine(opts frontload.Options, balances frontload.BalanceRefresher) *frontload.Engine {
	return frontload.NewEngine(&frontload.Config{
		Device:   device.NewGuard(f.handler, time.Second),
		Store:    f.store,
		Balances: balances,
		Logger:   config.NullLogger(),
		Metrics:  f.metrics,
		Options:  opts,
	})
}

func nativeSegwit() catalog.Path {
	return catalog.Path{
		Note:               "Bitcoin account 0 (native segwit)",
		ScriptType:         device.ScriptP2WPKH,
		PathType:           catalog.TypeXpub,
		Curve:              "secp256k1",
		AddressNList:       []uint32{device.Hardened(84), device.Hardened(0), device.Hardened(0)},
		AddressNListMaster: []uint32{device.Hardened(84), device.Hardened(0), device.Hardened(0), 0, 0},
		Networks:           []string{chain.NetworkBitcoin},
	}
}

// echoPricer prices every query it is asked about.
type echoPricer struct {
	calls   int
	queries []pricing.PortfolioQuery
	err     error
}

func (p *echoPricer) Portfolio(_ context.Context, q []pricing.PortfolioQuery) ([]pricing.PortfolioEntry, error) {
	p.calls++
	p.queries = q
	if p.err != nil {
		return nil, p.err
	}
	out := make([]pricing.PortfolioEntry, 0, len(q))
	for _, query := range q {
		out = append(out, pricing.PortfolioEntry{
			CAIP:     query.CAIP,
			Pubkey:   query.Pubkey,
			Balance:  nullDec("0.1"),
			PriceUSD: nullDec("50000"),
			ValueUSD: nullDec("5000"),
		})
	}
	return out, nil
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	pricer := &echoPricer{}
	balances := balance.NewService(&balance.Config{Store: f.store, Pricer: pricer, Metrics: f.metrics})
	engine := f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}}, balances)

	report, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3D4E5F6", report.DeviceID)
	assert.Equal(t, 1, report.PathsReconciled)
	assert.Equal(t, 1, report.XpubsDerived)
	assert.Equal(t, 5, report.AddressesDerived)
	assert.Zero(t, report.CachedHits)
	assert.Empty(t, report.Failures)
	assert.True(t, report.BalanceRefreshed)
	assert.Equal(t, 6, report.BalanceRows)

	// GetFeatures + GetPublicKey + 5 GetAddress.
	assert.Equal(t, 7, f.handler.Calls())

	xpub, ok := f.store.CachedAddress("Bitcoin", "p2wpkh_xpub", nativeSegwit().AddressNList)
	require.True(t, ok)
	assert.Equal(t, f.device.xpub, xpub.Address)

	for i := uint32(0); i < 5; i++ {
		leaf := append(nativeSegwit().AddressNList, 0, i)
		a, ok := f.store.CachedAddress("Bitcoin", "p2wpkh", leaf)
		require.True(t, ok, "leaf %d", i)
		assert.Equal(t, leafAddress(leaf), a.Address)
	}

	require.Len(t, pricer.queries, 6)
	for _, q := range pricer.queries {
		assert.Equal(t, chain.NetworkBitcoin+"/slip44:0", q.CAIP)
	}

	features, ok := f.store.CachedFeatures()
	require.True(t, ok)
	assert.Equal(t, "test", features.Label)
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	pricer := &echoPricer{}
	balances := balance.NewService(&balance.Config{Store: f.store, Pricer: pricer, Metrics: f.metrics})
	engine := f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}}, balances)

	_, err := engine.Run(ctx)
	require.NoError(t, err)
	before, err := f.store.Addresses(ctx, "A1B2C3D4E5F6")
	require.NoError(t, err)
	calls := f.handler.Calls()

	report, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, f.handler.Calls(), "second run must not touch the device")
	assert.Zero(t, report.DeviceRoundTrips())
	assert.Zero(t, report.PathsReconciled)
	assert.Equal(t, 6, report.CachedHits)
	assert.False(t, report.BalanceRefreshed, "balances are still fresh")
	assert.Equal(t, 1, pricer.calls)

	after, err := f.store.Addresses(ctx, "A1B2C3D4E5F6")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_NewEngineReusesCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}}, nil).Run(ctx)
	require.NoError(t, err)
	calls := f.handler.Calls()

	// A fresh connection only asks for features.
	report, err := f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}}, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls+1, f.handler.Calls())
	assert.Zero(t, report.DeviceRoundTrips())
	_, isFeatures := f.handler.Sent()[calls].(*device.GetFeatures)
	assert.True(t, isFeatures)
}

func TestRun_AccountBasedAndSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	paths := []catalog.Path{
		{
			Note: "eth", ScriptType: "ethereum", PathType: catalog.TypeAddress,
			AddressNList:       []uint32{device.Hardened(44), device.Hardened(60), device.Hardened(0)},
			AddressNListMaster: []uint32{device.Hardened(44), device.Hardened(60), device.Hardened(0), 0, 0},
			Networks:           []string{chain.NetworkEthereum},
		},
		{
			Note: "osmo", ScriptType: "osmosis", PathType: catalog.TypeAddress,
			AddressNList:       []uint32{device.Hardened(44), device.Hardened(118), device.Hardened(0)},
			AddressNListMaster: []uint32{device.Hardened(44), device.Hardened(118), device.Hardened(0), 0, 0},
			Networks:           []string{chain.NetworkOsmosis},
		},
		{
			Note: "xrp", ScriptType: "ripple", PathType: catalog.TypeAddress,
			AddressNList:       []uint32{device.Hardened(44), device.Hardened(144), device.Hardened(0)},
			AddressNListMaster: []uint32{device.Hardened(44), device.Hardened(144), device.Hardened(0), 0, 0},
			Networks:           []string{chain.NetworkRipple},
		},
	}
	report, err := f.engine(frontload.Options{Catalog: paths}, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.AddressesDerived)
	assert.Zero(t, report.XpubsDerived)

	eth, ok := f.store.CachedAddress("Ethereum", "ethereum", paths[0].AddressNListMaster)
	require.True(t, ok)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", eth.Address, "checksummed")
	assert.Equal(t, chain.NetworkEthereum, eth.NetworkID)

	osmo, ok := f.store.CachedAddress("Osmosis", "osmosis", paths[1].AddressNListMaster)
	require.True(t, ok)
	assert.Equal(t, "cosmos1osmosis", osmo.Address)

	_, ok = f.store.CachedAddress("Ripple", "ripple", paths[2].AddressNListMaster)
	assert.True(t, ok)
}

func TestRun_SkipsShortAccountPaths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	store := f.store

	five := catalog.Path{
		Note: "five", ScriptType: device.ScriptP2PKH, PathType: catalog.TypeXpub,
		AddressNList: []uint32{device.Hardened(44), device.Hardened(2), device.Hardened(0), 0, 9},
		Networks:     []string{chain.NetworkLitecoin},
	}
	four := catalog.Path{
		Note: "four", ScriptType: device.ScriptP2PKH, PathType: catalog.TypeXpub,
		AddressNList: []uint32{device.Hardened(44), device.Hardened(3), device.Hardened(0), 0},
		Networks:     []string{chain.NetworkDogecoin},
	}
	report, err := f.engine(frontload.Options{Catalog: []catalog.Path{five, four}}, nil).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.PathsSkipped, "4-element account path has no receive paths")
	assert.Equal(t, 2, report.XpubsDerived)
	assert.Equal(t, 5, report.AddressesDerived)
	for i := uint32(0); i < 5; i++ {
		leaf := []uint32{device.Hardened(44), device.Hardened(2), device.Hardened(0), 0, i}
		_, ok := store.CachedAddress("Litecoin", device.ScriptP2PKH, leaf)
		assert.True(t, ok, "leaf %d", i)
	}
	assert.Equal(t, int64(1), f.metrics.Snapshot().PathsSkipped)
}

func TestRun_UnknownCoinTypeDefaultsToBitcoin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	odd := nativeSegwit()
	odd.Note = "odd"
	odd.AddressNList = []uint32{device.Hardened(84), device.Hardened(9999), device.Hardened(0)}

	report, err := f.engine(frontload.Options{Catalog: []catalog.Path{odd}, ReceiveAddresses: 1}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.DeviceRoundTrips())
	_, ok := f.store.CachedAddress("Bitcoin", "p2wpkh_xpub", odd.AddressNList)
	assert.True(t, ok)
}

func TestRun_PerAddressFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.device.failAt = "m/84'/0'/0'/0/2"

	report, err := f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.AddressesDerived)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "m/84'/0'/0'/0/2")

	// The next run only asks for the missing address.
	f.device.failAt = ""
	before := f.handler.Calls()
	report, err = f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AddressesDerived)
	assert.Equal(t, before+2, f.handler.Calls(), "features plus one address")
}

func TestRun_DeviceUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.handler = devicetest.NewHandler(func(device.Request) (device.Response, error) {
		return nil, kkerr.ErrTransport
	})

	_, err := f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}}, nil).Run(context.Background())
	require.ErrorIs(t, err, kkerr.ErrDeviceUnavailable)
	assert.Equal(t, 1, f.handler.Calls(), "nothing after the identity check")
}

func TestRun_BalanceRefreshPolicy(t *testing.T) {
	t.Parallel()

	for _, fatal := range []bool{false, true} {
		t.Run(map[bool]string{false: "logged", true: "fatal"}[fatal], func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			pricer := &echoPricer{err: pricing.ErrUnreachable}
			balances := balance.NewService(&balance.Config{Store: f.store, Pricer: pricer, Metrics: f.metrics})
			engine := f.engine(frontload.Options{Catalog: []catalog.Path{nativeSegwit()}, BalanceRefreshFatal: fatal}, balances)

			report, err := engine.Run(context.Background())
			if fatal {
				require.ErrorIs(t, err, pricing.ErrUnreachable)
			} else {
				require.NoError(t, err)
				assert.Contains(t, report.BalanceError, "unreachable")
			}
			require.NotNil(t, report)
			assert.Equal(t, 5, report.AddressesDerived, "addresses are cached either way")
		})
	}
}

func TestReceivePaths(t *testing.T) {
	t.Parallel()

	account := []uint32{device.Hardened(44), device.Hardened(0), device.Hardened(0)}
	paths, ok := frontload.ReceivePaths(account, 5)
	require.True(t, ok)
	require.Len(t, paths, 5)
	for i, p := range paths {
		assert.Equal(t, append(account[:3:3], 0, uint32(i)), p) //nolint:gosec // small index
	}
	assert.Len(t, account, 3, "input untouched")

	five := []uint32{device.Hardened(44), device.Hardened(0), device.Hardened(0), 1, 77}
	paths, ok = frontload.ReceivePaths(five, 5)
	require.True(t, ok)
	for i, p := range paths {
		assert.Equal(t, five[:4], p[:4])
		assert.Equal(t, uint32(i), p[4]) //nolint:gosec // small index
	}
	assert.Equal(t, uint32(77), five[4], "input untouched")

	for _, n := range []int{0, 1, 2, 4, 6} {
		_, ok := frontload.ReceivePaths(make([]uint32, n), 5)
		assert.False(t, ok, "length %d", n)
	}
}

func TestDeviceID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "A1B2", frontload.DeviceID("a1b2"))
	assert.Equal(t, "6B6B", frontload.DeviceID("kk"))
	assert.Empty(t, frontload.DeviceID("  "))
}
