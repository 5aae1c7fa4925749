// Package frontload fills the device cache: every configured derivation
// path gets a cached xpub or address, and balances are refreshed when stale.
// The device is only asked for what the cache does not already hold.
package frontload

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Config wires an Engine.
type Config struct {
	Device   device.Exclusive
	Store    Store
	Balances BalanceRefresher // optional
	Logger   LogWriter
	Metrics  *metrics.Metrics
	Options  Options
}

// Engine runs frontload against one device connection.
type Engine struct {
	device   device.Exclusive
	store    Store
	balances BalanceRefresher
	log      LogWriter
	metrics  *metrics.Metrics
	opts     Options

	mu       sync.Mutex
	deviceID string
}

// NewEngine creates an Engine.
func NewEngine(cfg *Config) *Engine {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global
	}
	opts := cfg.Options
	if opts.ReceiveAddresses <= 0 {
		opts.ReceiveAddresses = DefaultReceiveAddresses
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	return &Engine{
		device:   cfg.Device,
		store:    cfg.Store,
		balances: cfg.Balances,
		log:      cfg.Logger,
		metrics:  m,
		opts:     opts,
	}
}

// Run frontloads the connected device. Only an unreachable device, a
// storage failure while loading, or (when configured) a failed balance
// refresh fail the run; per-path problems are logged and reported.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	deviceID, err := e.identify(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{DeviceID: deviceID}

	if _, err := e.store.LoadDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	e.reconcile(ctx, report)

	paths, err := e.store.Paths(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		for _, network := range p.Networks {
			e.frontloadNetwork(ctx, deviceID, p, network, report)
		}
	}

	e.info("frontload: %s cached, %d xpubs and %d addresses derived, %d already cached",
		deviceID, report.XpubsDerived, report.AddressesDerived, report.CachedHits)

	if err := e.refreshBalances(ctx, deviceID, report); err != nil {
		return report, err
	}
	return report, nil
}

// identify returns the device identity, asking the device for features on
// the first run. Failure here is fatal: nothing can be cached without an
// identity.
func (e *Engine) identify(ctx context.Context) (string, error) {
	e.mu.Lock()
	known := e.deviceID
	e.mu.Unlock()
	if known != "" && !e.opts.RefreshFeatures {
		return known, nil
	}

	var features *device.Features
	err := e.device.Do(ctx, func(ctx context.Context, ch device.Channel) error {
		f, err := device.Call[*device.Features](ctx, ch, &device.GetFeatures{})
		features = f
		return err
	})
	if err != nil {
		return "", kkerr.WithCause(kkerr.ErrDeviceUnavailable, err)
	}

	deviceID := DeviceID(features.DeviceID)
	if deviceID == "" {
		return "", kkerr.WithDetails(kkerr.ErrDeviceUnavailable, map[string]string{"reason": "device reported no id"})
	}
	if err := e.store.SaveFeatures(ctx, deviceID, features); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.deviceID = deviceID
	e.mu.Unlock()
	return deviceID, nil
}

// DeviceID normalises the device-id field of a features response to the
// upper-case hex identity cache rows are keyed by.
func DeviceID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if _, err := hex.DecodeString(raw); err == nil {
		return strings.ToUpper(raw)
	}
	return strings.ToUpper(hex.EncodeToString([]byte(raw)))
}

// reconcile inserts catalog entries missing from the store.
func (e *Engine) reconcile(ctx context.Context, report *Report) {
	for _, p := range e.opts.Catalog {
		added, err := e.store.AddPath(ctx, p)
		if err != nil {
			e.warn("frontload: path %q not stored: %v", p.Note, err)
			report.Failures = append(report.Failures, fmt.Sprintf("path %q: %v", p.Note, err))
			continue
		}
		if added {
			report.PathsReconciled++
		}
	}
}

func (e *Engine) frontloadNetwork(ctx context.Context, deviceID string, p catalog.Path, network string, report *Report) {
	family := chain.Classify(network)
	switch {
	case family == chain.FamilyUTXO:
		e.frontloadUTXO(ctx, deviceID, p, network, report)
	case family.IsAccountBased():
		e.frontloadAccount(ctx, deviceID, p, network, family, report)
	default:
		e.warn("frontload: %q network %s is not supported, skipped", p.Note, network)
		e.metrics.RecordPathSkipped()
		report.NetworksSkipped++
	}
}

func (e *Engine) frontloadUTXO(ctx context.Context, deviceID string, p catalog.Path, network string, report *Report) {
	coin, known := chain.UTXOCoinForPath(p.AddressNList)
	if !known {
		e.warn("frontload: %q has unknown coin type, using %s", p.Note, coin.Name)
	}
	inputType, _, ok := device.ScriptTypes(p.ScriptType)
	if !ok {
		e.warn("frontload: %q script type %q unknown, using legacy", p.Note, p.ScriptType)
	}

	leaves, ok := ReceivePaths(p.AddressNList, e.opts.ReceiveAddresses)
	if !ok {
		e.warn("frontload: %q account path %s has %d elements, skipped",
			p.Note, device.FormatPath(p.AddressNList), len(p.AddressNList))
		e.metrics.RecordPathSkipped()
		report.PathsSkipped++
	}

	// Work out what is missing before taking the device.
	xpubKey := p.XpubScriptType()
	needXpub := !e.cached(coin.Name, xpubKey, p.AddressNList, report)
	var missing [][]uint32
	for _, leaf := range leaves {
		if !e.cached(coin.Name, p.ScriptType, leaf, report) {
			missing = append(missing, leaf)
		}
	}
	if !needXpub && len(missing) == 0 {
		return
	}

	err := e.device.Do(ctx, func(ctx context.Context, ch device.Channel) error {
		if needXpub {
			pk, err := device.Call[*device.PublicKey](ctx, ch, &device.GetPublicKey{
				AddressN:       p.AddressNList,
				CoinName:       coin.Name,
				ScriptType:     inputType,
				EcdsaCurveName: p.Curve,
			})
			if err != nil {
				e.failure(report, p, device.FormatPath(p.AddressNList), err)
			} else if err := validateXpub(pk.Xpub); err != nil {
				e.failure(report, p, device.FormatPath(p.AddressNList), err)
			} else {
				e.save(ctx, report, cache.Address{
					DeviceID:   deviceID,
					CoinName:   coin.Name,
					ScriptType: xpubKey,
					Path:       p.AddressNList,
					NetworkID:  network,
					Address:    pk.Xpub,
					Pubkey:     pk.Xpub,
				}, p, true)
			}
		}

		for _, leaf := range missing {
			if err := ctx.Err(); err != nil {
				return err
			}
			addr, err := device.Call[*device.Address](ctx, ch, &device.GetAddress{
				AddressN:   leaf,
				CoinName:   coin.Name,
				ScriptType: inputType,
			})
			if err != nil {
				e.failure(report, p, device.FormatPath(leaf), err)
				continue
			}
			e.save(ctx, report, cache.Address{
				DeviceID:   deviceID,
				CoinName:   coin.Name,
				ScriptType: p.ScriptType,
				Path:       leaf,
				NetworkID:  network,
				Address:    addr.Address,
			}, p, false)
		}
		return nil
	})
	if err != nil {
		e.failure(report, p, device.FormatPath(p.AddressNList), err)
	}
}

func (e *Engine) frontloadAccount(ctx context.Context, deviceID string, p catalog.Path, network string, family chain.Family, report *Report) {
	coinName := chain.AccountCoinName(network)
	path := p.AddressNListMaster
	if len(path) == 0 {
		e.warn("frontload: %q has no master path for %s, skipped", p.Note, network)
		e.metrics.RecordPathSkipped()
		report.PathsSkipped++
		return
	}
	if e.cached(coinName, p.ScriptType, path, report) {
		return
	}

	err := e.device.Do(ctx, func(ctx context.Context, ch device.Channel) error {
		address, err := e.accountAddress(ctx, ch, family, coinName, path)
		if err != nil {
			return err
		}
		e.save(ctx, report, cache.Address{
			DeviceID:   deviceID,
			CoinName:   coinName,
			ScriptType: p.ScriptType,
			Path:       path,
			NetworkID:  network,
			Address:    address,
		}, p, false)
		return nil
	})
	if err != nil {
		e.failure(report, p, device.FormatPath(path), err)
	}
}

// accountAddress asks the device for the address of an account-based chain.
func (e *Engine) accountAddress(ctx context.Context, ch device.Channel, family chain.Family, coinName string, path []uint32) (string, error) {
	switch family {
	case chain.FamilyEVM:
		resp, err := device.Call[*device.EthereumAddress](ctx, ch, &device.EthereumGetAddress{AddressN: path})
		if err != nil {
			return "", err
		}
		return normalizeEVMAddress(resp.Address)
	case chain.FamilyCosmos:
		resp, err := device.Call[*device.CosmosAddress](ctx, ch, &device.CosmosGetAddress{AddressN: path, CoinName: coinName})
		if err != nil {
			return "", err
		}
		return resp.Address, nil
	case chain.FamilyRipple:
		resp, err := device.Call[*device.RippleAddress](ctx, ch, &device.RippleGetAddress{AddressN: path})
		if err != nil {
			return "", err
		}
		return resp.Address, nil
	case chain.FamilyUTXO, chain.FamilyUnsupported:
	}
	return "", kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"family": family.String()})
}

func (e *Engine) cached(coinName, scriptType string, path []uint32, report *Report) bool {
	if _, ok := e.store.CachedAddress(coinName, scriptType, path); ok {
		report.CachedHits++
		return true
	}
	return false
}

func (e *Engine) save(ctx context.Context, report *Report, a cache.Address, p catalog.Path, xpub bool) {
	if a.Address == "" {
		e.failure(report, p, device.FormatPath(a.Path), kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
			"reason": "device returned an empty address",
		}))
		return
	}
	if err := e.store.SaveAddress(ctx, a); err != nil {
		e.failure(report, p, device.FormatPath(a.Path), err)
		return
	}
	e.metrics.RecordPathDerived()
	if xpub {
		report.XpubsDerived++
	} else {
		report.AddressesDerived++
	}
	e.debug("frontload: cached %s %s %s", a.CoinName, a.ScriptType, device.FormatPath(a.Path))
}

func (e *Engine) failure(report *Report, p catalog.Path, path string, err error) {
	if kkerr.Is(err, kkerr.ErrAddressMismatch) {
		e.logError("frontload: %q %s: cache integrity problem: %v", p.Note, path, err)
	} else {
		e.warn("frontload: %q %s: %v", p.Note, path, err)
	}
	report.Failures = append(report.Failures, fmt.Sprintf("%s %s: %v", p.Note, path, err))
}

func (e *Engine) refreshBalances(ctx context.Context, deviceID string, report *Report) error {
	if e.balances == nil {
		return nil
	}
	res, ran, err := e.balances.RefreshIfStale(ctx, deviceID)
	if err != nil {
		if e.opts.BalanceRefreshFatal {
			return kkerr.Wrap(err, "frontload balance refresh")
		}
		e.warn("frontload: balance refresh failed, cached balances kept: %v", err)
		report.BalanceError = err.Error()
		return nil
	}
	report.BalanceRefreshed = ran
	if res != nil {
		report.BalanceRows = res.Saved
	}
	return nil
}

func (e *Engine) debug(format string, args ...any) {
	if e.log != nil {
		e.log.Debug(format, args...)
	}
}

func (e *Engine) info(format string, args ...any) {
	if e.log != nil {
		e.log.Info(format, args...)
	}
}

func (e *Engine) warn(format string, args ...any) {
	if e.log != nil {
		e.log.Warn(format, args...)
	}
}

func (e *Engine) logError(format string, args ...any) {
	if e.log != nil {
		e.log.Error(format, args...)
	}
}
