// Package balance refreshes cached balances from the pricing service.
package balance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Config holds the configuration for the balance service.
type Config struct {
	Store   Store
	Pricer  Pricer
	Logger  LogWriter
	Metrics *metrics.Metrics
}

// Service refreshes and summarises balances.
type Service struct {
	store   Store
	pricer  Pricer
	log     LogWriter
	metrics *metrics.Metrics
}

// NewService creates a new balance service.
func NewService(cfg *Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global
	}
	return &Service{
		store:   cfg.Store,
		pricer:  cfg.Pricer,
		log:     cfg.Logger,
		metrics: m,
	}
}

// Refresh prices every cached address and xpub of deviceID and replaces the
// cached balances with the response. Entries missing a required field are
// skipped. When the pricing call fails the cached balances are left as they
// were.
func (s *Service) Refresh(ctx context.Context, deviceID string) (*RefreshResult, error) {
	addresses, err := s.store.Addresses(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	queries := buildQueries(addresses)
	for _, a := range addresses {
		if a.NetworkID == "" {
			s.debug("balance: no network for %s %s, not priced", a.CoinName, a.ScriptType)
		}
	}
	result := &RefreshResult{Queried: len(queries)}
	if len(queries) == 0 {
		return result, nil
	}

	entries, err := s.pricer.Portfolio(ctx, queries)
	s.metrics.RecordBalanceRefresh(err)
	if err != nil {
		return nil, kkerr.Wrap(err, "refreshing balances for %s", deviceID)
	}

	cutoff := s.store.Now()
	rows := make([]cache.Balance, 0, len(entries))
	for _, e := range entries {
		if missing := e.Missing(); len(missing) > 0 {
			s.warn("balance: skipping %s/%s, missing %v", e.CAIP, e.Pubkey, missing)
			result.Skipped++
			continue
		}
		network, _, _ := chain.SplitAssetID(e.CAIP)
		rows = append(rows, cache.Balance{
			DeviceID:    deviceID,
			AssetID:     e.CAIP,
			Pubkey:      e.Pubkey,
			Balance:     e.Balance.Decimal,
			PriceUSD:    e.PriceUSD.Decimal,
			ValueUSD:    e.ValueUSD.Decimal,
			Symbol:      chain.Symbol(network),
			NetworkID:   network,
			LastUpdated: cutoff,
		})
	}

	if err := s.store.SaveBalances(ctx, deviceID, rows); err != nil {
		return nil, err
	}
	result.Saved = len(rows)

	removed, err := s.store.ClearOldBalances(ctx, deviceID, cutoff)
	if err != nil {
		return nil, err
	}
	result.Removed = removed

	s.debug("balance: %s refreshed, %d saved, %d skipped, %d removed", deviceID, result.Saved, result.Skipped, result.Removed)
	return result, nil
}

// RefreshIfStale refreshes only when the cached balances are missing or
// older than the freshness window. The boolean reports whether a refresh ran.
func (s *Service) RefreshIfStale(ctx context.Context, deviceID string) (*RefreshResult, bool, error) {
	need, err := s.store.BalancesNeedRefresh(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}
	if !need {
		return &RefreshResult{}, false, nil
	}
	res, err := s.Refresh(ctx, deviceID)
	return res, true, err
}

// Summary returns the cached balances of deviceID and their USD total.
// It never contacts the pricing service.
func (s *Service) Summary(ctx context.Context, deviceID string) (*Summary, error) {
	balances, err := s.store.CachedBalances(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	stale, err := s.store.BalancesNeedRefresh(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.ValueUSD)
	}
	return &Summary{DeviceID: deviceID, Balances: balances, TotalUSD: total, Stale: stale}, nil
}

// buildQueries returns one query per distinct (asset, pubkey) pair.
func buildQueries(addresses []cache.Address) []pricing.PortfolioQuery {
	seen := make(map[pricing.PortfolioQuery]bool, len(addresses))
	queries := make([]pricing.PortfolioQuery, 0, len(addresses))
	for _, a := range addresses {
		if a.NetworkID == "" {
			continue
		}
		q := pricing.PortfolioQuery{
			CAIP:   chain.AssetID(a.NetworkID, a.Path),
			Pubkey: a.QueryKey(),
		}
		if seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
	}
	return queries
}

func (s *Service) debug(format string, args ...any) {
	if s.log != nil {
		s.log.Debug(format, args...)
	}
}

func (s *Service) warn(format string, args ...any) {
	if s.log != nil {
		s.log.Warn(format, args...)
	}
}
