package pricing_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

func newClient(t *testing.T, handler http.HandlerFunc, m *metrics.Metrics) *pricing.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return pricing.NewClient(&pricing.ClientOptions{
		BaseURL:     srv.URL + "/",
		APIKey:      "secret",
		HTTPClient:  srv.Client(),
		RateLimiter: chain.NewRateLimiter(1000, 1000),
		Metrics:     m,
	})
}

func TestPortfolio(t *testing.T) {
	t.Parallel()

	m := &metrics.Metrics{}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/portfolio", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var queries []pricing.PortfolioQuery
		assert.NoError(t, json.Unmarshal(body, &queries))
		assert.Len(t, queries, 2)

		_, _ = w.Write([]byte(`[
			{"caip":"bip122:000000000019d6689c085ae165831e93/slip44:0","pubkey":"xpubA","balance":"0.015","priceUsd":60000,"valueUsd":"900"},
			{"caip":"eip155:1/slip44:60","pubkey":"0xabc","balance":"1.5","priceUsd":null,"valueUsd":"0"}
		]`))
	}, m)

	entries, err := c.Portfolio(context.Background(), []pricing.PortfolioQuery{
		{CAIP: "bip122:000000000019d6689c085ae165831e93/slip44:0", Pubkey: "xpubA"},
		{CAIP: "eip155:1/slip44:60", Pubkey: "0xabc"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Empty(t, entries[0].Missing())
	assert.Equal(t, "0.015", entries[0].Balance.Decimal.String())
	assert.Equal(t, "60000", entries[0].PriceUSD.Decimal.String())
	assert.Equal(t, []string{"priceUsd"}, entries[1].Missing())

	assert.Equal(t, int64(1), m.Snapshot().PricingRequestsTotal)
	assert.Equal(t, int64(0), m.Snapshot().PricingRequestsFailed)
}

func TestPortfolio_EmptyBatchSkipsRequest(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	}, &metrics.Metrics{})
	entries, err := c.Portfolio(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestListUnspent(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/listUnspent/BTC/xpub6CUGRU", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"txid":"aa","vout":1,"value":"150000","confirmations":12},
			{"txid":"bb","vout":0,"value":2500,"confirmations":0,"path":"m/84'/0'/0'/0/3"}
		]`))
	}, &metrics.Metrics{})

	utxos, err := c.ListUnspent(context.Background(), "BTC", "xpub6CUGRU")
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	sats, ok := utxos[0].Sats()
	assert.True(t, ok)
	assert.Equal(t, uint64(150000), sats)
	assert.Equal(t, int64(12), utxos[0].Confirmations)
	sats, ok = utxos[1].Sats()
	assert.True(t, ok)
	assert.Equal(t, uint64(2500), sats)
	assert.Equal(t, "m/84'/0'/0'/0/3", utxos[1].Path)
}

func TestUTXO_Sats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		sats  uint64
		ok    bool
	}{
		{"whole", "150000", 150000, true},
		{"zero", "0", 0, true},
		{"trailing zeros", "2500.000", 2500, true},
		{"base units instead of sats", "0.001", 0, false},
		{"fraction", "2500.5", 0, false},
		{"negative", "-1", 0, false},
		{"above uint64", "18446744073709551616", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := pricing.UTXO{Value: decimal.RequireFromString(tt.value)}
			sats, ok := u.Sats()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.sats, sats)
		})
	}
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", pricing.ErrRateLimited},
		{"server error", http.StatusInternalServerError, "boom", pricing.ErrAPIError},
		{"bad json", http.StatusOK, "{not json", pricing.ErrAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &metrics.Metrics{}
			c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, m)

			_, err := c.ListUnspent(context.Background(), "BTC", "xpub")
			require.ErrorIs(t, err, tt.expected)
			assert.False(t, kkerr.IsRetryable(err))
			assert.Equal(t, int64(1), m.Snapshot().PricingRequestsFailed)
		})
	}
}

func TestClientUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := pricing.NewClient(&pricing.ClientOptions{BaseURL: url, Metrics: &metrics.Metrics{}})
	_, err := c.Portfolio(context.Background(), []pricing.PortfolioQuery{{CAIP: "x", Pubkey: "y"}})
	require.ErrorIs(t, err, pricing.ErrUnreachable)
	assert.Equal(t, "/portfolio", kkerr.Detail(err, "endpoint"))
}
