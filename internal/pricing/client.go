// Package pricing is a client for the external pricing and indexing service
// that prices cached pubkeys and lists unspent outputs for account xpubs.
package pricing

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

const (
	// DefaultBaseURL is the public pricing service.
	DefaultBaseURL = "https://pioneers.dev/api/v1"

	// httpTimeout is the default HTTP request timeout.
	httpTimeout = 30 * time.Second

	// maxResponseBody is the maximum response body size to read (8 MB).
	maxResponseBody = 8 << 20

	// rateLimitKey is the limiter bucket shared by every endpoint.
	rateLimitKey = "pricing"
)

// Sentinel errors for the pricing service.
var (
	// ErrUnreachable indicates the service could not be reached.
	ErrUnreachable = &kkerr.KeeperError{
		Code:     "PRICING_UNREACHABLE",
		Message:  "pricing service is unreachable",
		ExitCode: kkerr.ExitGeneral,
	}

	// ErrAPIError indicates the service answered with an error status or an
	// unreadable body.
	ErrAPIError = &kkerr.KeeperError{
		Code:     "PRICING_API_ERROR",
		Message:  "pricing service returned an error",
		ExitCode: kkerr.ExitGeneral,
	}

	// ErrRateLimited indicates the service rejected the request for rate.
	ErrRateLimited = &kkerr.KeeperError{
		Code:     "PRICING_RATE_LIMITED",
		Message:  "pricing service rate limit exceeded",
		ExitCode: kkerr.ExitGeneral,
	}
)

// PortfolioQuery asks for the balance of one pubkey on one asset.
type PortfolioQuery struct {
	CAIP   string `json:"caip"`
	Pubkey string `json:"pubkey"`
}

// PortfolioEntry is one priced balance. Numeric fields are invalid when the
// service omitted them or sent null.
type PortfolioEntry struct {
	CAIP     string              `json:"caip"`
	Pubkey   string              `json:"pubkey"`
	Balance  decimal.NullDecimal `json:"balance"`
	PriceUSD decimal.NullDecimal `json:"priceUsd"`
	ValueUSD decimal.NullDecimal `json:"valueUsd"`
}

// Missing lists the required fields absent from e.
func (e PortfolioEntry) Missing() []string {
	var missing []string
	if e.CAIP == "" {
		missing = append(missing, "caip")
	}
	if e.Pubkey == "" {
		missing = append(missing, "pubkey")
	}
	if !e.Balance.Valid {
		missing = append(missing, "balance")
	}
	if !e.PriceUSD.Valid {
		missing = append(missing, "priceUsd")
	}
	if !e.ValueUSD.Valid {
		missing = append(missing, "valueUsd")
	}
	return missing
}

// UTXO is an unspent output reported for an xpub.
type UTXO struct {
	TxID          string          `json:"txid"`
	Vout          uint32          `json:"vout"`
	Value         decimal.Decimal `json:"value"`
	Confirmations int64           `json:"confirmations"`
	// Path and Address are filled by indexers that know them.
	Path    string `json:"path,omitempty"`
	Address string `json:"address,omitempty"`
	// Hex is the raw previous transaction, when the indexer includes it.
	Hex string `json:"hex,omitempty"`
}

// Sats returns the value in minor units. ok is false for negative,
// fractional or out-of-range values, which no spendable output carries.
func (u UTXO) Sats() (sats uint64, ok bool) {
	if u.Value.IsNegative() || !u.Value.Equal(u.Value.Truncate(0)) {
		return 0, false
	}
	n := u.Value.BigInt()
	if !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

// ClientOptions configures the client.
type ClientOptions struct {
	// BaseURL overrides DefaultBaseURL (useful for testing).
	BaseURL string
	// APIKey is sent in the Authorization header when set.
	APIKey string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	// Timeout overrides the default request timeout of the default client.
	Timeout time.Duration
	// RateLimiter overrides the default limiter of 5 req/s, burst 10.
	RateLimiter *chain.RateLimiter
	// Metrics overrides metrics.Global.
	Metrics *metrics.Metrics
}

// Client talks to the pricing service. It never retries: a failed call is
// reported and the caller keeps whatever it had cached.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *chain.RateLimiter
	metrics     *metrics.Metrics
}

// NewClient creates a pricing client.
func NewClient(opts *ClientOptions) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		rateLimiter: chain.NewRateLimiter(5, 10),
		metrics:     metrics.Global,
	}

	if opts != nil {
		if opts.BaseURL != "" {
			c.baseURL = strings.TrimRight(opts.BaseURL, "/")
		}
		c.apiKey = opts.APIKey
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		} else if opts.Timeout > 0 {
			c.httpClient.Timeout = opts.Timeout
		}
		if opts.RateLimiter != nil {
			c.rateLimiter = opts.RateLimiter
		}
		if opts.Metrics != nil {
			c.metrics = opts.Metrics
		}
	}
	return c
}

// Portfolio prices a batch of pubkeys.
func (c *Client) Portfolio(ctx context.Context, queries []PortfolioQuery) ([]PortfolioEntry, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("encoding portfolio request: %w", err)
	}

	var entries []PortfolioEntry
	if err := c.do(ctx, http.MethodPost, "/portfolio", body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListUnspent lists the unspent outputs of xpub on asset.
func (c *Client) ListUnspent(ctx context.Context, asset, xpub string) ([]UTXO, error) {
	endpoint := "/listUnspent/" + url.PathEscape(asset) + "/" + url.PathEscape(xpub)

	var utxos []UTXO
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) (err error) {
	defer func() { c.metrics.RecordPricingRequest(err) }()

	if err := c.rateLimiter.Wait(ctx, rateLimitKey); err != nil {
		return kkerr.WithCause(ErrUnreachable, fmt.Errorf("rate limiter: %w", err))
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL comes from validated config
	if err != nil {
		return kkerr.WithDetails(kkerr.WithCause(ErrUnreachable, err), map[string]string{"endpoint": endpoint})
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return kkerr.WithCause(ErrUnreachable, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return kkerr.WithDetails(ErrRateLimited, map[string]string{
			"endpoint": endpoint,
			"status":   fmt.Sprintf("%d", resp.StatusCode),
		})
	}
	if resp.StatusCode != http.StatusOK {
		return kkerr.WithDetails(ErrAPIError, map[string]string{
			"endpoint": endpoint,
			"status":   fmt.Sprintf("%d", resp.StatusCode),
			"body":     truncateBody(string(data), 512),
		})
	}

	if err := json.Unmarshal(data, out); err != nil {
		return kkerr.WithDetails(kkerr.WithCause(ErrAPIError, err), map[string]string{
			"endpoint": endpoint,
			"body":     truncateBody(string(data), 256),
		})
	}
	return nil
}

// truncateBody truncates a string to maxLen characters.
func truncateBody(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
