package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics

	// Opener reaches the physical device. Nil means no transport was
	// registered and device commands fail with ErrDeviceUnavailable.
	Opener device.Opener

	// PricingClient overrides the client built from Cfg.
	PricingClient *pricing.Client
}

type cmdContextKey struct{}

// SetCmdContext attaches cc to cmd.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to cmd, falling back to
// one built from the globals.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok {
			return cc
		}
	}
	return &CommandContext{Cfg: cfg, Log: logger, Fmt: formatter, Metrics: metrics.Global, Opener: registeredOpener()}
}

// openStore opens the device cache configured in cc.
func (cc *CommandContext) openStore() (*cache.Store, error) {
	return cache.Open(cc.Cfg.DatabasePath(),
		cache.WithFreshness(cc.Cfg.BalanceFreshness()),
		cache.WithMetrics(cc.Metrics),
	)
}

// pricing returns the pricing client, rate limited as configured.
func (cc *CommandContext) pricing() *pricing.Client {
	if cc.PricingClient != nil {
		return cc.PricingClient
	}
	p := cc.Cfg.Pricing
	return pricing.NewClient(&pricing.ClientOptions{
		BaseURL:     p.URL,
		APIKey:      p.APIKey,
		Timeout:     cc.Cfg.PricingTimeout(),
		RateLimiter: chain.NewRateLimiter(p.RatePerSecond, p.Burst),
		Metrics:     cc.Metrics,
	})
}

// resolveDevice returns the device a cache-only command works on: the one
// named by flag, or the most recently seen device. The device's cached
// rows are loaded into the store.
func resolveDevice(ctx context.Context, store *cache.Store, flag string) (string, error) {
	deviceID := flag
	if deviceID == "" {
		ids, err := store.Devices(ctx)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return "", kkerr.WithSuggestion(kkerr.ErrNotFound,
				"no device has been seen yet; connect one and run 'keeper frontload'")
		}
		deviceID = ids[0]
	}
	if _, err := store.LoadDevice(ctx, deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}

// out writes formatted progress text. Write errors on the terminal are
// not actionable and are dropped.
func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
