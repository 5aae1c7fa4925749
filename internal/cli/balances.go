package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/balance"
)

var (
	balancesDevice string
	balancesForce  bool
)

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show and refresh cached balances",
}

var balancesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cached balances",
	Long: `Show the balances cached for a device with their USD value. Stale
balances are shown as they are; run 'keeper balances refresh' to update.`,
	RunE: runBalancesShow,
}

var balancesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch balances from the pricing service",
	Long: `Price every cached address and xpub of a device. Fresh balances are
kept unless --force is given. A failed refresh leaves the cached balances
untouched.`,
	RunE: runBalancesRefresh,
}

type balancesResponse struct {
	*balance.Summary
}

func (r *balancesResponse) RenderText(w io.Writer) error {
	if len(r.Balances) == 0 {
		out(w, "No cached balances for %s.\n", r.DeviceID)
		return nil
	}
	t := output.NewTable("SYMBOL", "BALANCE", "PRICE USD", "VALUE USD", "PUBKEY")
	for _, b := range r.Balances {
		t.AddRow(b.Symbol, b.Balance.String(), b.PriceUSD.StringFixed(2), b.ValueUSD.StringFixed(2), b.Pubkey)
	}
	if err := t.Render(w); err != nil {
		return err
	}
	out(w, "\nTotal: $%s\n", r.TotalUSD.StringFixed(2))
	if r.Stale {
		outln(w, "Balances are stale. Run 'keeper balances refresh'.")
	}
	return nil
}

type refreshResponse struct {
	DeviceID  string                 `json:"device_id"`
	Refreshed bool                   `json:"refreshed"`
	Result    *balance.RefreshResult `json:"result,omitempty"`
}

func (r *refreshResponse) RenderText(w io.Writer) error {
	if !r.Refreshed {
		out(w, "Balances for %s are fresh; use --force to refresh anyway.\n", r.DeviceID)
		return nil
	}
	out(w, "Refreshed %s: %d queried, %d saved, %d skipped, %d removed\n",
		r.DeviceID, r.Result.Queried, r.Result.Saved, r.Result.Skipped, r.Result.Removed)
	return nil
}

func runBalancesShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	deviceID, err := resolveDevice(ctx, store, balancesDevice)
	if err != nil {
		return err
	}
	svc := balance.NewService(&balance.Config{Store: store, Logger: cc.Log, Metrics: cc.Metrics})
	summary, err := svc.Summary(ctx, deviceID)
	if err != nil {
		return err
	}
	return cc.Fmt.Print(&balancesResponse{Summary: summary})
}

func runBalancesRefresh(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.Cfg.PricingTimeout())
	defer cancel()

	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	deviceID, err := resolveDevice(ctx, store, balancesDevice)
	if err != nil {
		return err
	}
	svc := balance.NewService(&balance.Config{
		Store:   store,
		Pricer:  cc.pricing(),
		Logger:  cc.Log,
		Metrics: cc.Metrics,
	})

	resp := &refreshResponse{DeviceID: deviceID}
	if balancesForce {
		resp.Result, err = svc.Refresh(ctx, deviceID)
		resp.Refreshed = err == nil
	} else {
		resp.Result, resp.Refreshed, err = svc.RefreshIfStale(ctx, deviceID)
	}
	if err != nil {
		return err
	}
	return cc.Fmt.Print(resp)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(balancesCmd)
	balancesCmd.AddCommand(balancesShowCmd, balancesRefreshCmd)

	for _, c := range []*cobra.Command{balancesShowCmd, balancesRefreshCmd} {
		c.Flags().StringVar(&balancesDevice, "device", "", "device id (default: most recently seen)")
	}
	balancesRefreshCmd.Flags().BoolVar(&balancesForce, "force", false, "refresh even when cached balances are fresh")
}
