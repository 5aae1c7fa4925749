package cli

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/balance"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/frontload"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

var (
	frontloadBalanceFatal bool
	frontloadCatalogFile  string
	frontloadReceive      int
)

var frontloadCmd = &cobra.Command{
	Use:   "frontload",
	Short: "Cache the device's xpubs and addresses",
	Long: `Identify the connected device, add the path catalog to the cache and
derive every xpub and address that is not cached yet. Balances are
refreshed afterwards when they are stale.

A failed balance refresh fails the command unless --balance-fatal=false
is given. Without the flag the KEEPER_BALANCE_FATAL environment variable
decides, and failing is the default.`,
	Example: `  keeper frontload
  keeper frontload --balance-fatal=false
  keeper frontload --catalog ./paths.yaml`,
	RunE: runFrontload,
}

type frontloadResponse struct {
	*frontload.Report
	RoundTrips int `json:"device_round_trips"`
}

func (r *frontloadResponse) RenderText(w io.Writer) error {
	out(w, "Device %s frontloaded\n", r.DeviceID)
	out(w, "  paths added:        %d\n", r.PathsReconciled)
	out(w, "  xpubs derived:      %d\n", r.XpubsDerived)
	out(w, "  addresses derived:  %d\n", r.AddressesDerived)
	out(w, "  already cached:     %d\n", r.CachedHits)
	if r.NetworksSkipped > 0 || r.PathsSkipped > 0 {
		out(w, "  skipped:            %d networks, %d paths\n", r.NetworksSkipped, r.PathsSkipped)
	}
	switch {
	case r.BalanceError != "":
		out(w, "  balances:           refresh failed: %s\n", r.BalanceError)
	case r.BalanceRefreshed:
		out(w, "  balances:           %d refreshed\n", r.BalanceRows)
	default:
		out(w, "  balances:           fresh\n")
	}
	if len(r.Failures) > 0 {
		out(w, "\nFailures:\n  %s\n", strings.Join(r.Failures, "\n  "))
	}
	return nil
}

// balanceFatal decides the refresh policy: the flag when given, then an
// explicit environment setting, then fail fast.
func balanceFatal(cmd *cobra.Command, cfg *config.Config) bool {
	if cmd.Flags().Changed("balance-fatal") {
		return frontloadBalanceFatal
	}
	if _, ok := os.LookupEnv(config.EnvBalanceFatal); ok {
		return cfg.Frontload.BalanceRefreshFatal
	}
	return true
}

func loadCatalog(path string) ([]catalog.Path, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: catalog path is chosen by the user
	if err != nil {
		return nil, kkerr.WithDetails(kkerr.WithCause(kkerr.ErrNotFound, err), map[string]string{"file": path})
	}
	return catalog.Parse(data)
}

func runFrontload(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	paths, err := loadCatalog(frontloadCatalogFile)
	if err != nil {
		return err
	}

	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	guard, release, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	receive := cc.Cfg.Frontload.ReceiveAddresses
	if cmd.Flags().Changed("receive") {
		receive = frontloadReceive
	}

	engine := frontload.NewEngine(&frontload.Config{
		Device: guard,
		Store:  store,
		Balances: balance.NewService(&balance.Config{
			Store:   store,
			Pricer:  cc.pricing(),
			Logger:  cc.Log,
			Metrics: cc.Metrics,
		}),
		Logger:  cc.Log,
		Metrics: cc.Metrics,
		Options: frontload.Options{
			BalanceRefreshFatal: balanceFatal(cmd, cc.Cfg),
			ReceiveAddresses:    receive,
			Catalog:             paths,
		},
	})

	report, err := engine.Run(ctx)
	if err != nil {
		if report != nil {
			// Addresses are cached even when the refresh failed.
			_ = cc.Fmt.Print(&frontloadResponse{Report: report, RoundTrips: report.DeviceRoundTrips()})
		}
		return err
	}
	return cc.Fmt.Print(&frontloadResponse{Report: report, RoundTrips: report.DeviceRoundTrips()})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(frontloadCmd)

	frontloadCmd.Flags().BoolVar(&frontloadBalanceFatal, "balance-fatal", true, "fail when the balance refresh fails")
	frontloadCmd.Flags().StringVar(&frontloadCatalogFile, "catalog", "", "YAML path catalog to use instead of the built-in one")
	frontloadCmd.Flags().IntVar(&frontloadReceive, "receive", frontload.DefaultReceiveAddresses, "receive addresses cached per account")
}
