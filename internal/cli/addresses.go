package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
)

var (
	addressesDevice    string
	addressesCoin      string
	addressesXpubsOnly bool
)

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Inspect cached addresses",
}

var addressesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cached addresses and xpubs",
	Long: `Show the addresses and account xpubs frontload cached for a device.
Nothing is requested from the device.`,
	Example: `  keeper addresses show
  keeper addresses show --coin Bitcoin --xpubs`,
	RunE: runAddressesShow,
}

type addressesResponse struct {
	DeviceID  string          `json:"device_id"`
	Addresses []cache.Address `json:"addresses"`
}

func (r *addressesResponse) RenderText(w io.Writer) error {
	if len(r.Addresses) == 0 {
		out(w, "No cached addresses for %s. Run 'keeper frontload' with the device connected.\n", r.DeviceID)
		return nil
	}
	t := output.NewTable("COIN", "SCRIPT", "PATH", "ADDRESS")
	for _, a := range r.Addresses {
		value := a.Address
		if a.IsXpub() {
			value = a.Pubkey
		}
		t.AddRow(a.CoinName, a.ScriptType, device.FormatPath(a.Path), value)
	}
	return t.Render(w)
}

func runAddressesShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	deviceID, err := resolveDevice(ctx, store, addressesDevice)
	if err != nil {
		return err
	}
	all, err := store.Addresses(ctx, deviceID)
	if err != nil {
		return err
	}

	resp := &addressesResponse{DeviceID: deviceID, Addresses: make([]cache.Address, 0, len(all))}
	for _, a := range all {
		if addressesCoin != "" && !strings.EqualFold(a.CoinName, addressesCoin) {
			continue
		}
		if addressesXpubsOnly && !a.IsXpub() {
			continue
		}
		resp.Addresses = append(resp.Addresses, a)
	}
	return cc.Fmt.Print(resp)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(addressesCmd)
	addressesCmd.AddCommand(addressesShowCmd)

	addressesShowCmd.Flags().StringVar(&addressesDevice, "device", "", "device id (default: most recently seen)")
	addressesShowCmd.Flags().StringVar(&addressesCoin, "coin", "", "only this coin, e.g. Bitcoin")
	addressesShowCmd.Flags().BoolVar(&addressesXpubsOnly, "xpubs", false, "only account xpubs")
}
