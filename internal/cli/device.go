package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/frontload"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/version"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

var (
	openerMu sync.RWMutex
	opener   device.Opener

	// newVersionClient is swapped in tests.
	newVersionClient = func() *version.Client { return version.NewClient() }

	deviceFlagID       string
	deviceCheckUpdates bool
)

// RegisterOpener installs the transport used by every command that talks
// to a device. The USB/HID framing is provided by the embedding binary.
func RegisterOpener(o device.Opener) {
	openerMu.Lock()
	defer openerMu.Unlock()
	opener = o
}

func registeredOpener() device.Opener {
	openerMu.RLock()
	defer openerMu.RUnlock()
	return opener
}

// connect detects the device and wraps it for exclusive, instrumented use.
// The returned func releases the transport.
func (cc *CommandContext) connect(ctx context.Context) (*device.Guard, func(), error) {
	return cc.connectFor(ctx, cc.Cfg.DeviceTimeout())
}

// connectFor is connect with a custom bound on each guarded operation, for
// flows that wait on the user confirming at the device.
func (cc *CommandContext) connectFor(ctx context.Context, timeout time.Duration) (*device.Guard, func(), error) {
	if cc.Opener == nil {
		return nil, func() {}, kkerr.WithSuggestion(kkerr.ErrDeviceUnavailable,
			"this keeper build has no device transport registered")
	}

	retry := chain.DetectRetryConfig()
	if cc.Cfg.Device.DetectAttempts > 0 {
		retry.MaxAttempts = cc.Cfg.Device.DetectAttempts
	}
	if d := cc.Cfg.DetectBaseDelay(); d > 0 {
		retry.BaseDelay = d
	}

	ch, err := device.Detect(ctx, cc.Opener, retry)
	if err != nil {
		return nil, func() {}, kkerr.WithSuggestion(err, "check that the KeepKey is plugged in and unlocked")
	}
	inst := device.Instrument(ch, cc.Log, cc.Metrics)
	release := func() {
		if err := inst.Close(); err != nil {
			cc.Log.Warn("closing device: %v", err)
		}
	}
	return device.NewGuard(inst, timeout), release, nil
}

// identify asks the device for its features.
func identify(ctx context.Context, guard device.Exclusive) (string, *device.Features, error) {
	var features *device.Features
	err := guard.Do(ctx, func(ctx context.Context, ch device.Channel) error {
		f, err := device.Call[*device.Features](ctx, ch, &device.GetFeatures{})
		features = f
		return err
	})
	if err != nil {
		return "", nil, err
	}
	id := frontload.DeviceID(features.DeviceID)
	if id == "" {
		return "", nil, kkerr.WithDetails(kkerr.ErrDeviceUnavailable, map[string]string{"reason": "device reported no id"})
	}
	return id, features, nil
}

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Inspect the connected device",
}

var deviceInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device features",
	Long: `Show the features of the connected device. Without a registered
transport the features cached by the last frontload are shown instead.`,
	Example: `  keeper device info
  keeper device info --check-updates`,
	RunE: runDeviceInfo,
}

type deviceInfoResponse struct {
	DeviceID string           `json:"device_id"`
	Cached   bool             `json:"cached"`
	Firmware string           `json:"firmware"`
	Features *device.Features `json:"features"`
	Update   *version.Status  `json:"update,omitempty"`
}

func (r *deviceInfoResponse) RenderText(w io.Writer) error {
	f := r.Features
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("Device ID", r.DeviceID)
	t.AddRow("Label", f.Label)
	t.AddRow("Model", f.Model)
	t.AddRow("Firmware", r.Firmware)
	t.AddRow("Bootloader mode", strconv.FormatBool(f.BootloaderMode))
	t.AddRow("Initialized", strconv.FormatBool(f.Initialized))
	t.AddRow("PIN protection", strconv.FormatBool(f.PinProtection))
	t.AddRow("Passphrase protection", strconv.FormatBool(f.PassphraseProtection))
	t.AddRow("Needs backup", strconv.FormatBool(f.NeedsBackup))
	if r.Cached {
		t.AddRow("Source", "cache")
	}
	if err := t.Render(w); err != nil {
		return err
	}
	if u := r.Update; u != nil {
		if u.UpdateAvailable {
			_, err := fmt.Fprintf(w, "\nFirmware %s is available: %s\n", u.Latest, u.ReleaseURL)
			return err
		}
		_, err := fmt.Fprintf(w, "\nFirmware is up to date (latest %s)\n", u.Latest)
		return err
	}
	return nil
}

func runDeviceInfo(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.Cfg.DeviceTimeout()+cc.Cfg.PricingTimeout())
	defer cancel()

	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	resp := &deviceInfoResponse{}
	if cc.Opener == nil {
		id, err := resolveDevice(ctx, store, deviceFlagID)
		if err != nil {
			return err
		}
		f, ok := store.CachedFeatures()
		if !ok {
			return kkerr.WithDetails(kkerr.ErrNotFound, map[string]string{"device_id": id})
		}
		resp.DeviceID, resp.Features, resp.Cached = id, f, true
	} else {
		guard, release, err := cc.connect(ctx)
		if err != nil {
			return err
		}
		defer release()

		id, f, err := identify(ctx, guard)
		if err != nil {
			return err
		}
		if err := store.SaveFeatures(ctx, id, f); err != nil {
			return err
		}
		resp.DeviceID, resp.Features = id, f
	}
	resp.Firmware = version.Firmware(resp.Features)

	if deviceCheckUpdates {
		status, err := newVersionClient().Check(ctx, resp.Features)
		if err != nil {
			// The device answer is still worth showing.
			cc.Log.Warn("firmware update check failed: %v", err)
		} else {
			resp.Update = status
		}
	}
	return cc.Fmt.Print(resp)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceInfoCmd)

	deviceInfoCmd.Flags().StringVar(&deviceFlagID, "device", "", "cached device id (default: most recently seen)")
	deviceInfoCmd.Flags().BoolVar(&deviceCheckUpdates, "check-updates", false, "compare the firmware with the latest release")
}
