package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/flow"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/session"
)

var (
	pinLabel         string
	pinStrength      uint32
	pinPassphrase    bool
	pinDisplayRandom bool
	pinForce         bool
)

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Device PIN operations",
}

var pinCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Initialize the device with a new seed protected by a PIN",
	Long: `Reset the device with a freshly generated seed and set its PIN. The PIN
is entered twice through the scrambled keypad shown on the device; the
host only ever sees keypad positions.`,
	Example: `  keeper pin create --label "savings"`,
	RunE:    runPinCreate,
}

// pinHandlers answers the PIN creation steps.
func pinHandlers(w io.Writer, pc *flow.PinController) map[session.Step]stepHandler {
	submit := func(prompt string) stepHandler {
		return func(ctx context.Context, s session.Session) (session.Session, error) {
			text, err := promptSecretFn(prompt)
			if err != nil {
				return session.Session{}, err
			}
			positions, err := flow.ParsePositions(text)
			if err != nil {
				return session.Session{}, err
			}
			return pc.SubmitPin(ctx, s.ID, positions)
		}
	}
	return map[session.Step]stepHandler{
		session.StepAwaitingFirst:  submit("New PIN: "),
		session.StepAwaitingSecond: submit("Repeat PIN: "),
		session.StepAwaitingButton: func(ctx context.Context, s session.Session) (session.Session, error) {
			outln(w, "Confirm on the device.")
			return pc.AckButton(ctx, s.ID)
		},
	}
}

func runPinCreate(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()
	prompts := cmd.ErrOrStderr()

	guard, release, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	deviceID, _, err := identify(ctx, guard)
	if err != nil {
		return err
	}

	pc := flow.NewPinController(&flow.Config{
		Device:   guard,
		DeviceID: deviceID,
		Sessions: session.NewManager(nil),
		Logger:   cc.Log,
	})

	s, err := pc.Start(ctx, flow.PinOptions{
		Label:                pinLabel,
		Strength:             pinStrength,
		PassphraseProtection: pinPassphrase,
		DisplayRandom:        pinDisplayRandom,
		Force:                pinForce,
	})
	if err != nil {
		return err
	}

	outln(prompts, pinLayout)
	s, err = driveSession(ctx, cc, prompts, s, pc.Cancel, pinHandlers(prompts, pc))
	if err != nil {
		return err
	}
	return cc.Fmt.Print(newSessionResponse(s))
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinCreateCmd)

	f := pinCreateCmd.Flags()
	f.StringVar(&pinLabel, "label", "", "device label")
	f.Uint32Var(&pinStrength, "strength", 256, "seed strength in bits: 128, 192 or 256")
	f.BoolVar(&pinPassphrase, "passphrase", false, "enable passphrase protection")
	f.BoolVar(&pinDisplayRandom, "display-random", false, "show the device entropy before generating the seed")
	f.BoolVar(&pinForce, "force", false, "replace a PIN session left open on this device")
}
