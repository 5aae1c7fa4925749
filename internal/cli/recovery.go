package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/flow"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/session"
)

var (
	recoveryWords      uint32
	recoveryDryRun     bool
	recoveryPin        bool
	recoveryPassphrase bool
	recoveryLabel      string
	recoveryForce      bool
)

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Seed recovery operations",
}

var recoveryStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Recover a seed, or verify the current one with --dry-run",
	Long: `Enter a recovery seed through the device's character cipher. The device
shows a scrambled alphabet; type the letter at the position of the
letter you mean. Type "space" (or a single space) to end a word,
"delete" to erase a character and "done" after the last word.`,
	Example: `  keeper recovery start --words 24
  keeper recovery start --words 12 --dry-run`,
	RunE: runRecoveryStart,
}

// recoveryHandlers answers the recovery steps.
func recoveryHandlers(w io.Writer, rc *flow.RecoveryController) map[session.Step]stepHandler {
	return map[session.Step]stepHandler{
		session.StepAwaitingPin: func(ctx context.Context, s session.Session) (session.Session, error) {
			outln(w, pinLayout)
			text, err := promptSecretFn("PIN: ")
			if err != nil {
				return session.Session{}, err
			}
			positions, err := flow.ParsePositions(text)
			if err != nil {
				return session.Session{}, err
			}
			return rc.SubmitPin(ctx, s.ID, positions)
		},
		session.StepAwaitingCharacter: func(ctx context.Context, s session.Session) (session.Session, error) {
			text, err := promptSecretFn(characterPrompt(s))
			if err != nil {
				return session.Session{}, err
			}
			k, err := flow.ParseKeystroke(text)
			if err != nil {
				return session.Session{}, err
			}
			return rc.SubmitCharacter(ctx, s.ID, k)
		},
		session.StepAwaitingButton: func(ctx context.Context, s session.Session) (session.Session, error) {
			outln(w, "Confirm on the device.")
			return rc.AckButton(ctx, s.ID)
		},
	}
}

func characterPrompt(s session.Session) string {
	if s.WordCount > 0 {
		return fmt.Sprintf("Word %d/%d, letter %d: ", s.WordPos+1, s.WordCount, s.CharacterPos+1)
	}
	return fmt.Sprintf("Word %d, letter %d: ", s.WordPos+1, s.CharacterPos+1)
}

func runRecoveryStart(cmd *cobra.Command, _ []string) error {
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

	rc := flow.NewRecoveryController(&flow.Config{
		Device:   guard,
		DeviceID: deviceID,
		Sessions: session.NewManager(nil),
		Logger:   cc.Log,
	})

	s, err := rc.Start(ctx, flow.RecoveryOptions{
		WordCount:            recoveryWords,
		DryRun:               recoveryDryRun,
		PinProtection:        recoveryPin,
		PassphraseProtection: recoveryPassphrase,
		Label:                recoveryLabel,
		Force:                recoveryForce,
	})
	if err != nil {
		return err
	}

	s, err = driveSession(ctx, cc, prompts, s, rc.Cancel, recoveryHandlers(prompts, rc))
	if err != nil {
		return err
	}
	return cc.Fmt.Print(newSessionResponse(s))
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(recoveryCmd)
	recoveryCmd.AddCommand(recoveryStartCmd)

	f := recoveryStartCmd.Flags()
	f.Uint32Var(&recoveryWords, "words", 24, "number of seed words: 12, 18 or 24")
	f.BoolVar(&recoveryDryRun, "dry-run", false, "verify the seed on the device instead of replacing it")
	f.BoolVar(&recoveryPin, "pin", true, "protect the recovered seed with a PIN")
	f.BoolVar(&recoveryPassphrase, "passphrase", false, "enable passphrase protection")
	f.StringVar(&recoveryLabel, "label", "", "device label")
	f.BoolVar(&recoveryForce, "force", false, "replace a recovery session left open on this device")
}
