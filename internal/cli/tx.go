package cli

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/fileutil"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/service/transaction"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// defaultSignTimeout bounds a whole signing exchange, which waits on the
// user confirming every output at the device.
const defaultSignTimeout = 5 * time.Minute

var (
	txDevice        string
	txCoin          string
	txScriptType    string
	txTo            []string
	txFeeRate       uint64
	txPercentage    string
	txUTXOs         []string
	txMax           bool
	txMaxFee        uint64
	txMaxFeePercent uint64
	txFile          string
	txSign          bool
	txYes           bool
	txSignTimeout   time.Duration
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Build and sign transactions",
}

var txBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an unsigned transaction from cached xpubs",
	Long: `Build a transaction funding the recipients from the unspent outputs of
the device's cached account xpubs. Choose the inputs with exactly one of:

  --percentage P   spend P percent of the available outputs
  --utxo TXID:N    spend exactly these outputs (repeatable)
  --max            sweep every output to a single recipient

Fees above the configured safety limits are refused; --max-fee and
--max-fee-percent can only tighten those limits for one transaction.`,
	Example: `  keeper tx build --to bc1qxy...=0.001 --fee-rate 12 --percentage 50 --file tx.json
  keeper tx build --to bc1qxy... --fee-rate 5 --max --sign`,
	RunE: runTxBuild,
}

var txSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a transaction built by 'keeper tx build'",
	Example: `  keeper tx sign --file tx.json`,
	RunE:    runTxSign,
}

// txDocument is what build writes and sign reads.
type txDocument struct {
	DeviceID string                  `json:"device_id"`
	Unsigned *transaction.UnsignedTx `json:"unsigned"`
	Signed   *transaction.SignedTx   `json:"signed,omitempty"`
}

func (d *txDocument) RenderText(w io.Writer) error {
	tx := d.Unsigned
	symbol := tx.Coin
	if coin, ok := chain.UTXOCoinByName(tx.Coin); ok {
		symbol = coin.Symbol
	}
	amount := func(sats uint64) string {
		return chain.FormatAmount(sats, chain.SatoshiDecimals) + " " + symbol
	}

	inputs := output.NewTable("INPUT", "AMOUNT", "CONFIRMATIONS", "PATH")
	for _, in := range tx.Inputs {
		inputs.AddRow(in.TxID+":"+strconv.FormatUint(uint64(in.Vout), 10), amount(in.Amount),
			strconv.FormatInt(in.Confirmations, 10), device.FormatPath(in.AddressN))
	}
	if err := inputs.Render(w); err != nil {
		return err
	}
	outln(w)

	outputs := output.NewTable("OUTPUT", "AMOUNT")
	for _, o := range tx.Outputs {
		dest := o.Address
		if o.Change {
			dest = "change " + device.FormatPath(o.AddressN)
		}
		outputs.AddRow(dest, amount(o.Amount))
	}
	if err := outputs.Render(w); err != nil {
		return err
	}

	out(w, "\nFee: %s (%d sat/byte, ~%d bytes)\n", amount(tx.Fee), tx.FeeRate, tx.Size)
	for _, warning := range tx.Warnings {
		out(w, "Warning: %s\n", warning)
	}
	if d.Signed != nil {
		out(w, "\nSigned transaction %s:\n%s\n", d.Signed.TxID, d.Signed.SerializedTx)
	}
	return nil
}

// parseRecipient reads "address=amount". In max mode the amount may be
// left out.
func parseRecipient(s string, sweep bool) (transaction.Recipient, error) {
	addr, amount, found := strings.Cut(strings.TrimSpace(s), "=")
	if !found && !sweep {
		return transaction.Recipient{}, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"to":     s,
			"reason": "expected address=amount",
		})
	}
	return transaction.Recipient{Address: strings.TrimSpace(addr), Amount: strings.TrimSpace(amount)}, nil
}

// buildRequest turns the build flags into a request. Exactly one input
// selection flag must be given.
func buildRequest(deviceID string) (*transaction.BuildRequest, error) {
	req := &transaction.BuildRequest{
		DeviceID:      deviceID,
		Coin:          txCoin,
		ScriptType:    txScriptType,
		FeeRate:       txFeeRate,
		MaxFee:        txMaxFee,
		MaxFeePercent: txMaxFeePercent,
	}

	modes := 0
	if txPercentage != "" {
		modes++
		pct, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(txPercentage), "%"))
		if err != nil {
			return nil, kkerr.WithDetails(kkerr.WithCause(kkerr.ErrValidation, err), map[string]string{"percentage": txPercentage})
		}
		req.Mode, req.Percentage = transaction.SelectPercentage, pct
	}
	if len(txUTXOs) > 0 {
		modes++
		req.Mode, req.Outpoints = transaction.SelectExplicit, txUTXOs
	}
	if txMax {
		modes++
		req.Mode = transaction.SelectMax
	}
	if modes != 1 {
		return nil, kkerr.WithSuggestion(
			kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"selection": strconv.Itoa(modes) + " modes given"}),
			"choose exactly one of --percentage, --utxo or --max")
	}

	for _, to := range txTo {
		r, err := parseRecipient(to, txMax)
		if err != nil {
			return nil, err
		}
		req.Recipients = append(req.Recipients, r)
	}
	return req, nil
}

func runTxBuild(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.Cfg.PricingTimeout())
	defer cancel()

	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	deviceID, err := resolveDevice(ctx, store, txDevice)
	if err != nil {
		return err
	}
	req, err := buildRequest(deviceID)
	if err != nil {
		return err
	}

	svc := transaction.NewService(&transaction.Config{
		Store:  store,
		UTXOs:  cc.pricing(),
		Limits: transaction.LimitsFromConfig(cc.Cfg.Fees),
		Logger: cc.Log,
	})
	tx, err := svc.Build(ctx, req)
	if err != nil {
		return err
	}
	doc := &txDocument{DeviceID: deviceID, Unsigned: tx}

	if txSign {
		if err := signDocument(cmd, cc, doc); err != nil {
			return err
		}
	}
	if txFile != "" {
		if err := fileutil.WriteJSON(txFile, doc); err != nil {
			return err
		}
		cc.Log.Info("transaction written to %s", txFile)
	}
	return cc.Fmt.Print(doc)
}

func runTxSign(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	var doc txDocument
	if err := fileutil.ReadJSON(txFile, &doc); err != nil {
		return err
	}
	if doc.Unsigned == nil {
		return kkerr.WithDetails(kkerr.ErrMalformedInput, map[string]string{
			"file":   txFile,
			"reason": "no unsigned transaction",
		})
	}
	if err := signDocument(cmd, cc, &doc); err != nil {
		return err
	}
	if err := fileutil.WriteJSON(txFile, &doc); err != nil {
		return err
	}
	return cc.Fmt.Print(&doc)
}

// signDocument shows the transaction, asks for confirmation unless --yes
// was given, and signs it on the device.
func signDocument(cmd *cobra.Command, cc *CommandContext, doc *txDocument) error {
	if !txYes {
		if err := doc.RenderText(cmd.ErrOrStderr()); err != nil {
			return err
		}
		if !promptConfirmFn("Sign this transaction on the device?") {
			return kkerr.WithDetails(kkerr.ErrDeviceRejected, map[string]string{"reason": "signing declined"})
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	guard, release, err := cc.connectFor(ctx, txSignTimeout)
	if err != nil {
		return err
	}
	defer release()

	if doc.DeviceID != "" {
		id, _, err := identify(ctx, guard)
		if err != nil {
			return err
		}
		if id != doc.DeviceID {
			return kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"reason":    "transaction was built for another device",
				"built_for": doc.DeviceID,
				"connected": id,
			})
		}
	}

	outln(cmd.ErrOrStderr(), "Confirm each output on the device.")
	svc := transaction.NewService(&transaction.Config{
		Device: guard,
		Limits: transaction.LimitsFromConfig(cc.Cfg.Fees),
		Logger: cc.Log,
	})
	signed, err := svc.Sign(ctx, doc.Unsigned)
	if err != nil {
		return err
	}
	doc.Signed = signed
	cc.Log.Info("transaction %s signed", signed.TxID)
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txBuildCmd, txSignCmd)

	b := txBuildCmd.Flags()
	b.StringVar(&txDevice, "device", "", "device id (default: most recently seen)")
	b.StringVar(&txCoin, "coin", transaction.DefaultCoin, "coin name as the device knows it")
	b.StringVar(&txScriptType, "script-type", transaction.DefaultScriptType, "input script type: p2pkh, p2sh-p2wpkh, p2wpkh")
	b.StringArrayVar(&txTo, "to", nil, "recipient as address=amount (repeatable)")
	b.Uint64Var(&txFeeRate, "fee-rate", 0, "fee rate in satoshis per byte")
	b.StringVar(&txPercentage, "percentage", "", "spend this percent of the available outputs")
	b.StringArrayVar(&txUTXOs, "utxo", nil, "spend this outpoint, txid:index (repeatable)")
	b.BoolVar(&txMax, "max", false, "sweep every output to a single recipient")
	b.Uint64Var(&txMaxFee, "max-fee", 0, "refuse fees above this many satoshis")
	b.Uint64Var(&txMaxFeePercent, "max-fee-percent", 0, "refuse fees above this percent of the amount sent")
	b.StringVar(&txFile, "file", "", "write the transaction document to this file")
	b.BoolVar(&txSign, "sign", false, "sign on the device right after building")
	_ = txBuildCmd.MarkFlagRequired("to")
	_ = txBuildCmd.MarkFlagRequired("fee-rate")

	s := txSignCmd.Flags()
	s.StringVar(&txFile, "file", "", "transaction document written by 'keeper tx build'")
	_ = txSignCmd.MarkFlagRequired("file")

	for _, c := range []*cobra.Command{txBuildCmd, txSignCmd} {
		c.Flags().BoolVarP(&txYes, "yes", "y", false, "sign without asking for confirmation")
		c.Flags().DurationVar(&txSignTimeout, "sign-timeout", defaultSignTimeout, "how long to wait for the device to sign")
	}
}
