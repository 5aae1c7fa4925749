package transaction

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/txcodec"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// finalSequence disables locktime and replace-by-fee for an input.
const finalSequence uint32 = 0xffffffff

// Sign drives the device through signing tx. The device pulls every input,
// output and previous transaction it needs; the whole exchange holds the
// device channel.
func (s *Service) Sign(ctx context.Context, tx *UnsignedTx) (*SignedTx, error) {
	if s.device == nil {
		return nil, kkerr.WithDetails(kkerr.ErrDeviceUnavailable, map[string]string{"reason": "no device channel"})
	}
	if tx == nil || len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"reason": "transaction needs inputs and outputs"})
	}

	if err := s.checkSignable(tx); err != nil {
		return nil, err
	}

	prevTxs := make(map[string]string, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if in.PrevTxHex == "" {
			return nil, kkerr.WithDetails(kkerr.ErrNotFound, map[string]string{
				"txid":   in.TxID,
				"reason": "raw previous transaction missing",
			})
		}
		prevTxs[strings.ToLower(in.TxID)] = in.PrevTxHex
	}

	sig := &signing{tx: tx, prevTxs: prevTxs, signatures: make([]string, len(tx.Inputs))}
	var result *SignedTx
	err := s.device.Do(ctx, func(ctx context.Context, ch device.Channel) error {
		var req device.Request = &device.SignTx{
			CoinName:     tx.Coin,
			InputsCount:  uint32(len(tx.Inputs)),  //nolint:gosec // bounded by selection
			OutputsCount: uint32(len(tx.Outputs)), //nolint:gosec // bounded by request
			Version:      tx.Version,
			LockTime:     tx.LockTime,
		}
		for {
			resp, err := ch.Send(ctx, req)
			if err != nil {
				return err
			}
			switch r := resp.(type) {
			case *device.ButtonRequest:
				s.debug("tx sign: button request %d, confirm on device", r.Code)
				req = &device.ButtonAck{}
			case *device.Failure:
				return device.FailureError(r)
			case *device.TxRequest:
				sig.collect(r.Serialized)
				if r.RequestType == device.RequestTxFinished {
					result = sig.result(s)
					return nil
				}
				ack, err := sig.answer(r)
				if err != nil {
					return err
				}
				req = ack
			default:
				return device.UnexpectedResponse(req, resp)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkSignable runs the safety gate on tx as given. The fee the device
// signs is inputs minus outputs, whatever tx.Fee claims.
func (s *Service) checkSignable(tx *UnsignedTx) error {
	inputs, err := tx.InputTotal()
	if err != nil {
		return err
	}
	outputs, err := tx.OutputTotal()
	if err != nil {
		return err
	}
	if outputs > inputs {
		return insufficient(inputs, outputs, tx.Fee)
	}
	fee := inputs - outputs
	if fee != tx.Fee {
		return kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"fee":          strconv.FormatUint(tx.Fee, 10),
			"implicit_fee": strconv.FormatUint(fee, 10),
			"reason":       "fee does not match inputs minus outputs",
		})
	}
	payments, err := tx.PaymentTotal()
	if err != nil {
		return err
	}
	return CheckFee(fee, tx.FeeRate, payments, s.limits)
}

// signing is the state of one sign exchange.
type signing struct {
	tx         *UnsignedTx
	prevTxs    map[string]string
	signatures []string
	serialized []byte
}

// collect keeps whatever signature and serialized fragment the device
// attached to a request.
func (sg *signing) collect(ser *device.TxRequestSerialized) {
	if ser == nil {
		return
	}
	if ser.SignatureIndex != nil && int(*ser.SignatureIndex) < len(sg.signatures) {
		sg.signatures[*ser.SignatureIndex] = hex.EncodeToString(ser.Signature)
	}
	sg.serialized = append(sg.serialized, ser.SerializedTx...)
}

func (sg *signing) result(s *Service) *SignedTx {
	raw := hex.EncodeToString(sg.serialized)
	out := &SignedTx{Signatures: sg.signatures, SerializedTx: raw}
	if parsed, err := txcodec.ParseTransaction(raw); err != nil {
		s.warn("tx sign: serialized transaction does not decode: %v", err)
	} else {
		out.TxID = parsed.TxID()
	}
	return out
}

// answer builds the TxAck for one device request.
func (sg *signing) answer(r *device.TxRequest) (*device.TxAck, error) {
	var index uint32
	var prevHex string
	if r.Details != nil {
		index = r.Details.RequestIndex
		if len(r.Details.TxHash) > 0 {
			txid := hex.EncodeToString(r.Details.TxHash)
			var ok bool
			if prevHex, ok = sg.prevTxs[txid]; !ok {
				return nil, kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
					"request": r.RequestType.String(),
					"tx_hash": txid,
					"reason":  "device asked for an unknown previous transaction",
				})
			}
		}
	}

	switch r.RequestType {
	case device.RequestTxInput:
		if prevHex != "" {
			return prevInput(prevHex, index)
		}
		return sg.newInput(index)
	case device.RequestTxOutput:
		if prevHex != "" {
			return prevOutput(prevHex, index)
		}
		return sg.newOutput(index)
	case device.RequestTxMeta:
		if prevHex != "" {
			return prevMeta(prevHex)
		}
		return &device.TxAck{Tx: device.TransactionType{
			Version:      sg.tx.Version,
			LockTime:     sg.tx.LockTime,
			InputsCount:  uint32(len(sg.tx.Inputs)),  //nolint:gosec // bounded by selection
			OutputsCount: uint32(len(sg.tx.Outputs)), //nolint:gosec // bounded by request
		}}, nil
	case device.RequestTxExtraData:
		return &device.TxAck{Tx: device.TransactionType{ExtraData: []byte{}}}, nil
	case device.RequestTxFinished:
	}
	return nil, kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
		"request_type": strconv.Itoa(int(r.RequestType)),
	})
}

func (sg *signing) newInput(index uint32) (*device.TxAck, error) {
	if int(index) >= len(sg.tx.Inputs) {
		return nil, indexOutOfRange("input", index, len(sg.tx.Inputs))
	}
	in := sg.tx.Inputs[index]
	hash, err := hex.DecodeString(in.TxID)
	if err != nil {
		return nil, kkerr.WithDetails(kkerr.WithCause(kkerr.ErrMalformedInput, err), map[string]string{"txid": in.TxID})
	}
	return &device.TxAck{Tx: device.TransactionType{Inputs: []device.TxInputType{{
		AddressN:   in.AddressN,
		PrevHash:   hash,
		PrevIndex:  in.Vout,
		Sequence:   finalSequence,
		ScriptType: in.ScriptType,
		Amount:     in.Amount,
	}}}}, nil
}

func (sg *signing) newOutput(index uint32) (*device.TxAck, error) {
	if int(index) >= len(sg.tx.Outputs) {
		return nil, indexOutOfRange("output", index, len(sg.tx.Outputs))
	}
	out := sg.tx.Outputs[index]
	return &device.TxAck{Tx: device.TransactionType{Outputs: []device.TxOutputType{{
		Address:    out.Address,
		AddressN:   out.AddressN,
		Amount:     out.Amount,
		ScriptType: out.ScriptType,
	}}}}, nil
}

func prevInput(rawHex string, index uint32) (*device.TxAck, error) {
	in, err := txcodec.ExtractInputAt(rawHex, index)
	if err != nil {
		return nil, err
	}
	return &device.TxAck{Tx: device.TransactionType{Inputs: []device.TxInputType{{
		PrevHash:  in.PrevHash[:],
		PrevIndex: in.PrevIndex,
		ScriptSig: in.Script,
		Sequence:  in.Sequence,
	}}}}, nil
}

func prevOutput(rawHex string, index uint32) (*device.TxAck, error) {
	out, err := txcodec.ExtractOutputAt(rawHex, index)
	if err != nil {
		return nil, err
	}
	return &device.TxAck{Tx: device.TransactionType{BinOutputs: []device.TxOutputBinType{{
		Amount:       out.Amount,
		ScriptPubkey: out.Script,
	}}}}, nil
}

func prevMeta(rawHex string) (*device.TxAck, error) {
	m, err := txcodec.ExtractMetadata(rawHex)
	if err != nil {
		return nil, err
	}
	return &device.TxAck{Tx: device.TransactionType{
		Version:      m.Version,
		LockTime:     m.LockTime,
		InputsCount:  m.InputCount,
		OutputsCount: m.OutputCount,
	}}, nil
}

func indexOutOfRange(kind string, index uint32, count int) error {
	return kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
		"kind":  kind,
		"index": strconv.FormatUint(uint64(index), 10),
		"count": strconv.Itoa(count),
	})
}
