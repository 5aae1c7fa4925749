// Package txcodec decodes the raw Bitcoin-style transactions the device asks
// about while signing. All functions are pure and never panic on bad input:
// every out-of-bounds read is reported as ErrMalformedInput.
package txcodec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Input is one decoded transaction input.
type Input struct {
	// PrevHash is the previous transaction id in display order, i.e.
	// reversed from the wire bytes.
	PrevHash  [chainhash.HashSize]byte
	PrevIndex uint32
	Script    []byte
	Sequence  uint32
}

// Output is one decoded transaction output.
type Output struct {
	Amount uint64
	Script []byte
}

// Metadata is the transaction header the device requests with TXMETA.
type Metadata struct {
	Version     uint32
	LockTime    uint32
	InputCount  uint32
	OutputCount uint32
}

// Transaction is a decoded transaction without witness data.
type Transaction struct {
	Version  uint32
	Witness  bool
	Inputs   []Input
	Outputs  []Output
	LockTime uint32
}

// Metadata returns the header of tx.
func (tx *Transaction) Metadata() Metadata {
	return Metadata{
		Version:     tx.Version,
		LockTime:    tx.LockTime,
		InputCount:  uint32(len(tx.Inputs)),  //nolint:gosec // bounded by input length
		OutputCount: uint32(len(tx.Outputs)), //nolint:gosec // bounded by input length
	}
}

// MsgTx converts tx to a btcd message. Witness stacks are not retained.
func (tx *Transaction) MsgTx() *wire.MsgTx {
	msg := wire.NewMsgTx(int32(tx.Version)) //nolint:gosec // version is an opaque 32-bit field
	msg.LockTime = tx.LockTime
	for _, in := range tx.Inputs {
		var h chainhash.Hash
		copy(h[:], reversed(in.PrevHash[:]))
		txIn := wire.NewTxIn(wire.NewOutPoint(&h, in.PrevIndex), in.Script, nil)
		txIn.Sequence = in.Sequence
		msg.AddTxIn(txIn)
	}
	for _, out := range tx.Outputs {
		msg.AddTxOut(wire.NewTxOut(int64(out.Amount), out.Script)) //nolint:gosec // amounts fit in int64
	}
	return msg
}

// TxID returns the transaction id in display order.
func (tx *Transaction) TxID() string {
	return tx.MsgTx().TxHash().String()
}

// ReadVarint decodes a Bitcoin variable-length integer from the start of b
// and returns its value and the number of bytes consumed. Non-canonical
// encodings are accepted.
func ReadVarint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, malformed("varint", 0, 1, 0)
	}
	var size int
	switch b[0] {
	case 0xfd:
		size = 2
	case 0xfe:
		size = 4
	case 0xff:
		size = 8
	default:
		return uint64(b[0]), 1, nil
	}
	if len(b) < 1+size {
		return 0, 0, malformed("varint", 0, 1+size, len(b))
	}
	var v uint64
	switch size {
	case 2:
		v = uint64(binary.LittleEndian.Uint16(b[1:]))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(b[1:]))
	default:
		v = binary.LittleEndian.Uint64(b[1:])
	}
	return v, 1 + size, nil
}

// ParseTransaction decodes a hex-encoded transaction.
func ParseTransaction(rawHex string) (*Transaction, error) {
	r, err := newReader(rawHex)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{}
	if tx.Version, err = r.uint32("version"); err != nil {
		return nil, err
	}
	if tx.Witness, err = r.witnessMarker(); err != nil {
		return nil, err
	}

	inCount, err := r.count("input count", 41)
	if err != nil {
		return nil, err
	}
	tx.Inputs = make([]Input, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		in, err := r.input()
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	outCount, err := r.count("output count", 9)
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]Output, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		out, err := r.output()
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	if tx.Witness {
		for i := uint64(0); i < inCount; i++ {
			if err := r.skipWitness(); err != nil {
				return nil, err
			}
		}
	}

	if tx.LockTime, err = r.uint32("lock time"); err != nil {
		return nil, err
	}
	return tx, nil
}

// ExtractInputAt decodes only the input at index, skipping earlier inputs
// without materializing them.
func ExtractInputAt(rawHex string, index uint32) (Input, error) {
	r, inCount, err := seekInputs(rawHex)
	if err != nil {
		return Input{}, err
	}
	if uint64(index) >= inCount {
		return Input{}, outOfRange("input", index, inCount)
	}
	for i := uint32(0); i < index; i++ {
		if err := r.skipInput(); err != nil {
			return Input{}, err
		}
	}
	return r.input()
}

// ExtractOutputAt decodes only the output at index.
func ExtractOutputAt(rawHex string, index uint32) (Output, error) {
	r, inCount, err := seekInputs(rawHex)
	if err != nil {
		return Output{}, err
	}
	for i := uint64(0); i < inCount; i++ {
		if err := r.skipInput(); err != nil {
			return Output{}, err
		}
	}
	outCount, err := r.count("output count", 9)
	if err != nil {
		return Output{}, err
	}
	if uint64(index) >= outCount {
		return Output{}, outOfRange("output", index, outCount)
	}
	for i := uint32(0); i < index; i++ {
		if err := r.skipOutput(); err != nil {
			return Output{}, err
		}
	}
	return r.output()
}

// ExtractMetadata returns version, lock time and the input/output counts.
// The lock time sits after every input, output and witness, so the whole
// body is walked, but nothing is copied.
func ExtractMetadata(rawHex string) (Metadata, error) {
	r, err := newReader(rawHex)
	if err != nil {
		return Metadata{}, err
	}

	var m Metadata
	if m.Version, err = r.uint32("version"); err != nil {
		return Metadata{}, err
	}
	witness, err := r.witnessMarker()
	if err != nil {
		return Metadata{}, err
	}
	inCount, err := r.count("input count", 41)
	if err != nil {
		return Metadata{}, err
	}
	for i := uint64(0); i < inCount; i++ {
		if err := r.skipInput(); err != nil {
			return Metadata{}, err
		}
	}
	outCount, err := r.count("output count", 9)
	if err != nil {
		return Metadata{}, err
	}
	for i := uint64(0); i < outCount; i++ {
		if err := r.skipOutput(); err != nil {
			return Metadata{}, err
		}
	}
	if witness {
		for i := uint64(0); i < inCount; i++ {
			if err := r.skipWitness(); err != nil {
				return Metadata{}, err
			}
		}
	}
	if m.LockTime, err = r.uint32("lock time"); err != nil {
		return Metadata{}, err
	}
	m.InputCount = uint32(inCount)   //nolint:gosec // count bounded by input length
	m.OutputCount = uint32(outCount) //nolint:gosec // count bounded by input length
	return m, nil
}

func seekInputs(rawHex string) (*reader, uint64, error) {
	r, err := newReader(rawHex)
	if err != nil {
		return nil, 0, err
	}
	if _, err := r.uint32("version"); err != nil {
		return nil, 0, err
	}
	if _, err := r.witnessMarker(); err != nil {
		return nil, 0, err
	}
	n, err := r.count("input count", 41)
	if err != nil {
		return nil, 0, err
	}
	return r, n, nil
}

// reader is a bounds-checked cursor over raw transaction bytes.
type reader struct {
	b   []byte
	pos int
}

func newReader(rawHex string) (*reader, error) {
	b, err := hex.DecodeString(strings.TrimSpace(rawHex))
	if err != nil {
		return nil, kkerr.WithDetails(kkerr.WithCause(kkerr.ErrMalformedInput, err), map[string]string{
			"field": "hex",
		})
	}
	return &reader{b: b}, nil
}

func (r *reader) remaining() int {
	return len(r.b) - r.pos
}

func (r *reader) take(field string, n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, malformed(field, r.pos, n, r.remaining())
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) uint32(field string) (uint32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64(field string) (uint64, error) {
	b, err := r.take(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) varint(field string) (uint64, error) {
	v, n, err := ReadVarint(r.b[r.pos:])
	if err != nil {
		return 0, kkerr.WithDetails(kkerr.ErrMalformedInput, map[string]string{
			"field":  field,
			"offset": fmt.Sprintf("%d", r.pos),
		})
	}
	r.pos += n
	return v, nil
}

// count reads a list length and rejects lengths that cannot fit in the
// remaining bytes given the minimum encoded size of one element.
func (r *reader) count(field string, minElem int) (uint64, error) {
	start := r.pos
	n, err := r.varint(field)
	if err != nil {
		return 0, err
	}
	if n > uint64(r.remaining()/minElem) { //nolint:gosec // remaining is non-negative
		return 0, kkerr.WithDetails(kkerr.ErrMalformedInput, map[string]string{
			"field":  field,
			"offset": fmt.Sprintf("%d", start),
			"count":  fmt.Sprintf("%d", n),
		})
	}
	return n, nil
}

func (r *reader) bytes(field string) ([]byte, error) {
	n, err := r.varint(field + " length")
	if err != nil {
		return nil, err
	}
	if n > uint64(r.remaining()) { //nolint:gosec // remaining is non-negative
		return nil, malformed(field, r.pos, int(min(n, uint64(len(r.b)+1))), r.remaining()) //nolint:gosec // clamped
	}
	return r.take(field, int(n)) //nolint:gosec // bounded above
}

// witnessMarker consumes the BIP144 marker and flag when present.
func (r *reader) witnessMarker() (bool, error) {
	if r.remaining() >= 2 && r.b[r.pos] == 0x00 && r.b[r.pos+1] == 0x01 {
		r.pos += 2
		return true, nil
	}
	return false, nil
}

func (r *reader) input() (Input, error) {
	var in Input
	hash, err := r.take("previous hash", chainhash.HashSize)
	if err != nil {
		return Input{}, err
	}
	copy(in.PrevHash[:], reversed(hash))
	if in.PrevIndex, err = r.uint32("previous index"); err != nil {
		return Input{}, err
	}
	script, err := r.bytes("input script")
	if err != nil {
		return Input{}, err
	}
	in.Script = append([]byte(nil), script...)
	if in.Sequence, err = r.uint32("sequence"); err != nil {
		return Input{}, err
	}
	return in, nil
}

func (r *reader) skipInput() error {
	if _, err := r.take("previous outpoint", chainhash.HashSize+4); err != nil {
		return err
	}
	if _, err := r.bytes("input script"); err != nil {
		return err
	}
	_, err := r.take("sequence", 4)
	return err
}

func (r *reader) output() (Output, error) {
	var out Output
	var err error
	if out.Amount, err = r.uint64("amount"); err != nil {
		return Output{}, err
	}
	script, err := r.bytes("output script")
	if err != nil {
		return Output{}, err
	}
	out.Script = append([]byte(nil), script...)
	return out, nil
}

func (r *reader) skipOutput() error {
	if _, err := r.take("amount", 8); err != nil {
		return err
	}
	_, err := r.bytes("output script")
	return err
}

func (r *reader) skipWitness() error {
	items, err := r.count("witness item count", 1)
	if err != nil {
		return err
	}
	for i := uint64(0); i < items; i++ {
		if _, err := r.bytes("witness item"); err != nil {
			return err
		}
	}
	return nil
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func malformed(field string, offset, want, have int) error {
	return kkerr.WithDetails(kkerr.ErrMalformedInput, map[string]string{
		"field":  field,
		"offset": fmt.Sprintf("%d", offset),
		"need":   fmt.Sprintf("%d", want),
		"have":   fmt.Sprintf("%d", have),
	})
}

func outOfRange(kind string, index uint32, count uint64) error {
	return kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
		"kind":  kind,
		"index": fmt.Sprintf("%d", index),
		"count": fmt.Sprintf("%d", count),
	})
}
