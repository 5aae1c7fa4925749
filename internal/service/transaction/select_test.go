package transaction

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

func txid(c string) string {
	return strings.Repeat(c, 64)
}

func TestParseOutpoint(t *testing.T) {
	t.Parallel()

	o, err := ParseOutpoint(" " + strings.ToUpper(txid("ab")[:64]) + ":3 ")
	require.NoError(t, err)
	assert.Equal(t, txid("ab")[:64], o.TxID)
	assert.Equal(t, uint32(3), o.Vout)
	assert.Equal(t, txid("ab")[:64]+":3", o.String())

	bad := []struct {
		name  string
		input string
	}{
		{"no separator", txid("a")},
		{"short txid", "abcd:0"},
		{"not hex", txid("g") + ":0"},
		{"negative index", txid("a") + ":-1"},
		{"index too large", txid("a") + ":4294967296"},
		{"empty index", txid("a") + ":"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseOutpoint(tt.input)
			require.ErrorIs(t, err, kkerr.ErrValidation)
			assert.Equal(t, tt.input, kkerr.Detail(err, "outpoint"))
		})
	}
}

func TestSelectPercentage(t *testing.T) {
	t.Parallel()

	available := []Input{
		{TxID: txid("1"), Amount: 500, Confirmations: 2},
		{TxID: txid("2"), Amount: 900, Confirmations: 100},
		{TxID: txid("3"), Amount: 100, Confirmations: 100},
		{TxID: txid("4"), Amount: 300, Confirmations: 50},
	}

	tests := []struct {
		pct      int64
		expected []string
	}{
		{100, []string{txid("3"), txid("2"), txid("4"), txid("1")}},
		{50, []string{txid("3"), txid("2")}},
		{30, []string{txid("3"), txid("2")}}, // 1.2 rounds up
		{25, []string{txid("3")}},
		{1, []string{txid("3")}}, // never fewer than one
	}
	for _, tt := range tests {
		got := selectPercentage(available, decimal.NewFromInt(tt.pct))
		ids := make([]string, 0, len(got))
		for _, in := range got {
			ids = append(ids, in.TxID)
		}
		assert.Equal(t, tt.expected, ids, "pct %d", tt.pct)
	}

	// The caller's slice keeps its order.
	assert.Equal(t, txid("1"), available[0].TxID)
}

func TestSelectExplicit(t *testing.T) {
	t.Parallel()

	available := []Input{
		{TxID: txid("a"), Vout: 0, Amount: 1},
		{TxID: txid("a"), Vout: 1, Amount: 2},
		{TxID: txid("b"), Vout: 0, Amount: 3},
	}

	got, err := selectExplicit(available, []Outpoint{
		{TxID: txid("b"), Vout: 0},
		{TxID: txid("a"), Vout: 1},
		{TxID: txid("b"), Vout: 0},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Amount)
	assert.Equal(t, uint64(2), got[1].Amount)

	_, err = selectExplicit(available, []Outpoint{{TxID: txid("a"), Vout: 2}})
	require.ErrorIs(t, err, kkerr.ErrUTXONotFound)
	assert.Equal(t, txid("a")+":2", kkerr.Detail(err, "outpoint"))
}

func TestLimits_TightenedOnlyLowers(t *testing.T) {
	t.Parallel()

	base := DefaultLimits()
	assert.Equal(t, base, base.tightened(0, 0))
	assert.Equal(t, base, base.tightened(base.MaxFee*10, 90))

	l := base.tightened(5_000, 10)
	assert.Equal(t, uint64(5_000), l.MaxFee)
	assert.Equal(t, uint64(10), l.MaxFeePercent)
}

func TestWarnings(t *testing.T) {
	t.Parallel()

	tx := &UnsignedTx{
		Inputs: []Input{
			{TxID: txid("a"), Vout: 1, Confirmations: 5},
			{TxID: txid("b"), Vout: 0, Confirmations: 6},
		},
		Outputs: []Output{
			{Amount: 200_000},
			{Amount: 123_456},
			{Amount: 300_000, Change: true},
		},
	}
	got := warnings(tx)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], txid("a")+":1")
	assert.Contains(t, got[1], "output 0")
}
