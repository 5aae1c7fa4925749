package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

type document struct {
	Coin string   `json:"coin"`
	Fee  uint64   `json:"fee"`
	Tags []string `json:"tags,omitempty"`
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "unsigned.json")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644)) //nolint:gosec // G306: Test file, relaxed perms OK

	require.NoError(t, WriteJSON(target, document{Coin: "Bitcoin", Fee: 2_260}))

	var got document
	require.NoError(t, ReadJSON(target, &got))
	assert.Equal(t, document{Coin: "Bitcoin", Fee: 2_260}, got)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, FilePerm, info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteJSON_FailureLeavesOriginalFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "unsigned.json")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644)) //nolint:gosec // G306: Test file, relaxed perms OK

	require.NoError(t, os.Chmod(dir, 0o500)) //nolint:gosec // G302: Test uses intentionally restrictive perms
	t.Cleanup(func() {
		_ = os.Chmod(dir, 0o700) //nolint:gosec // G302: Restoring perms in test cleanup
	})

	err := WriteJSON(target, document{Coin: "Bitcoin"})
	require.ErrorIs(t, err, kkerr.ErrStorage)
	assert.Equal(t, target, kkerr.Detail(err, "file"))

	data, readErr := os.ReadFile(target) //nolint:gosec // G304: Test path from t.TempDir()
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(data))
}

func TestWriteJSON_EmptyPath(t *testing.T) {
	t.Parallel()
	require.ErrorIs(t, WriteJSON("", document{}), kkerr.ErrValidation)
}

func TestReadJSON_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var doc document
	err := ReadJSON(filepath.Join(dir, "missing.json"), &doc)
	require.ErrorIs(t, err, kkerr.ErrNotFound)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	err = ReadJSON(bad, &doc)
	require.ErrorIs(t, err, kkerr.ErrMalformedInput)
	assert.Equal(t, bad, kkerr.Detail(err, "file"))
}
