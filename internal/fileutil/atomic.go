// Package fileutil reads and writes the JSON documents the CLI hands
// between commands, such as an unsigned transaction built by one command
// and signed by another.
package fileutil

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// FilePerm is the mode of files written here. Transaction documents
// reveal account paths, so they are private to the user.
const FilePerm os.FileMode = 0o600

// WriteJSON encodes v as indented JSON and replaces path with it. The
// document is written to a sibling temp file and renamed into place, so a
// reader never sees a partial file and a failed write leaves any previous
// file intact.
func WriteJSON(path string, v any) error {
	if path == "" {
		return kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"file": "path is empty"})
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return kkerr.WithCause(kkerr.ErrGeneral, err)
	}
	data = append(data, '\n')

	if err := writeAtomic(path, data); err != nil {
		return kkerr.WithDetails(kkerr.WithCause(kkerr.ErrStorage, err), map[string]string{"file": path})
	}
	return nil
}

// ReadJSON decodes the JSON document at path into v. A missing file is
// ErrNotFound and undecodable content is ErrMalformedInput.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the user on the command line
	switch {
	case errors.Is(err, os.ErrNotExist):
		return kkerr.WithDetails(kkerr.ErrNotFound, map[string]string{"file": path})
	case err != nil:
		return kkerr.WithDetails(kkerr.WithCause(kkerr.ErrStorage, err), map[string]string{"file": path})
	}
	if err := json.Unmarshal(data, v); err != nil {
		return kkerr.WithDetails(kkerr.WithCause(kkerr.ErrMalformedInput, err), map[string]string{"file": path})
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(FilePerm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path) //nolint:gosec // G703: path is chosen by the user on the command line
}
