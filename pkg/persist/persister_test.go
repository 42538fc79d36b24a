package persist

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persisterState is a struct for persister round-trip testing.
type persisterState struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

func TestPersister_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	p := NewPersister[persisterState](path, NewJSONCodec())

	require.NoError(t, p.Save(&persisterState{Label: "hello", Value: 42}))

	restored, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, persisterState{Label: "hello", Value: 42}, *restored)
	assert.Equal(t, path, p.Path())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(filePerm), info.Mode().Perm())
}

func TestPersister_LoadMissingFile(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState](filepath.Join(t.TempDir(), "missing.json"), NewJSONCodec())

	_, err := p.Load()
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadState_DecodeError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("not json{{{"), 0o600))

	var state persisterState

	err := LoadState(path, NewJSONCodec(), &state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestSaveState_InvalidDirectory(t *testing.T) {
	t.Parallel()

	err := SaveState("/nonexistent/path/that/does/not/exist/s.json", NewJSONCodec(), persisterState{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create temp file")
}

func TestWriteFileAtomic_FailureKeepsOldContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "log.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	errBoom := errors.New("boom")

	err := WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestWriteFileAtomic_AppliesPermissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.sh")

	require.NoError(t, WriteFileAtomic(path, 0o755, func(w io.Writer) error {
		_, err := w.Write([]byte("#!/bin/sh\n"))

		return err
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), info.Mode().Perm())
}
