package persist

import (
	"fmt"
	"io"
	"os"
)

// filePerm is the permission of persisted state files.
const filePerm = 0o644

// SaveState atomically writes state to path using codec.
func SaveState(path string, codec Codec, state any) error {
	err := WriteFileAtomic(path, filePerm, func(w io.Writer) error {
		return codec.Encode(w, state)
	})
	if err != nil {
		return fmt.Errorf("save state %s: %w", path, err)
	}

	return nil
}

// LoadState decodes path into state, which must be a pointer.
// A missing file is reported with an error satisfying errors.Is(err, fs.ErrNotExist).
func LoadState(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state %s: %w", path, err)
	}

	return nil
}

// Persister handles I/O for a specific state type using a Codec.
type Persister[T any] struct {
	path  string
	codec Codec
}

// NewPersister creates a persister for the file at path.
func NewPersister[T any](path string, codec Codec) *Persister[T] {
	return &Persister[T]{
		path:  path,
		codec: codec,
	}
}

// Path returns the persisted file location.
func (p *Persister[T]) Path() string {
	return p.path
}

// Save atomically replaces the file with state.
func (p *Persister[T]) Save(state *T) error {
	return SaveState(p.path, p.codec, state)
}

// Load decodes the file into a new T.
func (p *Persister[T]) Load() (*T, error) {
	var state T

	err := LoadState(p.path, p.codec, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
