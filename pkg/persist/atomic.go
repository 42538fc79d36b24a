package persist

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrUnknownFormat is returned by CodecFor for unsupported format names.
var ErrUnknownFormat = errors.New("unknown format")

// tempPattern names temp files next to their destination so the final rename
// never crosses a filesystem boundary.
const tempPattern = ".*.tmp"

// WriteFileAtomic writes path through a temp file in the same directory and
// renames it into place. A crash leaves either the old or the new content.
func WriteFileAtomic(path string, perm fs.FileMode, write func(io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	err = write(tmp)
	if err != nil {
		return err
	}

	err = tmp.Sync()
	if err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	err = tmp.Chmod(perm)
	if err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	tmp = nil

	err = os.Rename(tmpPath, path)
	if err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
