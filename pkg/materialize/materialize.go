// Package materialize writes change records onto a target working tree.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-condo-software/gitexporter/pkg/changes"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/persist"
)

// ErrUnsafePath is returned for record paths that leave the working tree or
// point into the repository metadata directory.
var ErrUnsafePath = errors.New("unsafe record path")

const (
	dirPerm    = 0o755
	gitDirName = ".git"
)

// BlobSource supplies blob contents.
type BlobSource interface {
	BlobContents(ctx context.Context, hash gitlib.Hash) ([]byte, error)
}

// Result summarizes one Apply call.
type Result struct {
	Deleted  int
	Written  int
	Skipped  int
	Bytes    int64
	Warnings []string
}

// Materializer applies records under a working tree root.
type Materializer struct {
	root   string
	blobs  BlobSource
	logger *slog.Logger
}

// New creates a Materializer rooted at root.
func New(root string, blobs BlobSource, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Materializer{root: root, blobs: blobs, logger: logger}
}

// Apply performs every Delete first, then writes Add and Modify records.
// Submodule and unknown records are skipped with a warning; a file left at a
// submodule path is removed.
func (m *Materializer) Apply(ctx context.Context, records []changes.Record) (Result, error) {
	var res Result

	for _, rec := range records {
		switch rec.Kind {
		case changes.Delete:
			err := m.remove(rec.Path)
			if err != nil {
				return res, err
			}

			res.Deleted++
		case changes.Submodule:
			err := m.clearFile(rec.Path)
			if err != nil {
				return res, err
			}
		case changes.Add, changes.Modify, changes.Unknown:
		}
	}

	for _, rec := range records {
		switch rec.Kind {
		case changes.Delete:
			continue
		case changes.Add, changes.Modify:
			n, err := m.write(ctx, rec)
			if err != nil {
				return res, err
			}

			res.Written++
			res.Bytes += n
		case changes.Submodule, changes.Unknown:
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s %s skipped", rec.Kind, rec.Path))
			m.logger.WarnContext(ctx, "record skipped", "path", rec.Path, "kind", rec.Kind.String())
		}
	}

	return res, nil
}

func (m *Materializer) resolve(path string) (string, error) {
	clean := filepath.FromSlash(path)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, path)
	}

	first, _, _ := strings.Cut(filepath.ToSlash(filepath.Clean(clean)), "/")
	if strings.EqualFold(first, gitDirName) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, path)
	}

	return filepath.Join(m.root, clean), nil
}

func (m *Materializer) remove(path string) error {
	full, err := m.resolve(path)
	if err != nil {
		return err
	}

	err = os.Remove(full)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	m.pruneEmptyParents(filepath.Dir(full))

	return nil
}

// clearFile removes a file or symlink at path. Directories are left alone.
func (m *Materializer) clearFile(path string) error {
	full, err := m.resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Lstat(full)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	return m.remove(path)
}

// pruneEmptyParents removes now-empty directories up to, not including, root.
func (m *Materializer) pruneEmptyParents(dir string) {
	root := filepath.Clean(m.root)

	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		if os.Remove(dir) != nil {
			return
		}

		dir = filepath.Dir(dir)
	}
}

func (m *Materializer) write(ctx context.Context, rec changes.Record) (int64, error) {
	full, err := m.resolve(rec.Path)
	if err != nil {
		return 0, err
	}

	content, err := m.content(ctx, rec)
	if err != nil {
		return 0, err
	}

	err = os.MkdirAll(filepath.Dir(full), dirPerm)
	if err != nil {
		return 0, fmt.Errorf("create parent of %s: %w", rec.Path, err)
	}

	err = clearNonFile(full, rec.Mode.IsSymlink())
	if err != nil {
		return 0, fmt.Errorf("replace %s: %w", rec.Path, err)
	}

	if rec.Mode.IsSymlink() {
		err = os.Symlink(string(content), full)
		if err != nil {
			return 0, fmt.Errorf("symlink %s: %w", rec.Path, err)
		}

		return int64(len(content)), nil
	}

	err = persist.WriteFileAtomic(full, rec.Mode.Perm(), func(w io.Writer) error {
		_, writeErr := w.Write(content)

		return writeErr
	})
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", rec.Path, err)
	}

	return int64(len(content)), nil
}

func (m *Materializer) content(ctx context.Context, rec changes.Record) ([]byte, error) {
	if rec.Data != nil {
		return rec.Data, nil
	}

	if m.blobs == nil {
		return nil, fmt.Errorf("read %s: no blob source", rec.Path)
	}

	data, err := m.blobs.BlobContents(ctx, rec.Blob)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rec.Path, err)
	}

	return data, nil
}

// clearNonFile removes whatever occupies path unless it is a regular file
// about to be replaced by another regular file.
func clearNonFile(path string, symlink bool) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	if info.Mode().IsRegular() && !symlink {
		return nil
	}

	if info.IsDir() {
		return os.RemoveAll(path)
	}

	return os.Remove(path)
}
