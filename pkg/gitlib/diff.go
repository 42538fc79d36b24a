package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Diff wraps a libgit2 diff.
type Diff struct {
	diff *git2go.Diff
}

// NumDeltas returns the number of deltas in the diff.
func (d *Diff) NumDeltas() (int, error) {
	numDeltas, err := d.diff.NumDeltas()
	if err != nil {
		return 0, fmt.Errorf("get num deltas: %w", err)
	}

	return numDeltas, nil
}

// Delta returns the delta at the given index.
func (d *Diff) Delta(index int) (DiffDelta, error) {
	delta, err := d.diff.Delta(index)
	if err != nil {
		return DiffDelta{}, fmt.Errorf("get delta: %w", err)
	}

	return DiffDelta{
		Status:  delta.Status,
		OldFile: diffFileFromNative(delta.OldFile),
		NewFile: diffFileFromNative(delta.NewFile),
	}, nil
}

// Free releases the diff resources.
func (d *Diff) Free() {
	if d.diff == nil {
		return
	}

	freeDiff(d.diff)
	d.diff = nil
}

// freeDiff consumes the Free error; it is not actionable during cleanup.
func freeDiff(diff *git2go.Diff) {
	err := diff.Free()
	if err != nil {
		return
	}
}

// DiffDelta represents a file change in a diff.
type DiffDelta struct {
	Status  git2go.Delta
	OldFile DiffFile
	NewFile DiffFile
}

// DiffFile represents one side of a delta.
type DiffFile struct {
	Path string
	Hash Hash
	Mode uint16
}

func diffFileFromNative(f git2go.DiffFile) DiffFile {
	return DiffFile{Path: f.Path, Hash: HashFromOid(f.Oid), Mode: f.Mode}
}
