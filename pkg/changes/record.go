// Package changes turns source commits into file-level change records.
package changes

import (
	"fmt"
	"io/fs"

	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

// Kind is the type of a file-level change.
type Kind int

// Change kinds.
const (
	Add Kind = iota
	Modify
	Delete
	Submodule
	Unknown
)

var kindNames = [...]string{"add", "modify", "delete", "submodule", "unknown"}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}

	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)

			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrUnknownKind, text)
}

// Mode is a git file mode including the object type bits.
type Mode uint32

// Git file modes.
const (
	ModeDir        Mode = 0o040000
	ModeRegular    Mode = 0o100644
	ModeExecutable Mode = 0o100755
	ModeSymlink    Mode = 0o120000
	ModeSubmodule  Mode = 0o160000

	typeMask Mode = 0o170000
	permMask Mode = 0o777
)

// IsSymlink reports whether the mode is a symbolic link.
func (m Mode) IsSymlink() bool { return m&typeMask == ModeSymlink }

// IsSubmodule reports whether the mode is a gitlink.
func (m Mode) IsSubmodule() bool { return m&typeMask == ModeSubmodule }

// Perm returns the permission bits to apply to a written file.
func (m Mode) Perm() fs.FileMode {
	perm := fs.FileMode(m & permMask)
	if perm == 0 {
		return fs.FileMode(ModeRegular & permMask)
	}

	return perm
}

// String returns the mode in git's six digit octal form.
func (m Mode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}

// Record is one file-level change of a commit.
type Record struct {
	Path    string      `json:"path"`
	OldPath string      `json:"oldPath,omitempty"`
	Kind    Kind        `json:"kind"`
	Mode    Mode        `json:"mode"`
	Blob    gitlib.Hash `json:"blob"`
	// Data replaces the blob content when set.
	Data []byte `json:"content,omitempty"`
}

// Summary counts records per kind.
type Summary struct {
	Added      int
	Modified   int
	Deleted    int
	Submodules int
}

// Summarize counts records per kind.
func Summarize(records []Record) Summary {
	var s Summary

	for _, r := range records {
		switch r.Kind {
		case Add:
			s.Added++
		case Modify:
			s.Modified++
		case Delete:
			s.Deleted++
		case Submodule:
			s.Submodules++
		case Unknown:
		}
	}

	return s
}
