package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ChangeAction represents the type of change in a diff.
type ChangeAction int

const (
	// Insert indicates a new file was added.
	Insert ChangeAction = iota
	// Delete indicates a file was removed.
	Delete
	// Modify indicates the content, mode or type of a file changed in place.
	Modify
	// Rename indicates a file moved, possibly with content or mode changes.
	Rename
	// Unknown covers statuses that do not describe a tree change (conflicts, unreadable entries).
	Unknown
)

// String returns the action name.
func (a ChangeAction) String() string {
	switch a {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Modify:
		return "modify"
	case Rename:
		return "rename"
	case Unknown:
		return "unknown"
	}

	return fmt.Sprintf("action(%d)", int(a))
}

// Change represents a single file change between two trees.
type Change struct {
	Action ChangeAction
	From   ChangeEntry
	To     ChangeEntry
	// Status is the raw libgit2 delta status, kept for diagnostics of Unknown changes.
	Status git2go.Delta
}

// ChangeEntry represents one side of a change (old or new file).
type ChangeEntry struct {
	Name string
	Hash Hash
	Mode uint16
}

// Changes is a collection of Change objects.
type Changes []*Change

// TreeDiff computes the changes between two trees. A nil oldTree diffs against
// the empty tree, which is how root commits are handled.
// Skips diff when both tree OIDs are equal (e.g. metadata-only commits).
func TreeDiff(repo *Repository, oldTree, newTree *Tree) (Changes, error) {
	if oldTree != nil && newTree != nil && oldTree.Hash() == newTree.Hash() {
		return make(Changes, 0), nil
	}

	diff, err := repo.DiffTreeToTree(oldTree, newTree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}
	defer diff.Free()

	numDeltas, numErr := diff.NumDeltas()
	if numErr != nil {
		return nil, fmt.Errorf("get num deltas: %w", numErr)
	}

	changes := make(Changes, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, deltaErr
		}

		changes = append(changes, changeFromDelta(delta))
	}

	return changes, nil
}

func changeFromDelta(delta DiffDelta) *Change {
	change := &Change{Status: delta.Status}

	from := ChangeEntry{Name: delta.OldFile.Path, Hash: delta.OldFile.Hash, Mode: delta.OldFile.Mode}
	to := ChangeEntry{Name: delta.NewFile.Path, Hash: delta.NewFile.Hash, Mode: delta.NewFile.Mode}

	switch delta.Status {
	case git2go.DeltaAdded, git2go.DeltaCopied:
		change.Action = Insert
		change.To = to
	case git2go.DeltaDeleted:
		change.Action = Delete
		change.From = from
	case git2go.DeltaModified, git2go.DeltaTypeChange:
		change.Action = Modify
		change.From = from
		change.To = to
	case git2go.DeltaRenamed:
		change.Action = Rename
		change.From = from
		change.To = to
	default:
		// DeltaUnmodified, DeltaIgnored, DeltaUntracked, DeltaUnreadable, DeltaConflicted.
		change.Action = Unknown
		change.From = from
		change.To = to
	}

	return change
}
