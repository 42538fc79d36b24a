package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/open-condo-software/gitexporter/pkg/safeconv"
)

// Tree wraps a libgit2 tree.
type Tree struct {
	tree *git2go.Tree
	repo *Repository
}

// Hash returns the tree hash.
func (t *Tree) Hash() Hash {
	return HashFromOid(t.tree.Id())
}

// EntryCount returns the number of entries in the tree.
func (t *Tree) EntryCount() uint64 {
	return t.tree.EntryCount()
}

// EntryByIndex returns the tree entry at the given index.
func (t *Tree) EntryByIndex(i uint64) *TreeEntry {
	entry := t.tree.EntryByIndex(i)
	if entry == nil {
		return nil
	}

	return &TreeEntry{entry: entry}
}

// EntryByPath returns the tree entry at the given path.
func (t *Tree) EntryByPath(path string) (*TreeEntry, error) {
	entry, err := t.tree.EntryByPath(path)
	if err != nil {
		return nil, fmt.Errorf("entry by path: %w", err)
	}

	return &TreeEntry{entry: entry}, nil
}

// Free releases the tree resources.
func (t *Tree) Free() {
	if t.tree != nil {
		t.tree.Free()
		t.tree = nil
	}
}

// TreeEntry wraps a libgit2 tree entry.
type TreeEntry struct {
	entry *git2go.TreeEntry
}

// Name returns the entry name.
func (e *TreeEntry) Name() string {
	return e.entry.Name
}

// Hash returns the entry object hash.
func (e *TreeEntry) Hash() Hash {
	return HashFromOid(e.entry.Id)
}

// Type returns the entry type.
func (e *TreeEntry) Type() git2go.ObjectType {
	return e.entry.Type
}

// Mode returns the raw git file mode, including the object type bits.
func (e *TreeEntry) Mode() uint16 {
	return safeconv.MustFileMode(int(e.entry.Filemode))
}

// IsBlob returns true if the entry is a blob (regular file, executable or symlink).
func (e *TreeEntry) IsBlob() bool {
	return e.entry.Type == git2go.ObjectBlob
}

// IsSubmodule returns true if the entry is a gitlink.
func (e *TreeEntry) IsSubmodule() bool {
	return e.entry.Type == git2go.ObjectCommit
}

// TreeFile is one non-directory entry of a recursively listed tree.
type TreeFile struct {
	Path string
	Hash Hash
	Mode uint16
}

// TreeFiles lists every blob and gitlink in the tree, depth first, with full
// slash separated paths. Directories are descended into but not reported.
func TreeFiles(repo *Repository, tree *Tree) ([]TreeFile, error) {
	var files []TreeFile

	err := walkTree(repo, tree, "", func(path string, entry *TreeEntry) error {
		files = append(files, TreeFile{
			Path: path,
			Hash: entry.Hash(),
			Mode: entry.Mode(),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// walkTree recursively walks a tree and calls the callback for each entry.
func walkTree(repo *Repository, tree *Tree, prefix string, cb func(path string, entry *TreeEntry) error) error {
	count := tree.EntryCount()

	for i := range count {
		entry := tree.EntryByIndex(i)
		if entry == nil {
			continue
		}

		walkErr := processTreeEntry(repo, entry, prefix, cb)
		if walkErr != nil {
			return walkErr
		}
	}

	return nil
}

// processTreeEntry calls cb for blobs and gitlinks and recurses into subtrees.
func processTreeEntry(repo *Repository, entry *TreeEntry, prefix string, cb func(path string, entry *TreeEntry) error) error {
	path := entry.Name()
	if prefix != "" {
		path = prefix + "/" + path
	}

	if entry.IsBlob() || entry.IsSubmodule() {
		return cb(path, entry)
	}

	if entry.Type() != git2go.ObjectTree {
		return nil
	}

	subtree, lookupErr := repo.LookupTree(entry.Hash())
	if lookupErr != nil {
		return fmt.Errorf("walk %s: %w", path, lookupErr)
	}
	defer subtree.Free()

	return walkTree(repo, subtree, path, cb)
}
