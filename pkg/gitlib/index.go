package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Index wraps the staging area of a non-bare repository.
type Index struct {
	idx *git2go.Index
}

// Index opens the repository index.
func (r *Repository) Index() (*Index, error) {
	idx, err := r.repo.Index()
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{idx: idx}, nil
}

// Add stages the working tree file at path. Mode and symlink type are read
// from disk.
func (i *Index) Add(path string) error {
	err := i.idx.AddByPath(path)
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}

	return nil
}

// Remove unstages path. Paths that are not in the index are ignored.
func (i *Index) Remove(path string) error {
	err := i.idx.RemoveByPath(path)
	if err != nil && !git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
		return fmt.Errorf("unstage %s: %w", path, err)
	}

	return nil
}

// EntryCount returns the number of staged entries.
func (i *Index) EntryCount() uint {
	return i.idx.EntryCount()
}

// Write persists the index to disk.
func (i *Index) Write() error {
	err := i.idx.Write()
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	return nil
}

// WriteTree writes the staged content as a tree object and returns its hash.
func (i *Index) WriteTree() (Hash, error) {
	oid, err := i.idx.WriteTree()
	if err != nil {
		return Hash{}, fmt.Errorf("write tree: %w", err)
	}

	return HashFromOid(oid), nil
}

// Free releases the index resources.
func (i *Index) Free() {
	if i.idx != nil {
		i.idx.Free()
		i.idx = nil
	}
}

// HeadTree returns the tree hash of the HEAD commit, or the zero hash when
// HEAD is unborn.
func (r *Repository) HeadTree() (Hash, error) {
	head, err := r.Head()
	if errors.Is(err, ErrUnbornHead) {
		return Hash{}, nil
	}

	if err != nil {
		return Hash{}, err
	}

	commit, err := r.repo.LookupCommit(head.ToOid())
	if err != nil {
		return Hash{}, fmt.Errorf("lookup HEAD commit: %w", err)
	}
	defer commit.Free()

	return HashFromOid(commit.TreeId()), nil
}

// CreateCommit records tree as a new commit on top of HEAD and advances the
// current branch. On an unborn HEAD the commit has no parents.
func (r *Repository) CreateCommit(tree Hash, author, committer Signature, message string) (Hash, error) {
	nativeTree, err := r.repo.LookupTree(tree.ToOid())
	if err != nil {
		return Hash{}, fmt.Errorf("lookup tree %s: %w", tree, err)
	}
	defer nativeTree.Free()

	var parents []*git2go.Commit

	head, err := r.Head()

	switch {
	case errors.Is(err, ErrUnbornHead):
	case err != nil:
		return Hash{}, err
	default:
		parent, lookupErr := r.repo.LookupCommit(head.ToOid())
		if lookupErr != nil {
			return Hash{}, fmt.Errorf("lookup parent %s: %w", head, lookupErr)
		}
		defer parent.Free()

		parents = append(parents, parent)
	}

	oid, err := r.repo.CreateCommit("HEAD", author.native(), committer.native(), message, nativeTree, parents...)
	if err != nil {
		return Hash{}, fmt.Errorf("create commit: %w", err)
	}

	return HashFromOid(oid), nil
}
