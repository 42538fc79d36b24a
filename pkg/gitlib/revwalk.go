package gitlib

import (
	"context"
	"errors"
	"fmt"
	"slices"

	git2go "github.com/libgit2/git2go/v34"
)

// RevWalk wraps a libgit2 revision walker.
type RevWalk struct {
	walk *git2go.RevWalk
	repo *Repository
}

// Walk creates a new revision walker.
func (r *Repository) Walk() (*RevWalk, error) {
	walk, err := r.repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}

	return &RevWalk{walk: walk, repo: r}, nil
}

// Push adds a commit to start walking from.
func (w *RevWalk) Push(hash Hash) error {
	err := w.walk.Push(hash.ToOid())
	if err != nil {
		return fmt.Errorf("push to revwalk: %w", err)
	}

	return nil
}

// Sorting sets the sorting mode for the walker.
func (w *RevWalk) Sorting(mode git2go.SortType) {
	w.walk.Sorting(mode)
}

// SimplifyFirstParent restricts the walk to first parents.
func (w *RevWalk) SimplifyFirstParent() {
	w.walk.SimplifyFirstParent()
}

// Next returns the next commit hash in the walk. The boolean is false once
// the walk is exhausted.
func (w *RevWalk) Next() (Hash, bool, error) {
	oid := new(git2go.Oid)

	err := w.walk.Next(oid)
	if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
		return Hash{}, false, nil
	}

	if err != nil {
		return Hash{}, false, fmt.Errorf("revwalk next: %w", err)
	}

	return HashFromOid(oid), true, nil
}

// Free releases the walker resources.
func (w *RevWalk) Free() {
	if w.walk != nil {
		w.walk.Free()
		w.walk = nil
	}
}

// Mainline returns the first-parent chain reachable from HEAD, oldest first.
// A repository without commits yields an empty slice.
func (r *Repository) Mainline(ctx context.Context) ([]Hash, error) {
	head, err := r.Head()
	if errors.Is(err, ErrUnbornHead) {
		return []Hash{}, nil
	}

	if err != nil {
		return nil, err
	}

	walk, err := r.Walk()
	if err != nil {
		return nil, err
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTopological)
	walk.SimplifyFirstParent()

	err = walk.Push(head)
	if err != nil {
		return nil, err
	}

	var hashes []Hash

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		hash, ok, nextErr := walk.Next()
		if nextErr != nil {
			return nil, nextErr
		}

		if !ok {
			break
		}

		hashes = append(hashes, hash)
	}

	slices.Reverse(hashes)

	return hashes, nil
}
