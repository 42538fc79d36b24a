package gitlib

import (
	"context"
	"errors"
	"fmt"
	"os"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrUnbornHead is returned when HEAD points at a branch without commits.
var ErrUnbornHead = errors.New("HEAD has no commits")

// dirPerm is the permission used when creating a missing repository directory.
const dirPerm = 0o755

// Repository wraps a libgit2 repository.
type Repository struct {
	repo *git2go.Repository
	path string
}

// OpenRepository opens a git repository at the given path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// InitRepository creates the directory if needed and initializes a non-bare repository in it.
func InitRepository(path string) (*Repository, error) {
	err := os.MkdirAll(path, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create repository dir: %w", err)
	}

	repo, err := git2go.InitRepository(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// Workdir returns the working tree directory of a non-bare repository.
func (r *Repository) Workdir() string {
	return r.repo.Workdir()
}

// Free releases the repository resources.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// Head returns the HEAD reference target.
func (r *Repository) Head() (Hash, error) {
	unborn, err := r.repo.IsHeadUnborn()
	if err == nil && unborn {
		return Hash{}, ErrUnbornHead
	}

	ref, err := r.repo.Head()
	if err != nil {
		return Hash{}, fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return HashFromOid(ref.Target()), nil
}

// LookupCommit returns the commit with the given hash.
func (r *Repository) LookupCommit(_ context.Context, hash Hash) (*Commit, error) {
	commit, err := r.repo.LookupCommit(hash.ToOid())
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", hash, err)
	}

	return &Commit{commit: commit, repo: r}, nil
}

// LookupBlob returns the blob with the given hash.
func (r *Repository) LookupBlob(_ context.Context, hash Hash) (*Blob, error) {
	blob, err := r.repo.LookupBlob(hash.ToOid())
	if err != nil {
		return nil, fmt.Errorf("lookup blob %s: %w", hash, err)
	}

	return &Blob{blob: blob}, nil
}

// BlobContents returns a copy of the blob bytes and releases the blob.
func (r *Repository) BlobContents(ctx context.Context, hash Hash) ([]byte, error) {
	blob, err := r.LookupBlob(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer blob.Free()

	contents := blob.Contents()
	out := make([]byte, len(contents))
	copy(out, contents)

	return out, nil
}

// LookupTree returns the tree with the given hash.
func (r *Repository) LookupTree(hash Hash) (*Tree, error) {
	tree, err := r.repo.LookupTree(hash.ToOid())
	if err != nil {
		return nil, fmt.Errorf("lookup tree: %w", err)
	}

	return &Tree{tree: tree, repo: r}, nil
}

// ResetHard moves the current branch to the given commit and forces the index
// and working tree to match it, removing untracked files.
func (r *Repository) ResetHard(ctx context.Context, hash Hash) error {
	commit, err := r.LookupCommit(ctx, hash)
	if err != nil {
		return err
	}
	defer commit.Free()

	opts := &git2go.CheckoutOptions{
		Strategy: git2go.CheckoutForce | git2go.CheckoutRemoveUntracked,
	}

	err = r.repo.ResetToCommit(commit.commit, git2go.ResetHard, opts)
	if err != nil {
		return fmt.Errorf("reset to %s: %w", hash, err)
	}

	return nil
}

// DiffTreeToTree computes the diff between two trees. Renames are detected so
// a moved path is reported as a single delta carrying both paths, and type
// changes (file to symlink) are kept as one delta instead of a delete/add pair.
func (r *Repository) DiffTreeToTree(oldTree, newTree *Tree) (*Diff, error) {
	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("get diff options: %w", err)
	}

	opts.Flags |= git2go.DiffIncludeTypeChange

	var oldT, newT *git2go.Tree
	if oldTree != nil {
		oldT = oldTree.tree
	}

	if newTree != nil {
		newT = newTree.tree
	}

	diff, err := r.repo.DiffTreeToTree(oldT, newT, &opts)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	findOpts, err := git2go.DefaultDiffFindOptions()
	if err != nil {
		freeDiff(diff)

		return nil, fmt.Errorf("get diff find options: %w", err)
	}

	findOpts.Flags = git2go.DiffFindRenames

	err = diff.FindSimilar(&findOpts)
	if err != nil {
		freeDiff(diff)

		return nil, fmt.Errorf("find renames: %w", err)
	}

	return &Diff{diff: diff}, nil
}

// Native returns the underlying libgit2 repository for advanced operations.
func (r *Repository) Native() *git2go.Repository {
	return r.repo
}
