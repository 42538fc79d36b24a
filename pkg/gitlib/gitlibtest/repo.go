// Package gitlibtest builds real git repositories for tests.
package gitlibtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/require"

	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
	execPerm = 0o755
)

// DefaultAuthor is the author used by Commit.
var DefaultAuthor = gitlib.Signature{
	Name:  "Test User",
	Email: "test@example.com",
	When:  time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC),
}

// Repo is a non-bare repository in a test temp dir.
type Repo struct {
	t      testing.TB
	Path   string
	native *git2go.Repository
	tick   int
}

// New initializes an empty repository in t.TempDir().
func New(t testing.TB) *Repo {
	t.Helper()

	dir := t.TempDir()

	native, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(native.Free)

	return &Repo{t: t, Path: dir, native: native}
}

// WriteFile writes a regular file, creating parent directories.
func (r *Repo) WriteFile(name, content string) {
	r.t.Helper()
	r.write(name, content, filePerm)
}

// WriteExecutable writes a file with the executable bits set.
func (r *Repo) WriteExecutable(name, content string) {
	r.t.Helper()
	r.write(name, content, execPerm)
}

func (r *Repo) write(name, content string, perm os.FileMode) {
	r.t.Helper()

	path := filepath.Join(r.Path, filepath.FromSlash(name))
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), dirPerm))
	require.NoError(r.t, os.WriteFile(path, []byte(content), perm))
	require.NoError(r.t, os.Chmod(path, perm))
}

// Symlink creates a symbolic link at name pointing to target.
func (r *Repo) Symlink(name, target string) {
	r.t.Helper()

	path := filepath.Join(r.Path, filepath.FromSlash(name))
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), dirPerm))
	require.NoError(r.t, os.Symlink(target, path))
}

// Remove deletes a file from the working tree.
func (r *Repo) Remove(name string) {
	r.t.Helper()

	require.NoError(r.t, os.Remove(filepath.Join(r.Path, filepath.FromSlash(name))))
}

// Rename moves a file in the working tree.
func (r *Repo) Rename(from, to string) {
	r.t.Helper()

	require.NoError(r.t, os.Rename(
		filepath.Join(r.Path, filepath.FromSlash(from)),
		filepath.Join(r.Path, filepath.FromSlash(to)),
	))
}

// Commit stages the whole working tree and commits it with DefaultAuthor.
// Each call advances the timestamp by one minute so history is ordered.
func (r *Repo) Commit(message string) gitlib.Hash {
	r.t.Helper()

	sig := DefaultAuthor
	sig.When = sig.When.Add(time.Duration(r.tick) * time.Minute)
	r.tick++

	return r.CommitAs(message, sig, sig)
}

// CommitAs stages the whole working tree and commits it with explicit identities.
func (r *Repo) CommitAs(message string, author, committer gitlib.Signature) gitlib.Hash {
	r.t.Helper()

	index, err := r.native.Index()
	require.NoError(r.t, err)

	defer index.Free()

	require.NoError(r.t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(r.t, index.UpdateAll([]string{"*"}, nil))
	require.NoError(r.t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(r.t, err)

	tree, err := r.native.LookupTree(treeID)
	require.NoError(r.t, err)

	defer tree.Free()

	var parents []*git2go.Commit

	head, err := r.native.Head()
	if err == nil {
		parent, lookupErr := r.native.LookupCommit(head.Target())
		require.NoError(r.t, lookupErr)

		parents = append(parents, parent)

		head.Free()
	}

	oid, err := r.native.CreateCommit("HEAD", sigNative(author), sigNative(committer), message, tree, parents...)
	require.NoError(r.t, err)

	for _, parent := range parents {
		parent.Free()
	}

	return gitlib.HashFromOid(oid)
}

// CommitGitlink commits the HEAD tree with the top-level entry name replaced
// by a gitlink to target. The working tree and index are left untouched.
func (r *Repo) CommitGitlink(message, name string, target gitlib.Hash) gitlib.Hash {
	r.t.Helper()

	head, err := r.native.Head()
	require.NoError(r.t, err)

	defer head.Free()

	parent, err := r.native.LookupCommit(head.Target())
	require.NoError(r.t, err)

	defer parent.Free()

	tree, err := parent.Tree()
	require.NoError(r.t, err)

	defer tree.Free()

	builder, err := r.native.TreeBuilderFromTree(tree)
	require.NoError(r.t, err)

	defer builder.Free()

	require.NoError(r.t, builder.Insert(name, target.ToOid(), git2go.FilemodeCommit))

	treeID, err := builder.Write()
	require.NoError(r.t, err)

	newTree, err := r.native.LookupTree(treeID)
	require.NoError(r.t, err)

	defer newTree.Free()

	sig := DefaultAuthor
	sig.When = sig.When.Add(time.Duration(r.tick) * time.Minute)
	r.tick++

	oid, err := r.native.CreateCommit("HEAD", sigNative(sig), sigNative(sig), message, newTree, parent)
	require.NoError(r.t, err)

	return gitlib.HashFromOid(oid)
}

// Open opens the repository through gitlib and frees it on cleanup.
func (r *Repo) Open() *gitlib.Repository {
	r.t.Helper()

	repo, err := gitlib.OpenRepository(r.Path)
	require.NoError(r.t, err)

	r.t.Cleanup(repo.Free)

	return repo
}

func sigNative(s gitlib.Signature) *git2go.Signature {
	return &git2go.Signature{Name: s.Name, Email: s.Email, When: s.When}
}
