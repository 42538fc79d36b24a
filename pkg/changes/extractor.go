package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

// ErrUnknownKind is returned when decoding an unrecognised kind name.
var ErrUnknownKind = errors.New("unknown change kind")

// Extractor reads change records out of a source repository.
type Extractor struct {
	repo   *gitlib.Repository
	logger *slog.Logger
}

// NewExtractor creates an Extractor over repo.
func NewExtractor(repo *gitlib.Repository, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{repo: repo, logger: logger}
}

// DiffFromParent returns the changes a commit introduced relative to its first
// parent. Root commits are diffed against the empty tree. A rename becomes a
// Delete of the old path followed by an Add of the new one.
func (e *Extractor) DiffFromParent(ctx context.Context, hash gitlib.Hash) ([]Record, error) {
	commit, err := e.repo.LookupCommit(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer commit.Free()

	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	defer tree.Free()

	parentTree, err := e.parentTree(ctx, commit)
	if err != nil {
		return nil, err
	}

	if parentTree != nil {
		defer parentTree.Free()
	}

	diff, err := gitlib.TreeDiff(e.repo, parentTree, tree)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", hash.Short(), err)
	}

	records := make([]Record, 0, len(diff))

	for _, change := range diff {
		records = append(records, e.fromChange(ctx, hash, change)...)
	}

	return dedupe(records), nil
}

func (e *Extractor) parentTree(ctx context.Context, commit *gitlib.Commit) (*gitlib.Tree, error) {
	parents := commit.NumParents()
	if parents == 0 {
		return nil, nil //nolint:nilnil // root commit diffs against the empty tree.
	}

	if parents > 1 {
		e.logger.WarnContext(ctx, "merge commit, diffing against first parent",
			"sha", commit.Hash().String(), "parents", parents)
	}

	parent, err := commit.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("parent of %s: %w", commit.Hash().Short(), err)
	}
	defer parent.Free()

	return parent.Tree()
}

func (e *Extractor) fromChange(ctx context.Context, commit gitlib.Hash, change *gitlib.Change) []Record {
	switch change.Action {
	case gitlib.Insert:
		return []Record{added(change.To, "")}
	case gitlib.Modify:
		rec := added(change.To, "")
		if rec.Kind == Add {
			rec.Kind = Modify
		}

		return []Record{rec}
	case gitlib.Delete:
		return []Record{deleted(change.From)}
	case gitlib.Rename:
		return []Record{deleted(change.From), added(change.To, change.From.Name)}
	case gitlib.Unknown:
	}

	e.logger.WarnContext(ctx, "dropping change with unsupported status",
		"sha", commit.String(), "path", change.To.Name, "status", int(change.Status))

	return nil
}

func added(entry gitlib.ChangeEntry, oldPath string) Record {
	mode := Mode(entry.Mode)

	kind := Add
	if mode.IsSubmodule() {
		kind = Submodule
	}

	return Record{Path: entry.Name, OldPath: oldPath, Kind: kind, Mode: mode, Blob: entry.Hash}
}

func deleted(entry gitlib.ChangeEntry) Record {
	return Record{Path: entry.Name, Kind: Delete, Mode: Mode(entry.Mode)}
}

// FullTree lists every file, symlink and submodule of a commit as Add or
// Submodule records. Directories are implied by file paths.
func (e *Extractor) FullTree(ctx context.Context, hash gitlib.Hash) ([]Record, error) {
	commit, err := e.repo.LookupCommit(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer commit.Free()

	files, err := commit.Files()
	if err != nil {
		return nil, fmt.Errorf("list tree of %s: %w", hash.Short(), err)
	}

	records := make([]Record, 0, len(files))

	for _, f := range files {
		records = append(records, added(gitlib.ChangeEntry{Name: f.Path, Hash: f.Hash, Mode: f.Mode}, ""))
	}

	return records, nil
}

// dedupe keeps one record per path. A later record replaces an earlier one in
// place; a Delete followed by an Add of the same path becomes a Modify.
func dedupe(records []Record) []Record {
	pos := make(map[string]int, len(records))
	out := records[:0]

	for _, rec := range records {
		i, seen := pos[rec.Path]
		if !seen {
			pos[rec.Path] = len(out)
			out = append(out, rec)

			continue
		}

		if out[i].Kind == Delete && rec.Kind == Add {
			rec.Kind = Modify
		}

		out[i] = rec
	}

	return out
}
