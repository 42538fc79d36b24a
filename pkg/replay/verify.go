package replay

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/open-condo-software/gitexporter/pkg/changes"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/pathfilter"
	"github.com/open-condo-software/gitexporter/pkg/textutil"
)

// MismatchKind classifies a verify finding.
type MismatchKind string

// Verify findings.
const (
	// Missing paths are in the filtered source but not in the target.
	Missing MismatchKind = "missing"
	// Extra paths are in the target but not in the filtered source.
	Extra MismatchKind = "extra"
	// ModeChanged paths differ in file mode.
	ModeChanged MismatchKind = "mode"
	// ContentChanged paths differ in content.
	ContentChanged MismatchKind = "content"
)

// Mismatch is a single difference between the target and the filtered source.
type Mismatch struct {
	Path string
	Kind MismatchKind
	// Detail is a mode transition or a line diff.
	Detail string
}

// VerifyReport is the result of Verify.
type VerifyReport struct {
	SourceHead gitlib.Hash
	TargetHead gitlib.Hash
	Checked    int
	Mismatches []Mismatch
}

// Err returns ErrVerifyMismatch when differences were found.
func (r *VerifyReport) Err() error {
	if len(r.Mismatches) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d differences", ErrVerifyMismatch, len(r.Mismatches))
}

// Verify compares the target HEAD tree with the source HEAD tree filtered by
// rules. Submodules are not compared. With lineDiffs, content mismatches carry
// a line diff.
func Verify(
	ctx context.Context, source, target *gitlib.Repository, rules pathfilter.Rules, lineDiffs bool,
) (*VerifyReport, error) {
	report := &VerifyReport{}

	sourceFiles, err := headFiles(source, &report.SourceHead)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	targetFiles, err := headFiles(target, &report.TargetHead)
	if err != nil {
		return nil, fmt.Errorf("read target: %w", err)
	}

	filter := pathfilter.New(rules, nil)

	for path, file := range sourceFiles {
		if changes.Mode(file.Mode).IsSubmodule() || !filter.Match(path).Included() {
			delete(sourceFiles, path)
		}
	}

	for _, path := range slices.Sorted(maps.Keys(sourceFiles)) {
		report.Checked++

		want := sourceFiles[path]

		got, ok := targetFiles[path]
		if !ok {
			report.Mismatches = append(report.Mismatches, Mismatch{Path: path, Kind: Missing})

			continue
		}

		if got.Mode != want.Mode {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Path:   path,
				Kind:   ModeChanged,
				Detail: changes.Mode(want.Mode).String() + " -> " + changes.Mode(got.Mode).String(),
			})
		}

		if got.Hash == want.Hash {
			continue
		}

		mismatch := Mismatch{Path: path, Kind: ContentChanged}

		if lineDiffs {
			mismatch.Detail, err = blobDiff(ctx, source, target, want.Hash, got.Hash)
			if err != nil {
				return nil, err
			}
		}

		report.Mismatches = append(report.Mismatches, mismatch)
	}

	for _, path := range slices.Sorted(maps.Keys(targetFiles)) {
		if _, ok := sourceFiles[path]; !ok {
			report.Mismatches = append(report.Mismatches, Mismatch{Path: path, Kind: Extra})
		}
	}

	return report, nil
}

func headFiles(repo *gitlib.Repository, head *gitlib.Hash) (map[string]gitlib.TreeFile, error) {
	files := make(map[string]gitlib.TreeFile)

	treeHash, err := repo.HeadTree()
	if err != nil {
		return nil, err
	}

	if treeHash.IsZero() {
		return files, nil
	}

	*head, err = repo.Head()
	if err != nil {
		return nil, err
	}

	tree, err := repo.LookupTree(treeHash)
	if err != nil {
		return nil, err
	}
	defer tree.Free()

	list, err := gitlib.TreeFiles(repo, tree)
	if err != nil {
		return nil, err
	}

	for _, f := range list {
		files[f.Path] = f
	}

	return files, nil
}

// blobDiff renders a line diff with "-" for source-only and "+" for target-only
// lines. Binary content is summarized by size.
func blobDiff(ctx context.Context, source, target *gitlib.Repository, want, got gitlib.Hash) (string, error) {
	before, err := source.BlobContents(ctx, want)
	if err != nil {
		return "", err
	}

	after, err := target.BlobContents(ctx, got)
	if err != nil {
		return "", err
	}

	if textutil.IsBinary(before) || textutil.IsBinary(after) {
		return fmt.Sprintf("binary content differs (%d -> %d bytes)\n", len(before), len(after)), nil
	}

	var out strings.Builder

	fmt.Fprintf(&out, "@@ -1,%d +1,%d @@\n", textutil.CountLines(before), textutil.CountLines(after))

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		prefix := " "

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffEqual:
		}

		for line := range strings.Lines(d.Text) {
			out.WriteString(prefix + line)
		}

		if !strings.HasSuffix(d.Text, "\n") && d.Text != "" {
			out.WriteString("\n")
		}
	}

	return out.String(), nil
}
