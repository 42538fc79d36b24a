package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/open-condo-software/gitexporter/pkg/changes"
	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

// CommitInfo is the commit metadata handed to a transformer. Message, Author
// and Committer may be changed; the rest is informational.
type CommitInfo struct {
	SourceSha gitlib.Hash
	Index     int
	Total     int

	Message   string
	Author    gitlib.Signature
	Committer gitlib.Signature
}

// CommitTransformer rewrites a commit before it is materialized. The returned
// records replace the filtered records of the commit.
type CommitTransformer interface {
	Transform(ctx context.Context, info *CommitInfo, records []changes.Record) ([]changes.Record, error)
}

// TransformerFunc adapts a function to CommitTransformer.
type TransformerFunc func(ctx context.Context, info *CommitInfo, records []changes.Record) ([]changes.Record, error)

// Transform calls f.
func (f TransformerFunc) Transform(
	ctx context.Context, info *CommitInfo, records []changes.Record,
) ([]changes.Record, error) {
	return f(ctx, info, records)
}

var errEmptyIdentity = errors.New("name and email are required")

// transformMessage is the stdin document of ExecTransformer.
type transformMessage struct {
	Commit  transformCommit  `json:"commit"`
	Records []changes.Record `json:"records"`
}

// transformResult is the stdout document of ExecTransformer. Absent fields
// keep their input values.
type transformResult struct {
	Commit struct {
		Message   *string             `json:"message"`
		Author    *exportlog.Identity `json:"author"`
		Committer *exportlog.Identity `json:"committer"`
	} `json:"commit"`
	Records *[]changes.Record `json:"records"`
}

type transformCommit struct {
	Sha       gitlib.Hash        `json:"sha"`
	Index     string             `json:"index"`
	Message   string             `json:"message"`
	Author    exportlog.Identity `json:"author"`
	Committer exportlog.Identity `json:"committer"`
}

// ExecTransformer runs an external executable once per commit. The commit and
// its records are written to stdin as JSON and the modified document is read
// back from stdout.
type ExecTransformer struct {
	path string
}

// NewExecTransformer resolves command through PATH once.
func NewExecTransformer(command string) (*ExecTransformer, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransformerNotFound, command, err)
	}

	return &ExecTransformer{path: path}, nil
}

// Path returns the resolved executable.
func (t *ExecTransformer) Path() string {
	return t.path
}

// Transform implements CommitTransformer.
func (t *ExecTransformer) Transform(
	ctx context.Context, info *CommitInfo, records []changes.Record,
) ([]changes.Record, error) {
	if records == nil {
		records = []changes.Record{}
	}

	input, err := json.Marshal(transformMessage{
		Commit: transformCommit{
			Sha:       info.SourceSha,
			Index:     exportlog.Ordinal(info.Index, info.Total),
			Message:   info.Message,
			Author:    exportlog.IdentityOf(info.Author),
			Committer: exportlog.IdentityOf(info.Committer),
		},
		Records: records,
	})
	if err != nil {
		return nil, fmt.Errorf("encode transformer input: %w", err)
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, t.path)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w: %s",
			ErrTransformerFailed, t.path, info.SourceSha.Short(), err, strings.TrimSpace(stderr.String()))
	}

	var out transformResult

	err = json.Unmarshal(stdout.Bytes(), &out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode output: %w", ErrTransformerFailed, t.path, err)
	}

	author, err := outputSignature(out.Commit.Author, info.Author)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: author: %w", ErrTransformerFailed, t.path, err)
	}

	committer, err := outputSignature(out.Commit.Committer, info.Committer)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: committer: %w", ErrTransformerFailed, t.path, err)
	}

	if out.Commit.Message != nil {
		info.Message = *out.Commit.Message
	}

	info.Author = author
	info.Committer = committer

	if out.Records == nil {
		return records, nil
	}

	return *out.Records, nil
}

func outputSignature(id *exportlog.Identity, current gitlib.Signature) (gitlib.Signature, error) {
	if id == nil {
		return current, nil
	}

	if strings.TrimSpace(id.Name) == "" || strings.TrimSpace(id.Email) == "" {
		return gitlib.Signature{}, errEmptyIdentity
	}

	if id.When.IsZero() {
		return gitlib.Signature{Name: id.Name, Email: id.Email, When: current.When}, nil
	}

	return id.Signature(), nil
}
