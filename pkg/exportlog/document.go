// Package exportlog persists the record of an export: which source commits
// were applied, the target commits they produced and the cumulative path sets.
// The log is the contract follow-by-log resumption trusts.
package exportlog

import (
	"fmt"
	"time"

	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/pathfilter"
)

// Version is the document format written by this package.
const Version = 1

// Processing actions recorded per commit.
const (
	// ActionApply is an incremental replay of the commit's diff.
	ActionApply = "apply"
	// ActionSync is a full-tree reconciliation at the divergence point.
	ActionSync = "sync"
	// ActionEmpty marks a commit whose filtered change set was empty and produced no target commit.
	ActionEmpty = "empty"
	// ActionFollow marks a commit matched to an existing target commit by position.
	ActionFollow = "follow"
)

// Identity is an author or committer as stored in the log.
type Identity struct {
	Name   string    `json:"name"   yaml:"name"`
	Email  string    `json:"email"  yaml:"email"`
	When   time.Time `json:"when"   yaml:"when"`
	Offset int       `json:"offset" yaml:"offset"`
}

// IdentityOf converts a signature.
func IdentityOf(sig gitlib.Signature) Identity {
	return Identity{Name: sig.Name, Email: sig.Email, When: sig.When, Offset: sig.OffsetMinutes()}
}

// Signature converts back to a signature, restoring the recorded UTC offset.
func (id Identity) Signature() gitlib.Signature {
	const secondsPerMinute = 60

	loc := time.FixedZone("", id.Offset*secondsPerMinute)

	return gitlib.Signature{Name: id.Name, Email: id.Email, When: id.When.In(loc)}
}

// Processing describes how one source commit was handled.
type Processing struct {
	NewSha gitlib.Hash `json:"newSha"           yaml:"newSha"`
	Index  string      `json:"index"            yaml:"index"`
	Action string      `json:"action,omitempty" yaml:"action,omitempty"`
	T0     time.Time   `json:"t0"               yaml:"t0"`
	TX     time.Time   `json:"tX"               yaml:"tX"`
	// Dt is the elapsed processing time in milliseconds.
	Dt           int64 `json:"dt"           yaml:"dt"`
	Paths        int   `json:"paths"        yaml:"paths"`
	IgnoredPaths int   `json:"ignoredPaths" yaml:"ignoredPaths"`
	AllowedPaths int   `json:"allowedPaths" yaml:"allowedPaths"`
}

// Commit is the log entry of one source commit.
type Commit struct {
	Sha        gitlib.Hash `json:"sha"        yaml:"sha"`
	Author     Identity    `json:"author"     yaml:"author"`
	Committer  Identity    `json:"committer"  yaml:"committer"`
	Message    string      `json:"message"    yaml:"message"`
	Processing Processing  `json:"processing" yaml:"processing"`
}

// Document is the persisted export log.
type Document struct {
	Version         int `json:"version" yaml:"version"`
	pathfilter.Sets `yaml:",inline"`
	Commits         []Commit `json:"commits" yaml:"commits"`
}

// New returns an empty document of the current version.
func New() *Document {
	return &Document{Version: Version, Commits: []Commit{}}
}

// Commit returns the entry at ordinal i.
func (d *Document) Commit(i int) (Commit, bool) {
	if i < 0 || i >= len(d.Commits) {
		return Commit{}, false
	}

	return d.Commits[i], true
}

// Len returns the number of commit entries.
func (d *Document) Len() int {
	return len(d.Commits)
}

// Ordinal formats a 1-based position as "i/total".
func Ordinal(i, total int) string {
	return fmt.Sprintf("%d/%d", i+1, total)
}
