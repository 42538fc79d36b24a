// Package pathfilter decides which repository paths reach the target.
//
// Two gitignore-style rule sets are evaluated independently: ignore rules and
// allow rules. A path is included only when it is allowed and not ignored.
// Every classified path is recorded in cumulative Sets that persist across runs.
package pathfilter

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// MatchAll is the default allow rule.
const MatchAll = "*"

// Rules configures a Filter.
type Rules struct {
	Allowed       []string
	Ignored       []string
	CaseSensitive bool
}

// Verdict is the classification of a single path.
type Verdict struct {
	Ignored bool
	Allowed bool
}

// Included reports whether the path belongs in the target.
func (v Verdict) Included() bool {
	return v.Allowed && !v.Ignored
}

// Sets are the cumulative path observations of an export.
type Sets struct {
	All     OrderedSet `json:"paths"        yaml:"paths"`
	Ignored OrderedSet `json:"ignoredPaths" yaml:"ignoredPaths"`
	Allowed OrderedSet `json:"allowedPaths" yaml:"allowedPaths"`
	Skipped OrderedSet `json:"skippedPaths" yaml:"skippedPaths"`
}

// Filter evaluates Rules and records every classified path into Sets.
type Filter struct {
	ignore        gitignore.Matcher
	allow         gitignore.Matcher
	caseSensitive bool
	sets          *Sets
}

// New builds a Filter. Observations are recorded into sets, which may carry
// paths from an earlier run. A nil sets starts empty.
func New(rules Rules, sets *Sets) *Filter {
	if sets == nil {
		sets = &Sets{}
	}

	return &Filter{
		ignore:        newMatcher(rules.Ignored, rules.CaseSensitive),
		allow:         newMatcher(rules.Allowed, rules.CaseSensitive),
		caseSensitive: rules.CaseSensitive,
		sets:          sets,
	}
}

func newMatcher(patterns []string, caseSensitive bool) gitignore.Matcher {
	parsed := make([]gitignore.Pattern, 0, len(patterns))

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}

		if !caseSensitive {
			p = strings.ToLower(p)
		}

		parsed = append(parsed, gitignore.ParsePattern(p, nil))
	}

	return gitignore.NewMatcher(parsed)
}

// Match classifies path without recording it.
func (f *Filter) Match(path string) Verdict {
	if !f.caseSensitive {
		path = strings.ToLower(path)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")

	return Verdict{
		Ignored: f.ignore.Match(parts, false),
		Allowed: f.allow.Match(parts, false),
	}
}

// Classify classifies path and records it in the cumulative sets.
func (f *Filter) Classify(path string) Verdict {
	v := f.Match(path)

	f.sets.All.Add(path)

	if v.Ignored {
		f.sets.Ignored.Add(path)
	}

	if v.Allowed {
		f.sets.Allowed.Add(path)
	}

	if !v.Included() {
		f.sets.Skipped.Add(path)
	}

	return v
}

// Sets returns the cumulative observations.
func (f *Filter) Sets() *Sets {
	return f.sets
}
