package replay

import "errors"

// Classified failures of a run.
var (
	// ErrTargetExists is returned when the target repository already exists
	// and neither a follow mode nor forced recreation was requested.
	ErrTargetExists = errors.New("target repository exists; enable a follow mode or forceReCreateRepo")
	// ErrNoResumeState is returned when a follow mode was requested but there
	// is nothing to follow.
	ErrNoResumeState = errors.New("follow mode requested but no resume state exists")
	// ErrTransformerNotFound is returned when the configured transformer cannot be resolved.
	ErrTransformerNotFound = errors.New("commit transformer not found")
	// ErrTransformerFailed is returned when the transformer rejects a commit.
	ErrTransformerFailed = errors.New("commit transformer failed")
	// ErrVerifyMismatch is returned when target and filtered source trees differ.
	ErrVerifyMismatch = errors.New("target does not match filtered source")
)
