package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/open-condo-software/gitexporter/pkg/config"
	"github.com/open-condo-software/gitexporter/pkg/replay"
	"github.com/open-condo-software/gitexporter/pkg/resume"
)

// Process exit codes. Calling automation branches on these values.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitInvalidConfig     = 2
	ExitConflictingModes  = 3
	ExitNoResumeState     = 4
	ExitNoFollowPoint     = 5
	ExitTransformerAbsent = 6
	ExitVerifyMismatch    = 7
)

// ExitCode maps err onto a stable process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrConflictingResumeModes):
		return ExitConflictingModes
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitInvalidConfig
	case errors.Is(err, replay.ErrTargetExists), errors.Is(err, replay.ErrNoResumeState):
		return ExitNoResumeState
	case errors.Is(err, resume.ErrNoFollowPoint):
		return ExitNoFollowPoint
	case errors.Is(err, replay.ErrTransformerNotFound):
		return ExitTransformerAbsent
	case errors.Is(err, replay.ErrVerifyMismatch):
		return ExitVerifyMismatch
	default:
		return ExitFailure
	}
}

// PrintError writes the one-line diagnostic for err.
func PrintError(w io.Writer, err error) {
	_, _ = color.New(color.FgRed, color.Bold).Fprint(w, "Error:")
	_, _ = fmt.Fprintf(w, " %v\n", err)
}
