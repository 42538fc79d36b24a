// Package version carries build metadata set through -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release of the running gitexporter binary.
var Version = "dev"

// BinaryGitHash is the Git hash the binary was built from.
var BinaryGitHash = "<unknown>"

// LogFormat is the export log document version this binary writes.
const LogFormat = 1

// String renders the version line printed by the version command.
func String() string {
	hash := BinaryGitHash

	if hash == "<unknown>" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					hash = s.Value
				}
			}
		}
	}

	return fmt.Sprintf("gitexporter %s (%s, log format v%d)", Version, hash, LogFormat)
}
