package config

import "github.com/spf13/viper"

// Default configuration values.
const (
	DefaultSourceRepoPath  = "."
	DefaultTargetRepoPath  = "ignore.target"
	DefaultCommitBatchSize = 50
	DefaultLogSuffix       = ".log.json"
	EnvPrefix              = "GITEXPORTER"
)

// DefaultAllowedPaths allows every path.
func DefaultAllowedPaths() []string {
	return []string{"*"}
}

// setDefaults registers every key so that environment overrides apply to all of them.
func setDefaults(v *viper.Viper) {
	// Repositories.
	v.SetDefault("sourceRepoPath", DefaultSourceRepoPath)
	v.SetDefault("targetRepoPath", DefaultTargetRepoPath)
	v.SetDefault("logFilePath", "")

	// Resume.
	v.SetDefault("forceReCreateRepo", false)
	v.SetDefault("followByLogFile", false)
	v.SetDefault("followByNumberOfCommits", false)
	v.SetDefault("syncAllFilesOnLastFollowCommit", false)

	// Path filter.
	v.SetDefault("allowedPaths", DefaultAllowedPaths())
	v.SetDefault("ignoredPaths", []string{})
	v.SetDefault("caseSensitivePaths", false)

	// Commits.
	v.SetDefault("commitTransformer", "")
	v.SetDefault("committerName", "")
	v.SetDefault("committerEmail", "")
	v.SetDefault("skipEmptyCommits", false)
	v.SetDefault("commitBatchSize", DefaultCommitBatchSize)

	// Diagnostics.
	v.SetDefault("debug", false)
	v.SetDefault("dontShowTiming", false)
	v.SetDefault("logJSON", false)
	v.SetDefault("otlpEndpoint", "")
	v.SetDefault("otlpInsecure", false)
	v.SetDefault("otlpHeaders", "")
	v.SetDefault("metricsAddr", "")
}
