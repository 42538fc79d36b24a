// Package config loads and validates the export configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is the parent of every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Sentinel validation errors.
var (
	ErrConflictingResumeModes = fmt.Errorf("%w: followByLogFile and followByNumberOfCommits are mutually exclusive",
		ErrInvalidConfig)
	ErrEmptyCommitsWithCount = fmt.Errorf("%w: skipEmptyCommits cannot be combined with followByNumberOfCommits",
		ErrInvalidConfig)
	ErrMissingRepoPath     = fmt.Errorf("%w: repository path is empty", ErrInvalidConfig)
	ErrSameRepo            = fmt.Errorf("%w: source and target repository are the same", ErrInvalidConfig)
	ErrInvalidBatchSize    = fmt.Errorf("%w: commitBatchSize must be positive", ErrInvalidConfig)
	ErrIncompleteCommitter = fmt.Errorf("%w: committerName and committerEmail must be set together", ErrInvalidConfig)
)

// Config is the flat export configuration.
type Config struct {
	SourceRepoPath string `mapstructure:"sourceRepoPath"`
	TargetRepoPath string `mapstructure:"targetRepoPath"`
	LogFilePath    string `mapstructure:"logFilePath"`

	ForceReCreateRepo              bool `mapstructure:"forceReCreateRepo"`
	FollowByLogFile                bool `mapstructure:"followByLogFile"`
	FollowByNumberOfCommits        bool `mapstructure:"followByNumberOfCommits"`
	SyncAllFilesOnLastFollowCommit bool `mapstructure:"syncAllFilesOnLastFollowCommit"`

	AllowedPaths       []string `mapstructure:"allowedPaths"`
	IgnoredPaths       []string `mapstructure:"ignoredPaths"`
	CaseSensitivePaths bool     `mapstructure:"caseSensitivePaths"`

	CommitTransformer string `mapstructure:"commitTransformer"`
	CommitterName     string `mapstructure:"committerName"`
	CommitterEmail    string `mapstructure:"committerEmail"`
	SkipEmptyCommits  bool   `mapstructure:"skipEmptyCommits"`
	CommitBatchSize   int    `mapstructure:"commitBatchSize"`

	Debug          bool   `mapstructure:"debug"`
	DontShowTiming bool   `mapstructure:"dontShowTiming"`
	LogJSON        bool   `mapstructure:"logJSON"`
	OTLPEndpoint   string `mapstructure:"otlpEndpoint"`
	OTLPInsecure   bool   `mapstructure:"otlpInsecure"`
	OTLPHeaders    string `mapstructure:"otlpHeaders"`
	MetricsAddr    string `mapstructure:"metricsAddr"`
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath uses defaults and the environment only. Files without
// an extension are read as JSON.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)

		if filepath.Ext(configPath) == "" {
			viperCfg.SetConfigType("json")
		}

		readErr := viperCfg.ReadInConfig()
		if readErr != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, configPath, readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: unmarshal: %w", ErrInvalidConfig, unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &config, nil
}

// Validate checks option combinations.
func (c *Config) Validate() error {
	if c.FollowByLogFile && c.FollowByNumberOfCommits {
		return ErrConflictingResumeModes
	}

	if c.SkipEmptyCommits && c.FollowByNumberOfCommits {
		return ErrEmptyCommitsWithCount
	}

	if c.SourceRepoPath == "" || c.TargetRepoPath == "" {
		return ErrMissingRepoPath
	}

	if samePath(c.SourceRepoPath, c.TargetRepoPath) {
		return fmt.Errorf("%w: %s", ErrSameRepo, c.TargetRepoPath)
	}

	if c.CommitBatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.CommitBatchSize)
	}

	if (c.CommitterName == "") != (c.CommitterEmail == "") {
		return ErrIncompleteCommitter
	}

	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}

	return absA == absB
}

// LogPath returns the export log location, derived from the target when unset.
func (c *Config) LogPath() string {
	if c.LogFilePath != "" {
		return c.LogFilePath
	}

	return strings.TrimRight(c.TargetRepoPath, `/\`) + DefaultLogSuffix
}

// Following reports whether any resume mode is active. Force recreation disables resuming.
func (c *Config) Following() bool {
	return !c.ForceReCreateRepo && (c.FollowByLogFile || c.FollowByNumberOfCommits)
}

// FixedCommitter reports whether a fixed committer identity replaces the source committer.
func (c *Config) FixedCommitter() bool {
	return c.CommitterName != "" && c.CommitterEmail != ""
}
