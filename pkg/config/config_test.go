package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-condo-software/gitexporter/pkg/config"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, "export.json", `{}`))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultSourceRepoPath, cfg.SourceRepoPath)
	assert.Equal(t, config.DefaultTargetRepoPath, cfg.TargetRepoPath)
	assert.Equal(t, []string{"*"}, cfg.AllowedPaths)
	assert.Empty(t, cfg.IgnoredPaths)
	assert.Equal(t, config.DefaultCommitBatchSize, cfg.CommitBatchSize)
	assert.False(t, cfg.CaseSensitivePaths)
	assert.False(t, cfg.Following())
	assert.Equal(t, "ignore.target.log.json", cfg.LogPath())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, "export.json", `{
		"forceReCreateRepo": false,
		"followByLogFile": true,
		"sourceRepoPath": "src",
		"targetRepoPath": "out/",
		"logFilePath": "custom.log.json",
		"ignoredPaths": ["*.log", "secret/"],
		"allowedPaths": ["src/*"],
		"caseSensitivePaths": true,
		"committerName": "Bot",
		"committerEmail": "bot@example.com",
		"commitBatchSize": 5
	}`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "src", cfg.SourceRepoPath)
	assert.Equal(t, []string{"*.log", "secret/"}, cfg.IgnoredPaths)
	assert.Equal(t, []string{"src/*"}, cfg.AllowedPaths)
	assert.True(t, cfg.CaseSensitivePaths)
	assert.True(t, cfg.Following())
	assert.True(t, cfg.FixedCommitter())
	assert.Equal(t, 5, cfg.CommitBatchSize)
	assert.Equal(t, "custom.log.json", cfg.LogPath())
}

func TestLoadConfigWithoutExtensionIsJSON(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, "exportrc", `{"targetRepoPath": "dest"}`))
	require.NoError(t, err)

	assert.Equal(t, "dest", cfg.TargetRepoPath)
	assert.Equal(t, "dest.log.json", cfg.LogPath())
}

func TestLoadConfigYAML(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, "export.yaml", "targetRepoPath: dest\nskipEmptyCommits: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "dest", cfg.TargetRepoPath)
	assert.True(t, cfg.SkipEmptyCommits)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("GITEXPORTER_TARGETREPOPATH", "from-env")
	t.Setenv("GITEXPORTER_DEBUG", "true")

	cfg, err := config.LoadConfig(writeConfig(t, "export.json", `{"targetRepoPath": "from-file"}`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TargetRepoPath)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "bad.json", `{"targetRepoPath": `))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() config.Config {
		return config.Config{
			SourceRepoPath:  ".",
			TargetRepoPath:  "out",
			AllowedPaths:    config.DefaultAllowedPaths(),
			CommitBatchSize: config.DefaultCommitBatchSize,
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"valid", func(*config.Config) {}, nil},
		{"both resume modes", func(c *config.Config) {
			c.FollowByLogFile = true
			c.FollowByNumberOfCommits = true
		}, config.ErrConflictingResumeModes},
		{"both resume modes with force", func(c *config.Config) {
			c.ForceReCreateRepo = true
			c.FollowByLogFile = true
			c.FollowByNumberOfCommits = true
		}, config.ErrConflictingResumeModes},
		{"skip empty with commit count", func(c *config.Config) {
			c.SkipEmptyCommits = true
			c.FollowByNumberOfCommits = true
		}, config.ErrEmptyCommitsWithCount},
		{"empty target", func(c *config.Config) { c.TargetRepoPath = "" }, config.ErrMissingRepoPath},
		{"same repository", func(c *config.Config) { c.TargetRepoPath = "./" }, config.ErrSameRepo},
		{"zero batch", func(c *config.Config) { c.CommitBatchSize = 0 }, config.ErrInvalidBatchSize},
		{"half committer", func(c *config.Config) { c.CommitterName = "Bot" }, config.ErrIncompleteCommitter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.want == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestFollowingDisabledByForce(t *testing.T) {
	t.Parallel()

	cfg := config.Config{FollowByLogFile: true, ForceReCreateRepo: true}
	assert.False(t, cfg.Following())
}
