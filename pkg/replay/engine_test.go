package replay_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-condo-software/gitexporter/pkg/changes"
	"github.com/open-condo-software/gitexporter/pkg/config"
	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/gitlib/gitlibtest"
	"github.com/open-condo-software/gitexporter/pkg/replay"
	"github.com/open-condo-software/gitexporter/pkg/resume"
)

func newConfig(t *testing.T, source string) *config.Config {
	t.Helper()

	return &config.Config{
		SourceRepoPath:  source,
		TargetRepoPath:  filepath.Join(t.TempDir(), "target"),
		AllowedPaths:    config.DefaultAllowedPaths(),
		CommitBatchSize: config.DefaultCommitBatchSize,
	}
}

func export(
	t *testing.T, cfg *config.Config, setup ...func(*replay.Session, *replay.Options),
) (replay.Stats, error) {
	t.Helper()

	ctx := context.Background()

	session, err := replay.Prepare(ctx, cfg, nil)
	if err != nil {
		return replay.Stats{}, err
	}
	defer session.Close()

	opts := replay.OptionsFromConfig(cfg)
	for _, fn := range setup {
		fn(session, &opts)
	}

	return replay.NewEngine(session, opts).Run(ctx)
}

func openTarget(t *testing.T, cfg *config.Config) *gitlib.Repository {
	t.Helper()

	repo, err := gitlib.OpenRepository(cfg.TargetRepoPath)
	require.NoError(t, err)
	t.Cleanup(repo.Free)

	return repo
}

func targetHistory(t *testing.T, cfg *config.Config) []gitlib.Hash {
	t.Helper()

	mainline, err := openTarget(t, cfg).Mainline(context.Background())
	require.NoError(t, err)

	return mainline
}

func headPaths(t *testing.T, repo *gitlib.Repository) map[string]changes.Mode {
	t.Helper()

	head, err := repo.Head()
	require.NoError(t, err)

	commit, err := repo.LookupCommit(context.Background(), head)
	require.NoError(t, err)

	defer commit.Free()

	files, err := commit.Files()
	require.NoError(t, err)

	out := make(map[string]changes.Mode, len(files))
	for _, f := range files {
		out[f.Path] = changes.Mode(f.Mode)
	}

	return out
}

func loadLog(t *testing.T, cfg *config.Config) *exportlog.Document {
	t.Helper()

	doc, err := exportlog.NewStore(cfg.LogPath()).Load()
	require.NoError(t, err)

	return doc
}

func TestExportFullHistory(t *testing.T) {
	t.Parallel()

	fixture, hashes := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)

	stats, err := export(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 6, stats.Applied)
	assert.Zero(t, stats.Followed)

	history := targetHistory(t, cfg)
	require.Len(t, history, 6)
	assert.Equal(t, history[5], stats.Head)

	target := openTarget(t, cfg)
	assert.Equal(t, map[string]changes.Mode{
		"Test.txt":      changes.ModeRegular,
		"Test.txt.link": changes.ModeSymlink,
		"sTest.txt":     changes.ModeRegular,
		"bin/script.js": changes.ModeExecutable,
	}, headPaths(t, target))

	link, err := os.Readlink(filepath.Join(cfg.TargetRepoPath, "Test.txt.link"))
	require.NoError(t, err)
	assert.Equal(t, "Test.txt", link)

	source := fixture.Open()

	for i := range hashes {
		src, lookupErr := source.LookupCommit(context.Background(), hashes[i])
		require.NoError(t, lookupErr)

		dst, lookupErr := target.LookupCommit(context.Background(), history[i])
		require.NoError(t, lookupErr)

		assert.Equal(t, src.Message(), dst.Message())
		assert.Equal(t, src.Author().Email, dst.Author().Email)
		assert.True(t, src.Author().When.Equal(dst.Author().When))
		assert.Equal(t, src.Committer().Name, dst.Committer().Name)
		assert.True(t, src.Committer().When.Equal(dst.Committer().When))

		src.Free()
		dst.Free()
	}

	doc := loadLog(t, cfg)
	require.Len(t, doc.Commits, 6)
	assert.Equal(t, gitlibtest.SixCommitPaths, doc.All.Items())

	for i, c := range doc.Commits {
		assert.Equal(t, hashes[i], c.Sha)
		assert.Equal(t, history[i], c.Processing.NewSha)
		assert.Equal(t, exportlog.Ordinal(i, 6), c.Processing.Index)
		assert.Equal(t, exportlog.ActionApply, c.Processing.Action)
	}
}

func TestExportAllowedSingleFileSkipsEmptyCommits(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)
	cfg.AllowedPaths = []string{"test.txt"}
	cfg.SkipEmptyCommits = true

	stats, err := export(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Applied)
	assert.Equal(t, 3, stats.Empty)

	history := targetHistory(t, cfg)
	require.Len(t, history, 3)
	assert.Equal(t, map[string]changes.Mode{"Test.txt": changes.ModeRegular}, headPaths(t, openTarget(t, cfg)))

	content, err := os.ReadFile(filepath.Join(cfg.TargetRepoPath, "Test.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Changed text", string(content))

	doc := loadLog(t, cfg)
	assert.Equal(t, gitlibtest.SixCommitPaths, doc.All.Items())
	assert.Equal(t, []string{"Test.txt.link", "sTest.txt", "bin/script.js"}, doc.Skipped.Items())
	assert.Equal(t, []string{"test.txt", "Test.txt"}, doc.Allowed.Items())

	for _, c := range doc.Commits[3:] {
		assert.Equal(t, exportlog.ActionEmpty, c.Processing.Action)
		assert.Equal(t, history[2], c.Processing.NewSha)
	}
}

func TestExportWithoutSkipKeepsOneToOneHistory(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)
	cfg.AllowedPaths = []string{"test.txt"}

	stats, err := export(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Applied)
	assert.Len(t, targetHistory(t, cfg), 6)
}

func TestExportIsIdempotentByLog(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)

	_, err := export(t, cfg)
	require.NoError(t, err)

	before, err := os.ReadFile(cfg.LogPath())
	require.NoError(t, err)

	head := targetHistory(t, cfg)[5]

	cfg.FollowByLogFile = true

	stats, err := export(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Followed)
	assert.Zero(t, stats.Applied)
	assert.Equal(t, head, stats.Head)

	after, err := os.ReadFile(cfg.LogPath())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestExportResumesNewSourceCommits(t *testing.T) {
	t.Parallel()

	source := gitlibtest.New(t)
	source.WriteFile("a.txt", "a")
	source.Commit("add a")
	source.WriteFile("b.txt", "b")
	source.Commit("add b")

	cfg := newConfig(t, source.Path)

	_, err := export(t, cfg)
	require.NoError(t, err)

	source.WriteFile("a.txt", "a2")
	source.Commit("change a")
	source.Remove("b.txt")
	source.Commit("remove b")

	cfg.FollowByLogFile = true

	stats, err := export(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Followed)
	assert.Equal(t, 2, stats.Applied)
	assert.Len(t, targetHistory(t, cfg), 4)
	assert.Equal(t, map[string]changes.Mode{"a.txt": changes.ModeRegular}, headPaths(t, openTarget(t, cfg)))

	doc := loadLog(t, cfg)
	require.Len(t, doc.Commits, 4)
	assert.Equal(t, "4/4", doc.Commits[3].Processing.Index)
}

func TestExportDivergenceWithSync(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)

	_, err := export(t, cfg)
	require.NoError(t, err)

	firstRun := targetHistory(t, cfg)

	// Forget the last two commits, then tighten the filter.
	store := exportlog.NewStore(cfg.LogPath())
	doc := loadLog(t, cfg)
	doc.Commits = doc.Commits[:4]
	require.NoError(t, store.Save(doc))

	cfg.FollowByLogFile = true
	cfg.SyncAllFilesOnLastFollowCommit = true
	cfg.IgnoredPaths = []string{"*.link"}

	stats, err := export(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Followed)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Applied)

	history := targetHistory(t, cfg)
	require.Len(t, history, 6)
	assert.Equal(t, firstRun[:4], history[:4])

	target := openTarget(t, cfg)
	assert.Equal(t, map[string]changes.Mode{
		"Test.txt":      changes.ModeRegular,
		"sTest.txt":     changes.ModeRegular,
		"bin/script.js": changes.ModeExecutable,
	}, headPaths(t, target))

	doc = loadLog(t, cfg)
	require.Len(t, doc.Commits, 6)
	assert.Equal(t, exportlog.ActionSync, doc.Commits[4].Processing.Action)
	assert.Equal(t, exportlog.ActionApply, doc.Commits[5].Processing.Action)
	assert.Equal(t, []string{"Test.txt.link"}, doc.Ignored.Items())

	report, err := replay.Verify(context.Background(), fixture.Open(), target, replay.OptionsFromConfig(cfg).Rules, false)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
}

func TestExportNoFollowPointLeavesLogUntouched(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)

	_, err := export(t, cfg)
	require.NoError(t, err)

	store := exportlog.NewStore(cfg.LogPath())
	doc := loadLog(t, cfg)
	doc.Commits[0].Sha = gitlib.Hash{0xde, 0xad}
	require.NoError(t, store.Save(doc))

	before, err := os.ReadFile(cfg.LogPath())
	require.NoError(t, err)

	cfg.FollowByLogFile = true

	_, err = export(t, cfg)
	require.ErrorIs(t, err, resume.ErrNoFollowPoint)

	after, err := os.ReadFile(cfg.LogPath())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestExportByCommitCount(t *testing.T) {
	t.Parallel()

	fixture, hashes := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)

	_, err := export(t, cfg)
	require.NoError(t, err)

	history := targetHistory(t, cfg)
	require.NoError(t, os.Remove(cfg.LogPath()))

	cfg.FollowByNumberOfCommits = true

	stats, err := export(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Followed)

	doc := loadLog(t, cfg)
	require.Len(t, doc.Commits, 6)

	for i, c := range doc.Commits {
		assert.Equal(t, hashes[i], c.Sha)
		assert.Equal(t, history[i], c.Processing.NewSha)
		assert.Equal(t, exportlog.ActionFollow, c.Processing.Action)
	}
}

func TestPrepareRules(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)

	t.Run("existing target without follow mode", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig(t, fixture.Path)
		_, err := export(t, cfg)
		require.NoError(t, err)

		_, err = export(t, cfg)
		require.ErrorIs(t, err, replay.ErrTargetExists)
	})

	t.Run("follow by log without log", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig(t, fixture.Path)
		_, err := export(t, cfg)
		require.NoError(t, err)
		require.NoError(t, os.Remove(cfg.LogPath()))

		cfg.FollowByLogFile = true
		_, err = export(t, cfg)
		require.ErrorIs(t, err, replay.ErrNoResumeState)
	})

	t.Run("follow by count on empty target", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig(t, fixture.Path)
		_, err := gitlib.InitRepository(cfg.TargetRepoPath)
		require.NoError(t, err)

		cfg.FollowByNumberOfCommits = true
		_, err = export(t, cfg)
		require.ErrorIs(t, err, replay.ErrNoResumeState)
	})

	t.Run("missing target starts fresh even when following", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig(t, fixture.Path)
		cfg.FollowByLogFile = true

		stats, err := export(t, cfg)
		require.NoError(t, err)
		assert.Equal(t, 6, stats.Applied)
	})

	t.Run("force recreate", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig(t, fixture.Path)
		_, err := export(t, cfg)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(cfg.TargetRepoPath, "stray.txt"), []byte("x"), 0o644))

		cfg.ForceReCreateRepo = true
		cfg.FollowByLogFile = true

		stats, err := export(t, cfg)
		require.NoError(t, err)
		assert.Equal(t, 6, stats.Applied)
		assert.NoFileExists(t, filepath.Join(cfg.TargetRepoPath, "stray.txt"))
	})

	t.Run("unresolvable transformer touches nothing", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig(t, fixture.Path)
		cfg.CommitTransformer = "gitexporter-no-such-transformer"

		_, err := export(t, cfg)
		require.ErrorIs(t, err, replay.ErrTransformerNotFound)
		assert.NoDirExists(t, cfg.TargetRepoPath)
	})
}

func TestExportTransformerAndCommitter(t *testing.T) {
	t.Parallel()

	fixture, hashes := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)
	cfg.CommitterName = "Exporter"
	cfg.CommitterEmail = "exporter@example.com"

	transformer := replay.TransformerFunc(func(
		_ context.Context, info *replay.CommitInfo, records []changes.Record,
	) ([]changes.Record, error) {
		info.Message = "[export] " + info.Message

		if info.Index == info.Total-1 {
			records = append(records, changes.Record{
				Path: "EXPORTED",
				Kind: changes.Add,
				Mode: changes.ModeRegular,
				Data: []byte(info.SourceSha.String()),
			})
		}

		return records, nil
	})

	var progress bytes.Buffer

	_, err := export(t, cfg, func(s *replay.Session, o *replay.Options) {
		s.Transformer = transformer
		o.Progress = replay.NewProgress(&progress, false, false)
	})
	require.NoError(t, err)

	ctx := context.Background()
	target := openTarget(t, cfg)

	head, err := target.Head()
	require.NoError(t, err)

	commit, err := target.LookupCommit(ctx, head)
	require.NoError(t, err)

	defer commit.Free()

	assert.Equal(t, "[export] add script!", commit.Message())
	assert.Equal(t, "Exporter", commit.Committer().Name)
	assert.Equal(t, "exporter@example.com", commit.Committer().Email)
	assert.Equal(t, "2010-01-01T22:05:00Z", commit.Committer().When.UTC().Format("2006-01-02T15:04:05Z"))

	marker, err := os.ReadFile(filepath.Join(cfg.TargetRepoPath, "EXPORTED"))
	require.NoError(t, err)
	assert.Equal(t, hashes[5].String(), string(marker))

	lines := strings.Split(strings.TrimSpace(progress.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "progress: 1/6 "+hashes[0].Short()+" apply (+1 ~0 -0)", lines[0])
}

func TestExportCanceledBetweenCommits(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)

	ctx, cancel := context.WithCancel(context.Background())

	session, err := replay.Prepare(ctx, cfg, nil)
	require.NoError(t, err)

	defer session.Close()

	session.Transformer = replay.TransformerFunc(func(
		_ context.Context, info *replay.CommitInfo, records []changes.Record,
	) ([]changes.Record, error) {
		if info.Index == 1 {
			cancel()
		}

		return records, nil
	})

	stats, err := replay.NewEngine(session, replay.OptionsFromConfig(cfg)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, stats.Applied)

	doc := loadLog(t, cfg)
	assert.Len(t, doc.Commits, 2)
	assert.Len(t, targetHistory(t, cfg), 2)
}

func TestExportResumesAfterLeadingEmptyCommits(t *testing.T) {
	t.Parallel()

	fixture, _ := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)
	cfg.AllowedPaths = []string{"sTest.txt"}
	cfg.SkipEmptyCommits = true

	stats, err := export(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 5, stats.Empty)

	doc := loadLog(t, cfg)
	assert.True(t, doc.Commits[0].Processing.NewSha.IsZero())
	assert.Equal(t, stats.Head, doc.Commits[5].Processing.NewSha)

	cfg.FollowByLogFile = true

	stats, err = export(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Followed)
	assert.Len(t, targetHistory(t, cfg), 1)
}

func TestExportResumesWhenEveryLoggedCommitWasEmpty(t *testing.T) {
	t.Parallel()

	fixture, hashes := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)
	cfg.AllowedPaths = []string{"later.txt"}
	cfg.SkipEmptyCommits = true

	stats, err := export(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Empty)
	assert.Empty(t, targetHistory(t, cfg))

	fixture.WriteFile("later.txt", "finally")
	added := fixture.Commit("add later.txt")

	cfg.FollowByLogFile = true

	stats, err = export(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Followed)
	assert.Equal(t, 1, stats.Applied)

	history := targetHistory(t, cfg)
	require.Len(t, history, 1)
	assert.Equal(t, map[string]changes.Mode{"later.txt": changes.ModeRegular}, headPaths(t, openTarget(t, cfg)))

	doc := loadLog(t, cfg)
	require.Len(t, doc.Commits, 7)
	assert.Equal(t, hashes[0], doc.Commits[0].Sha)
	assert.Equal(t, added, doc.Commits[6].Sha)
	assert.Equal(t, history[0], doc.Commits[6].Processing.NewSha)
}

func TestExportFileReplacedByGitlink(t *testing.T) {
	t.Parallel()

	source := gitlibtest.New(t)
	source.WriteFile("lib", "was a file")
	source.WriteFile("keep.txt", "keep")
	first := source.Commit("files")
	source.CommitGitlink("vendor lib", "lib", first)

	cfg := newConfig(t, source.Path)

	stats, err := export(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, 1, stats.Records.Submodules)

	target := openTarget(t, cfg)
	assert.Equal(t, map[string]changes.Mode{"keep.txt": changes.ModeRegular}, headPaths(t, target))
	assert.NoFileExists(t, filepath.Join(cfg.TargetRepoPath, "lib"))

	report, err := replay.Verify(context.Background(), source.Open(), target, replay.OptionsFromConfig(cfg).Rules, false)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
}
