package replay_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-condo-software/gitexporter/pkg/changes"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/gitlib/gitlibtest"
	"github.com/open-condo-software/gitexporter/pkg/replay"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "transform.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	return path
}

func sampleInfo() *replay.CommitInfo {
	when := time.Date(2010, 1, 1, 22, 0, 0, 0, time.UTC)

	return &replay.CommitInfo{
		SourceSha: gitlib.Hash{0x01, 0x02},
		Index:     0,
		Total:     2,
		Message:   "initial commit",
		Author:    gitlib.Signature{Name: "User", Email: "user@example.com", When: when},
		Committer: gitlib.Signature{Name: "Name2", Email: "user2@example.com", When: when},
	}
}

func TestExecTransformerRewritesMessage(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `sed 's/"message":"/"message":"[exec] /'`)

	transformer, err := replay.NewExecTransformer(script)
	require.NoError(t, err)
	assert.Equal(t, script, transformer.Path())

	records := []changes.Record{{Path: "a.txt", Kind: changes.Add, Mode: changes.ModeRegular, Blob: gitlib.Hash{0xaa}}}
	info := sampleInfo()

	out, err := transformer.Transform(context.Background(), info, records)
	require.NoError(t, err)

	assert.Equal(t, "[exec] initial commit", info.Message)
	assert.Equal(t, "User", info.Author.Name)
	assert.True(t, info.Committer.When.Equal(sampleInfo().Committer.When))
	assert.Equal(t, records, out)
}

func TestExecTransformerDropsRecords(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `cat >/dev/null
echo '{"commit":{"message":"kept"},"records":[]}'`)

	transformer, err := replay.NewExecTransformer(script)
	require.NoError(t, err)

	info := sampleInfo()

	out, err := transformer.Transform(context.Background(), info, []changes.Record{{Path: "a.txt", Kind: changes.Add}})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "kept", info.Message)
}

func TestExecTransformerKeepsAbsentFields(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `cat >/dev/null
echo '{"commit":{"message":"only the message"}}'`)

	transformer, err := replay.NewExecTransformer(script)
	require.NoError(t, err)

	records := []changes.Record{{Path: "a.txt", Kind: changes.Add, Mode: changes.ModeRegular, Blob: gitlib.Hash{0xaa}}}
	info := sampleInfo()

	out, err := transformer.Transform(context.Background(), info, records)
	require.NoError(t, err)

	want := sampleInfo()
	assert.Equal(t, "only the message", info.Message)
	assert.Equal(t, want.Author.Name, info.Author.Name)
	assert.Equal(t, want.Author.Email, info.Author.Email)
	assert.True(t, info.Author.When.Equal(want.Author.When))
	assert.Equal(t, want.Committer.Name, info.Committer.Name)
	assert.Equal(t, records, out)
}

func TestExecTransformerAuthorWithoutTimeKeepsInputTime(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `cat >/dev/null
echo '{"commit":{"message":"m","author":{"name":"Bot","email":"bot@example.com"}},"records":[]}'`)

	transformer, err := replay.NewExecTransformer(script)
	require.NoError(t, err)

	info := sampleInfo()

	_, err = transformer.Transform(context.Background(), info, nil)
	require.NoError(t, err)

	assert.Equal(t, "Bot", info.Author.Name)
	assert.Equal(t, "bot@example.com", info.Author.Email)
	assert.True(t, info.Author.When.Equal(sampleInfo().Author.When))
}

func TestExecTransformerFailures(t *testing.T) {
	t.Parallel()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		_, err := replay.NewExecTransformer("gitexporter-no-such-transformer")
		require.ErrorIs(t, err, replay.ErrTransformerNotFound)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		t.Parallel()

		transformer, err := replay.NewExecTransformer(writeScript(t, "echo broken >&2\nexit 3"))
		require.NoError(t, err)

		_, err = transformer.Transform(context.Background(), sampleInfo(), nil)
		require.ErrorIs(t, err, replay.ErrTransformerFailed)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("empty author", func(t *testing.T) {
		t.Parallel()

		transformer, err := replay.NewExecTransformer(writeScript(t, `cat >/dev/null
echo '{"commit":{"message":"m","author":{"name":"","email":""}},"records":[]}'`))
		require.NoError(t, err)

		info := sampleInfo()

		_, err = transformer.Transform(context.Background(), info, nil)
		require.ErrorIs(t, err, replay.ErrTransformerFailed)
		assert.Contains(t, err.Error(), "author")
		assert.Equal(t, "initial commit", info.Message)
	})

	t.Run("malformed output", func(t *testing.T) {
		t.Parallel()

		transformer, err := replay.NewExecTransformer(writeScript(t, "cat >/dev/null\necho not-json"))
		require.NoError(t, err)

		_, err = transformer.Transform(context.Background(), sampleInfo(), nil)
		require.ErrorIs(t, err, replay.ErrTransformerFailed)
	})
}

func TestExportWithExecTransformer(t *testing.T) {
	t.Parallel()

	fixture, hashes := gitlibtest.SixCommitHistory(t)
	cfg := newConfig(t, fixture.Path)
	cfg.CommitTransformer = writeScript(t, `sed 's/"message":"/"message":"[exec] /'`)

	stats, err := export(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Applied)

	target := openTarget(t, cfg)

	commit, err := target.LookupCommit(context.Background(), stats.Head)
	require.NoError(t, err)

	defer commit.Free()

	assert.Equal(t, "[exec] add script!", commit.Message())

	doc := loadLog(t, cfg)
	assert.Equal(t, "add script!", doc.Commits[5].Message)
	assert.Equal(t, hashes[5], doc.Commits[5].Sha)
}
