// Package replay drives the export: it walks the source mainline, lets the
// resume controller decide per commit, and applies the filtered, transformed
// change records onto the target as new commits.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/open-condo-software/gitexporter/pkg/changes"
	"github.com/open-condo-software/gitexporter/pkg/config"
	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/materialize"
	"github.com/open-condo-software/gitexporter/pkg/observability"
	"github.com/open-condo-software/gitexporter/pkg/pathfilter"
	"github.com/open-condo-software/gitexporter/pkg/resume"
)

// Options tune a run.
type Options struct {
	Rules            pathfilter.Rules
	SyncOnDivergence bool
	SkipEmptyCommits bool
	// Committer replaces the source committer name and email when set.
	// The timestamp always comes from the source commit.
	Committer *gitlib.Signature
	BatchSize int

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  *observability.ReplayMetrics
	Progress *Progress
}

// OptionsFromConfig maps the configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Rules: pathfilter.Rules{
			Allowed:       cfg.AllowedPaths,
			Ignored:       cfg.IgnoredPaths,
			CaseSensitive: cfg.CaseSensitivePaths,
		},
		SyncOnDivergence: cfg.SyncAllFilesOnLastFollowCommit,
		SkipEmptyCommits: cfg.SkipEmptyCommits,
		BatchSize:        cfg.CommitBatchSize,
	}

	if cfg.FixedCommitter() {
		opts.Committer = &gitlib.Signature{Name: cfg.CommitterName, Email: cfg.CommitterEmail}
	}

	return opts
}

// Stats summarize a run.
type Stats struct {
	Total    int
	Followed int
	Applied  int
	Synced   int
	Empty    int
	Records  changes.Summary
	Bytes    int64
	Warnings int
	// Head is the target HEAD after the run.
	Head    gitlib.Hash
	Elapsed time.Duration
}

// Engine replays the source of a Session into its target.
type Engine struct {
	session      *Session
	opts         Options
	logger       *slog.Logger
	tracer       trace.Tracer
	extractor    *changes.Extractor
	materializer *materialize.Materializer
}

// NewEngine creates an engine for session.
func NewEngine(session *Session, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("gitexporter")
	}

	return &Engine{
		session:      session,
		opts:         opts,
		logger:       logger,
		tracer:       tracer,
		extractor:    changes.NewExtractor(session.Source, logger),
		materializer: materialize.New(session.Target.Workdir(), session.Source, logger),
	}
}

// run is the mutable state of a single Run call.
type run struct {
	*Engine

	total      int
	filter     *pathfilter.Filter
	writer     *exportlog.Writer
	controller *resume.Controller
	stats      Stats
}

// Run replays every source mainline commit in order. The export log is
// flushed every BatchSize applied commits and at the end. Cancellation is
// honored between commits.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "gitexporter.replay.run")
	defer span.End()

	r, mainline, err := e.newRun(ctx)
	if err != nil {
		return Stats{}, spanError(span, err)
	}

	span.SetAttributes(
		attribute.Int("gitexporter.commits", len(mainline)),
		attribute.String("resume.mode", e.session.Mode.String()),
	)

	for i, sha := range mainline {
		err = ctx.Err()
		if err == nil {
			err = r.step(ctx, i, sha)
		}

		if err != nil {
			return r.stats, spanError(span, r.abort(err))
		}
	}

	_, err = r.controller.Finish(ctx)
	if err != nil {
		return r.stats, spanError(span, err)
	}

	err = r.writer.Flush()
	if err != nil {
		return r.stats, spanError(span, err)
	}

	head, err := e.session.Target.Head()
	if err == nil {
		r.stats.Head = head
	}

	r.stats.Elapsed = time.Since(start)

	e.logger.InfoContext(ctx, "export finished",
		"total", r.stats.Total, "followed", r.stats.Followed, "applied", r.stats.Applied,
		"synced", r.stats.Synced, "empty", r.stats.Empty, "head", r.stats.Head.String())

	return r.stats, nil
}

func (e *Engine) newRun(ctx context.Context) (*run, []gitlib.Hash, error) {
	mainline, err := e.session.Source.Mainline(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read source history: %w", err)
	}

	doc := exportlog.New()
	if e.session.Previous != nil {
		doc.Sets = e.session.Previous.Sets
	}

	r := &run{
		Engine: e,
		total:  len(mainline),
		filter: pathfilter.New(e.opts.Rules, &doc.Sets),
		writer: exportlog.NewWriter(e.session.Store, doc, e.opts.BatchSize),
		controller: resume.New(resume.Options{
			Mode:             e.session.Mode,
			SyncOnDivergence: e.opts.SyncOnDivergence,
			Log:              e.session.Previous,
			TargetMainline:   e.session.TargetMainline,
		}, e.session.Target, e.logger),
		stats: Stats{Total: len(mainline)},
	}

	return r, mainline, nil
}

// abort keeps the log consistent with the target before returning err.
// Nothing is written while the previous log is still being followed.
func (r *run) abort(err error) error {
	if r.stats.Applied+r.stats.Synced+r.stats.Empty == 0 {
		return err
	}

	flushErr := r.writer.Flush()
	if flushErr != nil {
		return errors.Join(err, fmt.Errorf("flush export log: %w", flushErr))
	}

	return err
}

func (r *run) step(ctx context.Context, i int, sha gitlib.Hash) error {
	decision, err := r.controller.Decide(ctx, i, sha)
	if err != nil {
		return err
	}

	switch decision.Action {
	case resume.Skip:
		return r.follow(ctx, i, sha, decision)
	case resume.Sync:
		return r.apply(ctx, i, sha, true)
	case resume.Apply:
	}

	return r.apply(ctx, i, sha, false)
}

func (r *run) follow(ctx context.Context, i int, sha gitlib.Hash, decision resume.Decision) error {
	var entry exportlog.Commit

	if decision.Carried != nil {
		entry = *decision.Carried
	} else {
		commit, err := r.session.Source.LookupCommit(ctx, sha)
		if err != nil {
			return err
		}

		entry = exportlog.Commit{
			Sha:       sha,
			Author:    exportlog.IdentityOf(commit.Author()),
			Committer: exportlog.IdentityOf(commit.Committer()),
			Message:   commit.Message(),
			Processing: exportlog.Processing{
				NewSha: decision.TargetSha,
				Index:  exportlog.Ordinal(i, r.total),
				Action: exportlog.ActionFollow,
			},
		}

		commit.Free()
	}

	r.writer.Carry(entry)
	r.stats.Followed++
	r.opts.Metrics.RecordCommit(ctx, exportlog.ActionFollow, 0)
	r.opts.Progress.Commit(i, r.total, sha, exportlog.ActionFollow, changes.Summary{})

	return nil
}

type pathCounts struct {
	paths, ignored, allowed int
}

func (r *run) apply(ctx context.Context, i int, sha gitlib.Hash, sync bool) error {
	t0 := time.Now().UTC()

	action := exportlog.ActionApply
	if sync {
		action = exportlog.ActionSync
	}

	ctx, span := r.tracer.Start(ctx, "gitexporter.replay.commit", trace.WithAttributes(
		attribute.String("commit.sha", sha.String()),
		attribute.Int("commit.index", i+1),
		attribute.Bool("commit.sync", sync),
	))
	defer span.End()

	commit, err := r.session.Source.LookupCommit(ctx, sha)
	if err != nil {
		return spanError(span, err)
	}
	defer commit.Free()

	records, counts, err := r.extract(ctx, sha, sync)
	if err != nil {
		return spanError(span, err)
	}

	info := &CommitInfo{
		SourceSha: sha,
		Index:     i,
		Total:     r.total,
		Message:   commit.Message(),
		Author:    commit.Author(),
		Committer: r.committer(commit.Committer()),
	}

	if r.session.Transformer != nil {
		records, err = r.session.Transformer.Transform(ctx, info, records)
		if err != nil {
			return spanError(span, fmt.Errorf("transform %s: %w", sha.Short(), err))
		}
	}

	var (
		newSha gitlib.Hash
		result materialize.Result
	)

	if r.opts.SkipEmptyCommits && !sync && len(records) == 0 {
		action = exportlog.ActionEmpty

		newSha, err = r.session.Target.Head()
		if err != nil && !errors.Is(err, gitlib.ErrUnbornHead) {
			return spanError(span, err)
		}
	} else {
		result, err = r.materializer.Apply(ctx, records)
		if err != nil {
			return spanError(span, fmt.Errorf("materialize %s: %w", sha.Short(), err))
		}

		newSha, err = r.commit(info, records)
		if err != nil {
			return spanError(span, fmt.Errorf("commit %s: %w", sha.Short(), err))
		}
	}

	tx := time.Now().UTC()

	err = r.writer.Append(exportlog.Commit{
		Sha:       sha,
		Author:    exportlog.IdentityOf(commit.Author()),
		Committer: exportlog.IdentityOf(commit.Committer()),
		Message:   commit.Message(),
		Processing: exportlog.Processing{
			NewSha:       newSha,
			Index:        exportlog.Ordinal(i, r.total),
			Action:       action,
			T0:           t0,
			TX:           tx,
			Dt:           tx.Sub(t0).Milliseconds(),
			Paths:        counts.paths,
			IgnoredPaths: counts.ignored,
			AllowedPaths: counts.allowed,
		},
	})
	if err != nil {
		return spanError(span, fmt.Errorf("flush export log: %w", err))
	}

	summary := changes.Summarize(records)
	r.count(action, summary, result)

	span.SetAttributes(
		attribute.String("commit.new_sha", newSha.String()),
		attribute.Int("records.count", len(records)),
	)

	r.opts.Metrics.RecordCommit(ctx, action, tx.Sub(t0))
	r.opts.Metrics.RecordRecords(ctx, kindCounts(records), result.Bytes)
	r.opts.Progress.Commit(i, r.total, sha, action, summary)

	r.logger.DebugContext(ctx, "commit processed",
		"index", exportlog.Ordinal(i, r.total), "sha", sha.String(), "new_sha", newSha.String(),
		"action", action, "records", len(records), "paths", counts.paths)

	return nil
}

// extract produces the filtered records of a commit. A SYNC also deletes
// every target path the filtered full tree no longer contains.
func (r *run) extract(ctx context.Context, sha gitlib.Hash, sync bool) ([]changes.Record, pathCounts, error) {
	var (
		records []changes.Record
		err     error
	)

	if sync {
		records, err = r.extractor.FullTree(ctx, sha)
	} else {
		records, err = r.extractor.DiffFromParent(ctx, sha)
	}

	if err != nil {
		return nil, pathCounts{}, err
	}

	var counts pathCounts

	kept := make([]changes.Record, 0, len(records))

	for _, rec := range records {
		verdict := r.filter.Classify(rec.Path)

		counts.paths++

		if verdict.Ignored {
			counts.ignored++
		}

		if verdict.Allowed {
			counts.allowed++
		}

		if verdict.Included() {
			kept = append(kept, rec)
		}
	}

	if !sync {
		return kept, counts, nil
	}

	stale, err := r.staleTargetPaths(kept)
	if err != nil {
		return nil, pathCounts{}, err
	}

	return append(kept, stale...), counts, nil
}

func (r *run) staleTargetPaths(kept []changes.Record) ([]changes.Record, error) {
	treeHash, err := r.session.Target.HeadTree()
	if err != nil {
		return nil, err
	}

	if treeHash.IsZero() {
		return nil, nil
	}

	tree, err := r.session.Target.LookupTree(treeHash)
	if err != nil {
		return nil, err
	}
	defer tree.Free()

	files, err := gitlib.TreeFiles(r.session.Target, tree)
	if err != nil {
		return nil, fmt.Errorf("list target tree: %w", err)
	}

	keep := make(map[string]struct{}, len(kept))
	for _, rec := range kept {
		keep[rec.Path] = struct{}{}
	}

	var stale []changes.Record

	for _, f := range files {
		if _, ok := keep[f.Path]; ok {
			continue
		}

		stale = append(stale, changes.Record{
			Path: f.Path,
			Kind: changes.Delete,
			Mode: changes.Mode(f.Mode),
			Blob: f.Hash,
		})
	}

	return stale, nil
}

// commit stages exactly records and commits the index on top of the target HEAD.
func (r *run) commit(info *CommitInfo, records []changes.Record) (gitlib.Hash, error) {
	idx, err := r.session.Target.Index()
	if err != nil {
		return gitlib.Hash{}, err
	}
	defer idx.Free()

	for _, rec := range records {
		switch rec.Kind {
		case changes.Delete, changes.Submodule:
			err = idx.Remove(rec.Path)
		case changes.Add, changes.Modify:
			err = idx.Add(rec.Path)
		case changes.Unknown:
			continue
		}

		if err != nil {
			return gitlib.Hash{}, err
		}
	}

	err = idx.Write()
	if err != nil {
		return gitlib.Hash{}, err
	}

	tree, err := idx.WriteTree()
	if err != nil {
		return gitlib.Hash{}, err
	}

	return r.session.Target.CreateCommit(tree, info.Author, info.Committer, info.Message)
}

func (r *run) committer(source gitlib.Signature) gitlib.Signature {
	if r.opts.Committer == nil {
		return source
	}

	return gitlib.Signature{Name: r.opts.Committer.Name, Email: r.opts.Committer.Email, When: source.When}
}

func (r *run) count(action string, summary changes.Summary, result materialize.Result) {
	switch action {
	case exportlog.ActionSync:
		r.stats.Synced++
	case exportlog.ActionEmpty:
		r.stats.Empty++
	default:
		r.stats.Applied++
	}

	r.stats.Records.Added += summary.Added
	r.stats.Records.Modified += summary.Modified
	r.stats.Records.Deleted += summary.Deleted
	r.stats.Records.Submodules += summary.Submodules
	r.stats.Bytes += result.Bytes
	r.stats.Warnings += len(result.Warnings)
}

func kindCounts(records []changes.Record) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Kind.String()]++
	}

	return counts
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
