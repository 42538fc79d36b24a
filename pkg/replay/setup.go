package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/open-condo-software/gitexporter/pkg/config"
	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/resume"
)

// Session is a prepared pair of repositories with the resume state of the
// previous run.
type Session struct {
	Source *gitlib.Repository
	Target *gitlib.Repository
	Store  *exportlog.Store

	Mode resume.Mode
	// Previous is the export log of the previous run, nil when starting fresh.
	Previous *exportlog.Document
	// TargetMainline is the target history, oldest first, for both follow modes.
	TargetMainline []gitlib.Hash

	Transformer CommitTransformer
}

// Close releases both repositories.
func (s *Session) Close() {
	if s.Source != nil {
		s.Source.Free()
	}

	if s.Target != nil {
		s.Target.Free()
	}
}

// Prepare opens the source, resolves the transformer and opens, creates or
// recreates the target according to cfg. Configuration problems are reported
// before the target is touched.
func Prepare(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var transformer CommitTransformer

	if cfg.CommitTransformer != "" {
		execTransformer, err := NewExecTransformer(cfg.CommitTransformer)
		if err != nil {
			return nil, err
		}

		transformer = execTransformer
	}

	source, err := gitlib.OpenRepository(cfg.SourceRepoPath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	session := &Session{
		Source:      source,
		Store:       exportlog.NewStore(cfg.LogPath()),
		Transformer: transformer,
	}

	err = session.openTarget(ctx, cfg, logger)
	if err != nil {
		session.Close()

		return nil, err
	}

	return session, nil
}

func (s *Session) openTarget(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	path := cfg.TargetRepoPath

	if cfg.ForceReCreateRepo {
		logger.InfoContext(ctx, "recreating target", "path", path, "log", s.Store.Path())

		err := os.RemoveAll(path)
		if err != nil {
			return fmt.Errorf("remove target: %w", err)
		}

		err = s.Store.Remove()
		if err != nil {
			return err
		}

		return s.initTarget(path)
	}

	exists, err := targetExists(path)
	if err != nil {
		return err
	}

	if !exists {
		if cfg.Following() {
			logger.InfoContext(ctx, "target does not exist, starting a full export", "path", path)
		}

		return s.initTarget(path)
	}

	s.Target, err = gitlib.OpenRepository(path)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}

	switch {
	case cfg.FollowByLogFile:
		return s.loadLog(ctx)
	case cfg.FollowByNumberOfCommits:
		return s.loadMainline(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrTargetExists, path)
	}
}

func (s *Session) initTarget(path string) error {
	target, err := gitlib.InitRepository(path)
	if err != nil {
		return fmt.Errorf("init target: %w", err)
	}

	s.Target = target
	s.Mode = resume.None

	return nil
}

func (s *Session) loadLog(ctx context.Context) error {
	doc, err := s.Store.Load()
	if errors.Is(err, exportlog.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNoResumeState, err)
	}

	if err != nil {
		return err
	}

	if doc.Len() == 0 {
		return fmt.Errorf("%w: export log %s has no commits", ErrNoResumeState, s.Store.Path())
	}

	mainline, err := s.Target.Mainline(ctx)
	if err != nil {
		return fmt.Errorf("read target history: %w", err)
	}

	s.Mode = resume.ByLog
	s.Previous = doc
	s.TargetMainline = mainline

	return nil
}

func (s *Session) loadMainline(ctx context.Context) error {
	mainline, err := s.Target.Mainline(ctx)
	if err != nil {
		return fmt.Errorf("read target history: %w", err)
	}

	if len(mainline) == 0 {
		return fmt.Errorf("%w: target has no commits", ErrNoResumeState)
	}

	doc, err := s.Store.Load()

	switch {
	case errors.Is(err, exportlog.ErrNotFound):
	case err != nil:
		return err
	default:
		s.Previous = doc
	}

	s.Mode = resume.ByCommitCount
	s.TargetMainline = mainline

	return nil
}

// targetExists treats a missing path and an empty directory alike.
func targetExists(path string) (bool, error) {
	dir, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("inspect target: %w", err)
	}
	defer dir.Close()

	_, err = dir.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("inspect target: %w", err)
	}

	return true, nil
}
