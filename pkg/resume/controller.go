// Package resume decides, per source commit, whether a previous run already
// applied it to the target, and recovers the target at the first commit where
// the two histories stop corresponding.
package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

// ErrNoFollowPoint is returned when following stops before any commit was
// confirmed, leaving no safe commit to reset the target to.
var ErrNoFollowPoint = errors.New("no commit could be followed, nothing safe to reset the target to")

// Mode selects how progress from an earlier run is trusted.
type Mode int

// Resume modes.
const (
	// None replays everything into an empty target.
	None Mode = iota
	// ByLog trusts the source/target pairs recorded in the export log.
	ByLog
	// ByCommitCount trusts positional correspondence of source and target mainlines.
	ByCommitCount
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case ByLog:
		return "log"
	case ByCommitCount:
		return "commit-count"
	}

	return fmt.Sprintf("mode(%d)", int(m))
}

// State is the controller state.
type State int

// Controller states.
const (
	Following State = iota
	Applying
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Following:
		return "following"
	case Applying:
		return "applying"
	case Stopped:
		return "stopped"
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// Action is what the engine must do with a commit.
type Action int

// Actions.
const (
	// Skip means the commit is already present on the target.
	Skip Action = iota
	// Sync means the commit is replayed as a full-tree reconciliation.
	Sync
	// Apply means the commit is replayed from its parent diff.
	Apply
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case Sync:
		return "sync"
	case Apply:
		return "apply"
	}

	return fmt.Sprintf("action(%d)", int(a))
}

// Target is the part of the target repository the controller drives.
type Target interface {
	Head() (gitlib.Hash, error)
	ResetHard(ctx context.Context, hash gitlib.Hash) error
}

// Options configures a Controller.
type Options struct {
	Mode Mode
	// SyncOnDivergence turns the first commit after following stops into a SYNC.
	SyncOnDivergence bool
	// Log is the export log of the previous run. Used by ByLog, and by
	// ByCommitCount to carry recorded statistics.
	Log *exportlog.Document
	// TargetMainline is the target's first-parent history, oldest first.
	// ByCommitCount pairs it with the source by position; ByLog only trusts
	// recorded target commits found in it.
	TargetMainline []gitlib.Hash
}

// Decision is the verdict for one commit.
type Decision struct {
	Action Action
	// TargetSha is the target commit that already represents a skipped commit.
	TargetSha gitlib.Hash
	// Carried is the log entry to keep for a skipped commit, when one exists.
	Carried *exportlog.Commit
	// ResetTo is set when this decision reset the target.
	ResetTo gitlib.Hash
}

// Controller is the per-run resume state machine. It is not safe for concurrent use.
type Controller struct {
	opts       Options
	target     Target
	logger     *slog.Logger
	state      State
	lastFollow gitlib.Hash
	syncIndex  int
	reachable  map[gitlib.Hash]struct{}
	// unbornFollow is set once empty commits were followed on a target with no commits.
	unbornFollow bool
}

// New creates a controller. Mode None starts in Applying; the follow modes start in Following.
func New(opts Options, target Target, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{opts: opts, target: target, logger: logger, state: Applying, syncIndex: -1}
	if opts.Mode != None {
		c.state = Following
	}

	if opts.Mode == ByLog {
		c.reachable = make(map[gitlib.Hash]struct{}, len(opts.TargetMainline))
		for _, hash := range opts.TargetMainline {
			c.reachable[hash] = struct{}{}
		}
	}

	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// LastFollow returns the last target commit confirmed while following.
func (c *Controller) LastFollow() gitlib.Hash {
	return c.lastFollow
}

// SyncIndex returns the ordinal marked for SYNC, or -1.
func (c *Controller) SyncIndex() int {
	return c.syncIndex
}

// Decide evaluates source commit sha at ordinal i. Commits must be presented
// in mainline order starting at 0.
func (c *Controller) Decide(ctx context.Context, i int, sha gitlib.Hash) (Decision, error) {
	if c.state == Following {
		decision, ok := c.follow(i, sha)
		if ok {
			return decision, nil
		}

		return c.stop(ctx, i, sha)
	}

	if i == c.syncIndex {
		return Decision{Action: Sync}, nil
	}

	return Decision{Action: Apply}, nil
}

func (c *Controller) follow(i int, sha gitlib.Hash) (Decision, bool) {
	switch c.opts.Mode {
	case ByLog:
		return c.followLog(i, sha)
	case ByCommitCount:
		return c.followCount(i, sha)
	case None:
	}

	return Decision{}, false
}

func (c *Controller) followLog(i int, sha gitlib.Hash) (Decision, bool) {
	if c.opts.Log == nil {
		return Decision{}, false
	}

	entry, ok := c.opts.Log.Commit(i)
	if !ok || entry.Sha != sha {
		return Decision{}, false
	}

	newSha := entry.Processing.NewSha

	// Commits skipped as empty before the target had any commit.
	if newSha.IsZero() && entry.Processing.Action == exportlog.ActionEmpty && c.lastFollow.IsZero() {
		c.unbornFollow = true

		return Decision{Action: Skip, Carried: &entry}, true
	}

	// Only commits reachable from the target HEAD are trusted.
	if _, ok := c.reachable[newSha]; !ok {
		return Decision{}, false
	}

	c.lastFollow = newSha

	return Decision{Action: Skip, TargetSha: newSha, Carried: &entry}, true
}

func (c *Controller) followCount(i int, sha gitlib.Hash) (Decision, bool) {
	if i >= len(c.opts.TargetMainline) {
		return Decision{}, false
	}

	targetSha := c.opts.TargetMainline[i]
	c.lastFollow = targetSha

	decision := Decision{Action: Skip, TargetSha: targetSha}

	if c.opts.Log != nil {
		if entry, ok := c.opts.Log.Commit(i); ok && entry.Sha == sha {
			entry.Processing.NewSha = targetSha
			decision.Carried = &entry
		}
	}

	return decision, true
}

func (c *Controller) stop(ctx context.Context, i int, sha gitlib.Hash) (Decision, error) {
	c.state = Stopped

	if c.lastFollow.IsZero() {
		return c.stopUnborn(ctx, i, sha)
	}

	c.logger.InfoContext(ctx, "source and target diverge, resetting target",
		"index", i+1, "sha", sha.String(), "reset_to", c.lastFollow.String(), "mode", c.opts.Mode.String())

	err := c.target.ResetHard(ctx, c.lastFollow)
	if err != nil {
		return Decision{}, fmt.Errorf("reset target to %s: %w", c.lastFollow.Short(), err)
	}

	return Decision{Action: c.divergedAction(i), ResetTo: c.lastFollow}, nil
}

// stopUnborn continues on a target that still has no commits after only
// empty commits were followed. Anything else has no safe point to reset to.
func (c *Controller) stopUnborn(ctx context.Context, i int, sha gitlib.Hash) (Decision, error) {
	if !c.unbornFollow {
		return Decision{}, fmt.Errorf("%w: stopped at %s (%d)", ErrNoFollowPoint, sha.Short(), i+1)
	}

	head, err := c.target.Head()

	switch {
	case errors.Is(err, gitlib.ErrUnbornHead):
	case err != nil:
		return Decision{}, fmt.Errorf("read target head: %w", err)
	case !head.IsZero():
		return Decision{}, fmt.Errorf("%w: stopped at %s (%d), target has unlogged commits",
			ErrNoFollowPoint, sha.Short(), i+1)
	}

	c.logger.InfoContext(ctx, "continuing on a target with no commits",
		"index", i+1, "sha", sha.String(), "mode", c.opts.Mode.String())

	return Decision{Action: c.divergedAction(i)}, nil
}

func (c *Controller) divergedAction(i int) Action {
	action := Apply
	if c.opts.SyncOnDivergence {
		c.syncIndex = i
		action = Sync
	}

	return action
}

// Finish is called after the last source commit. When following by log never
// stopped, the target is moved back to the last followed commit if it carries
// commits the log does not know about.
func (c *Controller) Finish(ctx context.Context) (gitlib.Hash, error) {
	if c.state != Following || c.opts.Mode != ByLog || c.lastFollow.IsZero() {
		return gitlib.Hash{}, nil
	}

	head, err := c.target.Head()
	if err != nil {
		return gitlib.Hash{}, fmt.Errorf("read target head: %w", err)
	}

	if head == c.lastFollow {
		return gitlib.Hash{}, nil
	}

	c.logger.InfoContext(ctx, "target is ahead of the export log, resetting",
		"head", head.String(), "reset_to", c.lastFollow.String())

	err = c.target.ResetHard(ctx, c.lastFollow)
	if err != nil {
		return gitlib.Hash{}, fmt.Errorf("reset target to %s: %w", c.lastFollow.Short(), err)
	}

	return c.lastFollow, nil
}
