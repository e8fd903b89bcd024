package merge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/architectureofthings/archi-modelrepository-plugin/snapshot"
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// ErrDeclined is returned by a Policy when the user declines to resolve the
// conflicts. The resolver turns it into an abort, not a failure.
var ErrDeclined = errors.New("conflict resolution declined")

// ErrUnresolved means the supplied choices do not cover every conflicting
// path that needs one.
var ErrUnresolved = errors.New("conflict left unresolved")

// Resolver drives conflict resolution against one store.
type Resolver struct {
	store *store.Store
	log   *zap.Logger
}

// NewResolver creates a resolver for the given store. A nil logger disables
// logging.
func NewResolver(s *store.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: s, log: logger}
}

// Run classifies the outcome's conflicts, obtains choices from the policy
// and applies them. The policy is only consulted when at least one conflict
// needs a choice; a conflict set made entirely of deletion-vs-modification
// entries resolves itself. A declined policy aborts the merge and reports
// resolved=false with a nil error; the working copy is back at the
// pre-merge commit when it returns.
func (r *Resolver) Run(ctx context.Context, outcome *store.MergeOutcome, policy Policy) (store.CommitInfo, bool, error) {
	conflicts := Conflicts(outcome)

	var choices []Choice
	if anyNeedsChoice(conflicts) {
		var err error
		choices, err = policy.Resolve(ctx, conflicts)
		if errors.Is(err, ErrDeclined) {
			r.log.Info("conflict resolution declined, aborting merge",
				zap.Int("conflicts", len(conflicts)))
			if abortErr := r.Abort(ctx, outcome); abortErr != nil {
				return store.CommitInfo{}, false, abortErr
			}
			return store.CommitInfo{}, false, nil
		}
		if err != nil {
			return store.CommitInfo{}, false, err
		}
	}

	info, err := r.Apply(ctx, outcome, choices)
	if err != nil {
		return store.CommitInfo{}, false, err
	}

	return info, true, nil
}

// anyNeedsChoice reports whether at least one conflict requires a user
// decision.
func anyNeedsChoice(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.NeedsChoice() {
			return true
		}
	}
	return false
}

// Apply materializes the resolved file set and records the merge commit.
// Deletion-vs-modification conflicts ignore the supplied choices: the side
// carrying data always survives. Every other conflict must be covered by a
// choice or Apply fails with ErrUnresolved before touching the working
// copy.
func (r *Resolver) Apply(ctx context.Context, outcome *store.MergeOutcome, choices []Choice) (store.CommitInfo, error) {
	if outcome == nil || outcome.State != store.Conflicted {
		return store.CommitInfo{}, store.WrapError(store.ErrInvalidOptions, "outcome is not conflicted")
	}

	chosen := make(map[string]Side, len(choices))
	for _, c := range choices {
		chosen[c.Path] = c.Keep
	}

	files := make(map[string][]byte, len(outcome.MergedFiles)+len(outcome.Conflicts))
	for p, data := range outcome.MergedFiles {
		files[p] = data
	}

	for _, entry := range outcome.Conflicts {
		conflict := Conflict{ConflictEntry: entry, Classification: Classify(entry)}

		if !conflict.NeedsChoice() {
			// The modified side survives; the deletion becomes a no-op.
			content := entry.Ours
			if content == nil {
				content = entry.Theirs
			}
			files[entry.Path] = content
			r.log.Debug("kept modified version over deletion", zap.String("path", entry.Path))
			continue
		}

		side, ok := chosen[entry.Path]
		if !ok {
			return store.CommitInfo{}, store.WrapErrorf(ErrUnresolved, "path %q", entry.Path)
		}

		switch side {
		case KeepLocal:
			files[entry.Path] = entry.Ours
		case KeepRemote:
			files[entry.Path] = entry.Theirs
		}
	}

	// Surviving relations must keep their endpoints alive, even when the
	// endpoint's deletion merged without a conflict of its own. Committing
	// a dangling relation would leave HEAD at a tree that cannot load.
	repaired, err := r.repairEndpoints(ctx, files, outcome)
	if err != nil {
		return store.CommitInfo{}, err
	}
	outcome.Repaired = repaired

	info, err := r.store.CommitMerge(ctx, files, r.commitMessage(outcome), outcome.LocalHead, outcome.RemoteHead)
	if err != nil {
		return store.CommitInfo{}, err
	}

	outcome.State = store.MergedClean
	outcome.MergeCommit = info.Hash
	r.log.Info("conflicts resolved",
		zap.Int("conflicts", len(outcome.Conflicts)),
		zap.String("commit", info.Hash))

	return info, nil
}

// repairEndpoints restores element files that the resolved set's relations
// reference but no side in the set still carries, reading candidates from
// the commits that took part in the merge (local first, then remote, then
// the merge base). Returns the restored paths.
func (r *Resolver) repairEndpoints(ctx context.Context, files map[string][]byte, outcome *store.MergeOutcome) ([]string, error) {
	if len(snapshot.DanglingEndpoints(snapshot.Snapshot(files))) == 0 {
		return nil, nil
	}

	donors := make([]snapshot.Snapshot, 0, 3)
	for _, rev := range []string{outcome.LocalHead, outcome.RemoteHead, outcome.BaseHead} {
		if rev == "" {
			continue
		}
		snap, err := r.store.SnapshotAt(ctx, rev)
		if err != nil {
			return nil, err
		}
		donors = append(donors, snap)
	}

	repaired := snapshot.RepairDanglingRelations(snapshot.Snapshot(files), donors...)
	if len(repaired) > 0 {
		r.log.Debug("restored relation endpoints dropped by merge", zap.Int("files", len(repaired)))
	}

	return repaired, nil
}

// Abort walks away from a conflicted merge, resetting the working copy to
// the pre-merge commit. Local commits made before the pull remain.
func (r *Resolver) Abort(ctx context.Context, outcome *store.MergeOutcome) error {
	return r.store.ResetToPreMergeState(ctx, outcome)
}

func (r *Resolver) commitMessage(outcome *store.MergeOutcome) string {
	remote := outcome.Remote
	if remote == "" {
		remote = store.DefaultRemoteName
	}
	n := len(outcome.Conflicts)
	if n == 1 {
		return fmt.Sprintf("Merge remote changes from %s (1 conflict resolved)", remote)
	}
	return fmt.Sprintf("Merge remote changes from %s (%d conflicts resolved)", remote, n)
}
