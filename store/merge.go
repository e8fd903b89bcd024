// This file contains merge analysis: the object-level three-way merge that
// backs Pull, plus resolution commits and pre-merge resets.
package store

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/architectureofthings/archi-modelrepository-plugin/snapshot"
)

// mergeAnalysis compares the local and remote heads and produces a merge
// outcome. Fast-forwards and clean merges are applied to the working copy;
// conflicted analyses leave the working copy untouched at the local commit.
func (s *Store) mergeAnalysis(ctx context.Context, localHash, remoteHash plumbing.Hash, remoteName string) (MergeOutcome, error) {
	outcome := MergeOutcome{
		State:        UpToDate,
		Remote:       remoteName,
		PreMergeHead: localHash.String(),
		LocalHead:    localHash.String(),
		RemoteHead:   remoteHash.String(),
	}

	if localHash == remoteHash {
		return outcome, nil
	}

	localCommit, err := s.repo.CommitObject(localHash)
	if err != nil {
		return outcome, WrapError(ErrRepository, "failed to read local commit")
	}
	remoteCommit, err := s.repo.CommitObject(remoteHash)
	if err != nil {
		return outcome, WrapError(ErrRepository, "failed to read remote commit")
	}

	bases, err := localCommit.MergeBase(remoteCommit)
	if err != nil {
		return outcome, WrapError(ErrRepository, "failed to compute merge base")
	}

	var baseCommit *object.Commit
	if len(bases) > 0 {
		baseCommit = bases[0]
	}

	if baseCommit != nil {
		outcome.BaseHead = baseCommit.Hash.String()
		if baseCommit.Hash == remoteHash {
			// Local is strictly ahead; nothing to merge.
			return outcome, nil
		}
		if baseCommit.Hash == localHash {
			if err := s.fastForward(remoteHash); err != nil {
				return outcome, err
			}
			outcome.State = FastForward
			outcome.MergeCommit = remoteHash.String()
			s.log.Debug("fast-forwarded", zap.String("to", remoteHash.String()))
			return outcome, nil
		}
	}

	// Diverged histories (or unrelated ones, with an empty base): merge at
	// the object-file level.
	base := map[string][]byte{}
	if baseCommit != nil {
		base, err = treeFiles(baseCommit)
		if err != nil {
			return outcome, WrapError(ErrRepository, "failed to read merge-base tree")
		}
	}
	ours, err := treeFiles(localCommit)
	if err != nil {
		return outcome, WrapError(ErrRepository, "failed to read local tree")
	}
	theirs, err := treeFiles(remoteCommit)
	if err != nil {
		return outcome, WrapError(ErrRepository, "failed to read remote tree")
	}

	merged, conflicts := threeWayMerge(base, ours, theirs)
	if len(conflicts) > 0 {
		outcome.State = Conflicted
		outcome.Conflicts = conflicts
		outcome.MergedFiles = merged
		s.log.Debug("merge conflicts detected", zap.Int("paths", len(conflicts)))
		return outcome, nil
	}

	// A one-sided deletion can compose cleanly with the other side keeping
	// or adding a relation that references the deleted element. Bring the
	// endpoint back before committing, or the merged tree would not load.
	if repaired := snapshot.RepairDanglingRelations(snapshot.Snapshot(merged),
		snapshot.Snapshot(ours), snapshot.Snapshot(theirs), snapshot.Snapshot(base)); len(repaired) > 0 {
		outcome.Repaired = repaired
		s.log.Debug("restored relation endpoints dropped by merge", zap.Int("files", len(repaired)))
	}

	info, err := s.CommitMerge(ctx, merged, mergeMessage(remoteName), localHash.String(), remoteHash.String())
	if err != nil {
		return outcome, err
	}

	outcome.State = MergedClean
	outcome.MergeCommit = info.Hash
	s.log.Debug("merged cleanly", zap.String("commit", info.Hash))

	return outcome, nil
}

// CommitMerge materializes the given file set in the working copy, stages
// it, and records a merge commit with the given parent hashes. An empty
// diff still produces a commit: the commit's purpose is joining the
// histories, not changing the tree.
func (s *Store) CommitMerge(ctx context.Context, files map[string][]byte, msg string, parents ...string) (CommitInfo, error) {
	if len(parents) == 0 {
		return CommitInfo{}, WrapError(ErrInvalidOptions, "merge commit requires parents")
	}

	sig, err := s.signature()
	if err != nil {
		return CommitInfo{}, err
	}

	if err := s.applyFiles(files); err != nil {
		return CommitInfo{}, err
	}

	parentHashes := make([]plumbing.Hash, 0, len(parents))
	for _, p := range parents {
		parentHashes = append(parentHashes, plumbing.NewHash(p))
	}

	who := &object.Signature{Name: sig.Name, Email: sig.Email, When: sig.When}
	hash, err := s.worktree.Commit(msg, &git.CommitOptions{
		Author:            who,
		Committer:         who,
		Parents:           parentHashes,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return CommitInfo{}, WrapError(err, "failed to create merge commit")
	}

	return s.commitInfo(hash)
}

// ResetToPreMergeState discards an in-flight conflicted merge and restores
// the working copy to the commit recorded before the pull began. It refuses
// to run over uncommitted changes rather than silently destroying them;
// the refresh workflow guarantees cleanliness by committing before any pull.
func (s *Store) ResetToPreMergeState(ctx context.Context, outcome *MergeOutcome) error {
	if outcome == nil || outcome.PreMergeHead == "" {
		return WrapError(ErrInvalidOptions, "outcome carries no pre-merge head")
	}

	target := plumbing.NewHash(outcome.PreMergeHead)

	head, err := s.repo.Head()
	if err != nil {
		return WrapError(ErrRepository, "failed to resolve HEAD")
	}

	// Only the pre-merge commit itself may be discarded over dirty state.
	if head.Hash() != target {
		dirty, err := s.HasUncommittedChanges(ctx)
		if err != nil {
			return err
		}
		if dirty {
			return WrapError(ErrUncommittedChanges, "refusing to reset")
		}
	}

	if err := s.worktree.Reset(&git.ResetOptions{Commit: target, Mode: git.HardReset}); err != nil {
		return WrapError(ErrRepository, "failed to reset working copy")
	}

	outcome.State = Aborted
	s.log.Debug("reset to pre-merge state", zap.String("commit", outcome.PreMergeHead))

	return nil
}

// SnapshotAt reads the model snapshot recorded in the tree of the given
// revision. Paths outside the snapshot layout are ignored.
func (s *Store) SnapshotAt(ctx context.Context, rev string) (snapshot.Snapshot, error) {
	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, WrapErrorf(ErrResolveFailed, "revision %q", rev)
	}

	commit, err := s.repo.CommitObject(*hash)
	if err != nil {
		return nil, WrapError(ErrRepository, "failed to read commit")
	}

	files, err := treeFiles(commit)
	if err != nil {
		return nil, WrapError(ErrRepository, "failed to read tree")
	}

	snap := make(snapshot.Snapshot)
	for p, data := range files {
		if _, ok := snapshot.ObjectIDFromPath(p); ok || p == snapshot.ManifestPath {
			snap[p] = data
		}
	}

	return snap, nil
}

// fastForward moves the current branch and working copy to the given commit.
func (s *Store) fastForward(to plumbing.Hash) error {
	head, err := s.repo.Head()
	if err != nil {
		return WrapError(ErrRepository, "failed to resolve HEAD")
	}
	if !head.Name().IsBranch() {
		return WrapError(ErrRepository, "HEAD is detached")
	}

	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(head.Name(), to)); err != nil {
		return WrapError(ErrRepository, "failed to move branch reference")
	}

	if err := s.worktree.Reset(&git.ResetOptions{Commit: to, Mode: git.HardReset}); err != nil {
		return WrapError(ErrRepository, "failed to update working copy")
	}

	return nil
}

// treeFiles reads a commit's full tree into a path-to-content map.
func treeFiles(commit *object.Commit) (map[string][]byte, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte)
	err = tree.Files().ForEach(func(f *object.File) error {
		contents, err := f.Contents()
		if err != nil {
			return err
		}
		files[f.Name] = []byte(contents)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// threeWayMerge merges two file sets against their common base. Paths
// changed on one side only take that side; paths changed identically on
// both sides converge; anything else is a conflict. Deletions count as
// changes.
func threeWayMerge(base, ours, theirs map[string][]byte) (map[string][]byte, []ConflictEntry) {
	paths := map[string]struct{}{}
	for p := range base {
		paths[p] = struct{}{}
	}
	for p := range ours {
		paths[p] = struct{}{}
	}
	for p := range theirs {
		paths[p] = struct{}{}
	}

	merged := make(map[string][]byte, len(paths))
	var conflicts []ConflictEntry

	for p := range paths {
		b, hasB := base[p]
		o, hasO := ours[p]
		t, hasT := theirs[p]

		oursChanged := sideChanged(b, hasB, o, hasO)
		theirsChanged := sideChanged(b, hasB, t, hasT)

		switch {
		case !oursChanged && !theirsChanged:
			if hasB {
				merged[p] = b
			}
		case oursChanged && !theirsChanged:
			if hasO {
				merged[p] = o
			}
		case theirsChanged && !oursChanged:
			if hasT {
				merged[p] = t
			}
		default:
			// Both sides changed the path.
			if hasO && hasT && bytes.Equal(o, t) {
				merged[p] = o
				continue
			}
			if !hasO && !hasT {
				// Deleted on both sides.
				continue
			}
			id, _ := snapshot.ObjectIDFromPath(p)
			entry := ConflictEntry{Path: p, ObjectID: id}
			if hasB {
				entry.Base = b
			}
			if hasO {
				entry.Ours = o
			}
			if hasT {
				entry.Theirs = t
			}
			conflicts = append(conflicts, entry)
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })

	return merged, conflicts
}

// sideChanged reports whether one side differs from the base, counting
// presence changes.
func sideChanged(base []byte, hasBase bool, side []byte, hasSide bool) bool {
	if hasBase != hasSide {
		return true
	}
	if !hasBase {
		return false
	}
	return !bytes.Equal(base, side)
}

// mergeMessage builds the message for automatically created merge commits.
func mergeMessage(remoteName string) string {
	if remoteName == "" {
		remoteName = DefaultRemoteName
	}
	return "Merge remote changes from " + remoteName
}

// errIsReferenceNotFound reports whether err means a missing reference.
func errIsReferenceNotFound(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound)
}
