// This file contains working-copy operations: exporting snapshots, staging,
// dirty checks, and commit creation.
package store

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/architectureofthings/archi-modelrepository-plugin/snapshot"
)

// CommitOpts configures commit creation behavior.
type CommitOpts struct {
	// AllowEmpty allows creating commits with no changes.
	// By default, empty commits are not allowed.
	AllowEmpty bool

	// Amend replaces the tip of the current branch with this commit
	// rather than creating a new one.
	Amend bool
}

// ExportSnapshot writes a model snapshot into the working copy and stages
// every resulting addition, modification and deletion. Exporting the same
// snapshot twice is idempotent: the second export produces a byte-identical
// working tree and leaves nothing staged.
func (s *Store) ExportSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	workFS, err := s.WorkFS()
	if err != nil {
		return err
	}

	if err := snapshot.Write(workFS, snap); err != nil {
		return WrapError(err, "failed to export snapshot")
	}

	if err := s.stageAll(); err != nil {
		return err
	}

	s.log.Debug("exported snapshot", zap.Int("files", len(snap)))

	return nil
}

// HasUncommittedChanges reports whether the working copy (worktree or index)
// differs from the last commit.
func (s *Store) HasUncommittedChanges(ctx context.Context) (bool, error) {
	status, err := s.worktree.Status()
	if err != nil {
		return false, WrapError(ErrRepository, "failed to get worktree status")
	}

	return !status.IsClean(), nil
}

// Commit creates a new commit from the staged changes and returns it.
// Returns ErrEmptyCommit when nothing is staged unless opts.AllowEmpty is
// set.
func (s *Store) Commit(ctx context.Context, msg string, opts CommitOpts) (CommitInfo, error) {
	if msg == "" {
		return CommitInfo{}, WrapError(ErrInvalidOptions, "commit message cannot be empty")
	}

	sig, err := s.signature()
	if err != nil {
		return CommitInfo{}, err
	}

	status, err := s.worktree.Status()
	if err != nil {
		return CommitInfo{}, WrapError(ErrRepository, "failed to get worktree status")
	}

	stagedCount := 0
	for _, fileStatus := range status {
		if fileStatus.Staging != git.Untracked && fileStatus.Staging != git.Unmodified {
			stagedCount++
		}
	}

	if stagedCount == 0 && !opts.AllowEmpty {
		return CommitInfo{}, WrapError(ErrEmptyCommit, "no changes staged for commit")
	}

	who := &object.Signature{Name: sig.Name, Email: sig.Email, When: sig.When}
	hash, err := s.worktree.Commit(msg, &git.CommitOptions{
		Author:            who,
		Committer:         who,
		AllowEmptyCommits: opts.AllowEmpty,
		Amend:             opts.Amend,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return CommitInfo{}, ErrEmptyCommit
		}
		return CommitInfo{}, WrapError(err, "failed to create commit")
	}

	s.log.Debug("created commit", zap.String("hash", hash.String()), zap.Int("staged", stagedCount))

	return s.commitInfo(hash)
}

// Head returns the commit hash the working copy is currently at.
// Returns ErrUnbornHead when the repository has no commits yet.
func (s *Store) Head() (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", ErrUnbornHead
		}
		return "", WrapError(ErrRepository, "failed to resolve HEAD")
	}
	return head.Hash().String(), nil
}

// stageAll stages every worktree change, including deletions and untracked
// files, matching "git add -A".
func (s *Store) stageAll() error {
	if err := s.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return WrapError(err, "failed to stage changes")
	}
	return nil
}

// RestoreFiles writes the given files into the working copy and stages them.
// Existing content at those paths is overwritten; nothing else is touched.
func (s *Store) RestoreFiles(ctx context.Context, files map[string][]byte) error {
	if len(files) == 0 {
		return nil
	}

	workFS, err := s.WorkFS()
	if err != nil {
		return err
	}

	for p, data := range files {
		if dir := path.Dir(p); dir != "." {
			if err := workFS.MkdirAll(dir, 0o755); err != nil {
				return WrapErrorf(err, "mkdir %q", dir)
			}
		}
		if err := workFS.WriteFile(p, data, 0o644); err != nil {
			return WrapErrorf(err, "restore %q", p)
		}
	}

	return s.stageAll()
}

// applyFiles makes the working copy contain exactly the given file set
// (version-control metadata aside) and stages the result. It is used to
// materialize merged trees.
func (s *Store) applyFiles(files map[string][]byte) error {
	workFS, err := s.WorkFS()
	if err != nil {
		return err
	}

	// Remove worktree files that are not part of the target set.
	var stale []string
	err = workFS.Walk(".", func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel := strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
		if info.IsDir() {
			if rel == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(rel, ".git/") {
			return nil
		}
		if _, ok := files[rel]; !ok {
			stale = append(stale, p)
		}
		return nil
	})
	if err != nil {
		return WrapError(err, "failed to scan working copy")
	}

	for _, p := range stale {
		if err := workFS.Remove(p); err != nil {
			return WrapErrorf(err, "remove %q", p)
		}
	}

	for p, data := range files {
		if dir := path.Dir(p); dir != "." {
			if err := workFS.MkdirAll(dir, 0o755); err != nil {
				return WrapErrorf(err, "mkdir %q", dir)
			}
		}
		if err := workFS.WriteFile(p, data, 0o644); err != nil {
			return WrapErrorf(err, "write %q", p)
		}
	}

	return s.stageAll()
}
