package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// CommitInfo is a read-only view of a single commit.
type CommitInfo struct {
	// Hash is the full commit hash.
	Hash string

	// Message is the complete commit message.
	Message string

	// Author and Email identify who authored the commit.
	Author string
	Email  string

	// When is the author timestamp.
	When time.Time

	// Parents holds the parent commit hashes. Two parents mark a merge.
	Parents []string

	// Conventional carries the parsed Conventional Commits header when the
	// message follows that convention, nil otherwise.
	Conventional *ConventionalMeta
}

// ConventionalMeta is the structured header of a Conventional Commits
// message.
type ConventionalMeta struct {
	Type        string
	Scope       string
	Description string
	Breaking    bool
}

// Summary returns the first line of the commit message.
func (c CommitInfo) Summary() string {
	if i := strings.IndexByte(c.Message, '\n'); i >= 0 {
		return strings.TrimRight(c.Message[:i], "\r")
	}
	return c.Message
}

// IsMerge reports whether the commit has more than one parent.
func (c CommitInfo) IsMerge() bool {
	return len(c.Parents) > 1
}

// HistoryOptions configures History.
type HistoryOptions struct {
	// MaxCount caps the number of commits returned. Zero means no cap.
	MaxCount int

	// Path restricts history to commits touching the given path.
	Path string
}

// History returns commits reachable from HEAD, newest first. A working copy
// without commits yields an empty history.
func (s *Store) History(ctx context.Context, opts HistoryOptions) ([]CommitInfo, error) {
	head, err := s.repo.Head()
	if errIsReferenceNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(ErrRepository, "failed to resolve HEAD")
	}

	logOpts := &git.LogOptions{From: head.Hash()}
	if opts.Path != "" {
		logOpts.PathFilter = func(p string) bool { return p == opts.Path || strings.HasPrefix(p, opts.Path+"/") }
	}

	iter, err := s.repo.Log(logOpts)
	if err != nil {
		return nil, WrapError(ErrRepository, "failed to read history")
	}
	defer iter.Close()

	var commits []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, commitInfoFrom(c))
		if opts.MaxCount > 0 && len(commits) >= opts.MaxCount {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, WrapError(ErrRepository, "failed to iterate history")
	}

	return commits, nil
}

// commitInfo loads a single commit by hash.
func (s *Store) commitInfo(hash plumbing.Hash) (CommitInfo, error) {
	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, WrapError(ErrRepository, "failed to read commit")
	}
	return commitInfoFrom(commit), nil
}

func commitInfoFrom(c *object.Commit) CommitInfo {
	info := CommitInfo{
		Hash:    c.Hash.String(),
		Message: c.Message,
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Author.When,
	}
	for _, p := range c.ParentHashes {
		info.Parents = append(info.Parents, p.String())
	}
	info.Conventional = parseConventional(c.Message)
	return info
}

// parseConventional extracts Conventional Commits metadata from a message.
// Messages that do not follow the convention yield nil.
func parseConventional(message string) *ConventionalMeta {
	machine := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))
	res, err := machine.Parse([]byte(message))
	if err != nil {
		return nil
	}
	cc, ok := res.(*conventionalcommits.ConventionalCommit)
	if !ok {
		return nil
	}

	meta := &ConventionalMeta{
		Type:        cc.Type,
		Description: cc.Description,
		Breaking:    cc.IsBreakingChange(),
	}
	if cc.Scope != nil {
		meta.Scope = *cc.Scope
	}
	return meta
}
