// This file contains synchronization operations (fetch, pull, push) and
// their error mapping. Pull performs the fetch plus a merge analysis; the
// no-network half is exposed as MergeFetched.
package store

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"

	"github.com/architectureofthings/archi-modelrepository-plugin/store/internal/auth"
)

// PullOptions configures a pull.
type PullOptions struct {
	// Remote names the remote to pull from. Defaults to DefaultRemoteName.
	Remote string

	// Credentials authenticate this pull. They take precedence over the
	// store's AuthProvider. Nil means unauthenticated or provider-supplied.
	Credentials *Credentials

	// Proxy routes the network phase through a proxy when set.
	Proxy *transport.ProxyOptions
}

// PushOptions configures a push.
type PushOptions struct {
	// Remote names the remote to push to. Defaults to DefaultRemoteName.
	Remote string

	// Force overwrites remote history. Off by default.
	Force bool

	// Credentials authenticate this push, with the same precedence as in
	// PullOptions.
	Credentials *Credentials

	// Proxy routes the network phase through a proxy when set.
	Proxy *transport.ProxyOptions
}

// Pull fetches the remote and merges its current branch state into the
// working copy, returning a MergeOutcome describing what happened. An empty
// or uninitialized remote is not an error; it yields an up-to-date outcome
// ("nothing to merge yet"). The network phase honors ctx cancellation.
func (s *Store) Pull(ctx context.Context, opts PullOptions) (MergeOutcome, error) {
	remote := opts.Remote
	if remote == "" {
		remote = DefaultRemoteName
	}

	outcome := MergeOutcome{State: UpToDate, Remote: remote}
	if head, err := s.Head(); err == nil {
		outcome.PreMergeHead = head
		outcome.LocalHead = head
	} else if !errors.Is(err, ErrUnbornHead) {
		return outcome, err
	}

	authMethod, err := s.resolveAuth(remote, opts.Credentials)
	if err != nil {
		return outcome, err
	}

	fetchErr := s.fetch(ctx, remote, authMethod, opts.Proxy)
	empty, fetchErr := classifyFetchError(fetchErr)
	if fetchErr != nil {
		return outcome, fetchErr
	}
	if empty {
		s.log.Debug("remote is empty, nothing to merge", zap.String("remote", remote))
		return outcome, nil
	}

	return s.MergeFetched(ctx, remote)
}

// MergeFetched merges the already-fetched remote-tracking state of the
// current branch into the working copy, without touching the network. Pull
// calls it after its fetch phase; callers can use it directly to reconcile
// offline.
func (s *Store) MergeFetched(ctx context.Context, remote string) (MergeOutcome, error) {
	if remote == "" {
		remote = DefaultRemoteName
	}

	outcome := MergeOutcome{State: UpToDate, Remote: remote}

	branch, localHash, unborn, err := s.currentBranchState()
	if err != nil {
		return outcome, err
	}
	if !unborn {
		outcome.PreMergeHead = localHash.String()
		outcome.LocalHead = localHash.String()
	}

	remoteRef, err := s.repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if errIsReferenceNotFound(err) {
		// The remote does not advertise our branch; nothing to merge yet.
		return outcome, nil
	}
	if err != nil {
		return outcome, WrapError(ErrRepository, "failed to read remote-tracking reference")
	}

	if unborn {
		// First content for an empty working copy: adopt the remote state.
		if err := s.adoptRemoteHead(branch, remoteRef.Hash()); err != nil {
			return outcome, err
		}
		outcome.State = FastForward
		outcome.RemoteHead = remoteRef.Hash().String()
		outcome.MergeCommit = remoteRef.Hash().String()
		return outcome, nil
	}

	return s.mergeAnalysis(ctx, localHash, remoteRef.Hash(), remote)
}

// Fetch updates remote-tracking references from the remote without merging.
// An empty remote is reported as ok=false with a nil error.
func (s *Store) Fetch(ctx context.Context, opts PullOptions) (bool, error) {
	remote := opts.Remote
	if remote == "" {
		remote = DefaultRemoteName
	}

	authMethod, err := s.resolveAuth(remote, opts.Credentials)
	if err != nil {
		return false, err
	}

	empty, err := classifyFetchError(s.fetch(ctx, remote, authMethod, opts.Proxy))
	if err != nil {
		return false, err
	}

	return !empty, nil
}

// Push publishes the current branch to the remote.
// Returns ErrNotFastForward when the push would overwrite remote history
// and Force is not set. Pushing an already-current remote is a no-op.
func (s *Store) Push(ctx context.Context, opts PushOptions) error {
	remote := opts.Remote
	if remote == "" {
		remote = DefaultRemoteName
	}

	authMethod, err := s.resolveAuth(remote, opts.Credentials)
	if err != nil {
		return err
	}

	pushOpts := &git.PushOptions{
		RemoteName: remote,
		Force:      opts.Force,
	}
	if authMethod != nil {
		pushOpts.Auth = authMethod
	}
	if opts.Proxy != nil {
		pushOpts.ProxyOptions = *opts.Proxy
	}

	if s.options.Push != nil {
		err = s.options.Push(ctx, s.repo, pushOpts)
	} else {
		err = s.repo.PushContext(ctx, pushOpts)
	}
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return ErrNotFastForward
	case errors.Is(err, git.ErrRemoteNotFound):
		return WrapError(ErrNoRemote, "push")
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return WrapError(ErrAuthRequired, "push")
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return WrapError(ErrAuthFailed, "push")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return WrapErrorf(ErrNetwork, "push failed: %v", err)
	}
}

// RemoteURL returns the URL of the configured default remote.
func (s *Store) RemoteURL() (string, error) {
	remote, err := s.repo.Remote(DefaultRemoteName)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return "", ErrNoRemote
		}
		return "", WrapError(ErrRepository, "failed to read remote configuration")
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", ErrNoRemote
	}

	return urls[0], nil
}

// EnsureRemote links the working copy to the given URL under the default
// remote name, creating or rewriting the remote configuration.
func (s *Store) EnsureRemote(url string) error {
	if url == "" {
		return WrapError(ErrInvalidOptions, "remote URL cannot be empty")
	}

	cfg := &gitconfig.RemoteConfig{Name: DefaultRemoteName, URLs: []string{url}}

	if _, err := s.repo.Remote(DefaultRemoteName); err == nil {
		if err := s.repo.DeleteRemote(DefaultRemoteName); err != nil {
			return WrapError(ErrRepository, "failed to replace remote")
		}
	}

	if _, err := s.repo.CreateRemote(cfg); err != nil {
		return WrapError(ErrRepository, "failed to configure remote")
	}

	return nil
}

// fetch runs the network phase through the configured seam.
func (s *Store) fetch(ctx context.Context, remote string, authMethod transport.AuthMethod, proxy *transport.ProxyOptions) error {
	fo := &git.FetchOptions{RemoteName: remote}
	if authMethod != nil {
		fo.Auth = authMethod
	}
	if proxy != nil {
		fo.ProxyOptions = *proxy
	}

	if s.options.Fetch != nil {
		return s.options.Fetch(ctx, s.repo, fo)
	}

	return s.repo.FetchContext(ctx, fo)
}

// resolveAuth picks the auth method for an operation: per-call credentials
// first, then the store's provider.
func (s *Store) resolveAuth(remote string, creds *Credentials) (transport.AuthMethod, error) {
	if creds != nil {
		return auth.Basic(creds.Username, creds.Password), nil
	}

	if s.options.Auth == nil {
		return nil, nil
	}

	url, err := s.remoteURLFor(remote)
	if err != nil {
		// A missing remote surfaces later, from the operation itself.
		return nil, nil
	}

	method, err := s.options.Auth.Method(url)
	if err != nil {
		return nil, WrapError(ErrAuthRequired, "failed to get authentication method")
	}

	return method, nil
}

// remoteURLFor resolves the URL of a named remote.
func (s *Store) remoteURLFor(name string) (string, error) {
	remote, err := s.repo.Remote(name)
	if err != nil {
		return "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", ErrNoRemote
	}
	return urls[0], nil
}

// currentBranchState resolves the current branch name and head commit.
// unborn is true when the branch exists symbolically but has no commits.
func (s *Store) currentBranchState() (string, plumbing.Hash, bool, error) {
	head, err := s.repo.Head()
	if err == nil {
		if !head.Name().IsBranch() {
			return "", plumbing.ZeroHash, false, WrapError(ErrRepository, "HEAD is detached")
		}
		return head.Name().Short(), head.Hash(), false, nil
	}

	if !errIsReferenceNotFound(err) {
		return "", plumbing.ZeroHash, false, WrapError(ErrRepository, "failed to resolve HEAD")
	}

	// Unborn HEAD: read the branch name from the symbolic reference.
	ref, err := s.repo.Storer.Reference(plumbing.HEAD)
	if err != nil || ref.Type() != plumbing.SymbolicReference {
		return "", plumbing.ZeroHash, false, WrapError(ErrRepository, "failed to read HEAD symref")
	}

	return ref.Target().Short(), plumbing.ZeroHash, true, nil
}

// adoptRemoteHead points an unborn branch at the remote head and checks the
// tree out.
func (s *Store) adoptRemoteHead(branch string, to plumbing.Hash) error {
	branchRef := plumbing.NewBranchReferenceName(branch)
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, to)); err != nil {
		return WrapError(ErrRepository, "failed to create branch reference")
	}

	if err := s.worktree.Reset(&git.ResetOptions{Commit: to, Mode: git.HardReset}); err != nil {
		return WrapError(ErrRepository, "failed to check out remote state")
	}

	return nil
}

// classifyFetchError maps go-git fetch errors into the store's taxonomy.
// The empty result flags an empty or uninitialized remote, which callers
// treat as "nothing to merge yet" rather than a failure.
func classifyFetchError(err error) (empty bool, _ error) {
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return false, nil
	case isEmptyRemoteErr(err):
		return true, nil
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return false, WrapError(ErrAuthRequired, "remote requires authentication")
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return false, WrapError(ErrAuthFailed, "remote rejected credentials")
	case errors.Is(err, git.ErrRemoteNotFound):
		return false, WrapError(ErrNoRemote, "fetch")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false, err
	default:
		return false, WrapErrorf(ErrNetwork, "fetch failed: %v", err)
	}
}

// isEmptyRemoteErr reports whether err means the remote has no advertised
// refs: a freshly created, never-pushed repository.
func isEmptyRemoteErr(err error) bool {
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return true
	}
	var noMatch git.NoMatchingRefSpecError
	return errors.As(err, &noMatch)
}

// mapTransportError converts transport-level failures into the store's
// sentinel taxonomy, preserving errors.Is checks.
func mapTransportError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return WrapError(ErrAuthRequired, msg)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return WrapError(ErrAuthFailed, msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return WrapErrorf(ErrNetwork, "%s: %v", msg, err)
	}
}
