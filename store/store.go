// Package store adapts a git repository into the versioned store backing a
// model working copy. It exposes task-oriented operations for the
// synchronization workflow while operating exclusively through the native
// filesystem abstraction.
package store

import (
	"context"
	"fmt"
	"time"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"go.uber.org/zap"

	"github.com/architectureofthings/archi-modelrepository-plugin/store/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the default remote name used for operations.
	DefaultRemoteName = "origin"

	// DefaultBranch is the branch created for new repositories.
	DefaultBranch = "main"
)

// AuthProvider resolves authentication methods for remote operations.
// Implementations should handle different URL schemes and credential sources.
type AuthProvider interface {
	// Method returns the appropriate transport.AuthMethod for the given
	// remote URL. Returns nil if no authentication is needed/available for
	// this URL. Returns an error if authentication cannot be resolved.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// FetchFunc performs the network phase of Pull and Fetch against the given
// repository. It exists as a seam so embedders and tests can substitute the
// transport; nil selects go-git's own fetch.
type FetchFunc func(ctx context.Context, repo *git.Repository, o *git.FetchOptions) error

// PushFunc performs the network phase of Push against the given repository.
// It exists for the same reason as FetchFunc.
type PushFunc func(ctx context.Context, repo *git.Repository, o *git.PushOptions) error

// Credentials is a username/password (or token) pair obtained from the
// credential collaborator for a single remote operation.
type Credentials struct {
	Username string
	Password string
}

// Signature identifies the author/committer of commits created by the store.
type Signature struct {
	// Name is the author's or committer's name.
	Name string

	// Email is the author's or committer's email address.
	Email string

	// When is the timestamp for the signature. Zero means "now".
	When time.Time
}

// Options configures repository discovery/creation and performance.
type Options struct {
	// FS is the REQUIRED native filesystem root (OS or in-memory).
	// All repository state lives within this filesystem.
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to "." (current directory in FS).
	Workdir string

	// Branch is the branch created when initializing a new repository.
	// Defaults to DefaultBranch.
	Branch string

	// Author identifies commits created through this store. Required before
	// the first commit-producing operation.
	Author Signature

	// StorerCacheSize sets the LRU objects cache entries.
	// Higher values improve performance but use more memory.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int

	// Auth is an optional provider that resolves per-URL AuthMethod.
	// Per-operation credentials take precedence over it.
	Auth AuthProvider

	// Fetch overrides the network phase of remote operations. Nil selects
	// go-git's fetch over the remote's configured transport.
	Fetch FetchFunc

	// Push overrides the network phase of Push, with the same default.
	Push PushFunc

	// Logger receives operational logging. Nil means no logging.
	Logger *zap.Logger
}

// Validate checks that the Options are properly configured.
// It returns an error if required fields are missing or invalid.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidOptions, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidOptions, "StorerCacheSize cannot be negative")
	}

	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.Branch == "" {
		o.Branch = DefaultBranch
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}

	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Store is a model working copy backed by a git repository. It provides the
// high-level operations the synchronization workflow needs: exporting
// snapshots, committing, pulling with merge analysis, resetting, and reading
// snapshots out of history.
//
// A Store is not safe for concurrent writes; callers serialize
// commit-producing operations per working copy.
type Store struct {
	repo     *git.Repository
	worktree *git.Worktree
	fs       fs.Filesystem
	options  Options
	log      *zap.Logger
}

// openStorage prepares the billy-backed storage and worktree filesystem for
// a working copy rooted at opts.Workdir.
func openStorage(opts *Options) (*filesystem.Storage, gobilly.Filesystem, error) {
	billyFS, err := fsbridge.ToBillyFilesystem(opts.FS)
	if err != nil {
		return nil, nil, fmt.Errorf("filesystem conversion failed: %w", err)
	}

	scopedFS, err := billyFS.Chroot(opts.Workdir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to chroot to workdir %q: %w", opts.Workdir, err)
	}

	// Repository metadata lives in the .git subdirectory; the worktree is
	// the workdir itself. Model working copies are never bare.
	dotGitFS, err := scopedFS.Chroot(".git")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access .git directory: %w", err)
	}

	return fsbridge.NewStorage(dotGitFS, opts.StorerCacheSize), scopedFS, nil
}

// newStore assembles a Store around an opened go-git repository.
func newStore(repo *git.Repository, opts *Options) (*Store, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree")
	}

	return &Store{
		repo:     repo,
		worktree: worktree,
		fs:       opts.FS,
		options:  *opts,
		log:      opts.Logger,
	}, nil
}

// Init creates a new, empty working copy at the specified location and
// points HEAD at the configured branch.
func Init(ctx context.Context, opts *Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	storage, worktreeFS, err := openStorage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(storage, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	// Point the unborn HEAD at the configured branch so the first commit
	// lands there.
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(opts.Branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, WrapError(err, "failed to set initial branch")
	}

	s, err := newStore(repo, opts)
	if err != nil {
		return nil, err
	}

	s.log.Debug("initialized working copy",
		zap.String("workdir", opts.Workdir),
		zap.String("branch", opts.Branch))

	return s, nil
}

// Open discovers and opens an existing working copy.
// Both the .git directory and the worktree must be present.
func Open(ctx context.Context, opts *Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	storage, worktreeFS, err := openStorage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(storage, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to open repository")
	}

	return newStore(repo, opts)
}

// Clone materializes a remote repository into a new working copy and links
// it to the remote under DefaultRemoteName. Cloning an empty remote is not
// an error: the result is an initialized working copy on the configured
// branch with the remote already linked.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Store, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidOptions, "remote URL cannot be empty")
	}

	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	storage, worktreeFS, err := openStorage(opts)
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL: remoteURL,
	}

	if opts.Auth != nil {
		authMethod, authErr := opts.Auth.Method(remoteURL)
		if authErr != nil {
			return nil, WrapError(ErrAuthRequired, "failed to get authentication method")
		}
		cloneOpts.Auth = authMethod
	}

	repo, err := git.CloneContext(ctx, storage, worktreeFS, cloneOpts)
	if err != nil {
		if isEmptyRemoteErr(err) {
			// Nothing to merge yet. Start from an empty working copy that
			// already knows its remote.
			s, initErr := Init(ctx, opts)
			if initErr != nil {
				return nil, initErr
			}
			if linkErr := s.EnsureRemote(remoteURL); linkErr != nil {
				return nil, linkErr
			}
			return s, nil
		}
		return nil, mapTransportError(err, "failed to clone repository")
	}

	s, err := newStore(repo, opts)
	if err != nil {
		return nil, err
	}

	s.log.Debug("cloned working copy", zap.String("url", remoteURL))

	return s, nil
}

// Raw exposes the underlying go-git repository for plumbing the facade does
// not cover. Mutating state through it bypasses the store's guarantees.
func (s *Store) Raw() *git.Repository {
	return s.repo
}

// WorkFS returns the working copy's filesystem, scoped to the worktree root.
func (s *Store) WorkFS() (fs.Filesystem, error) {
	billyFS, err := fsbridge.ToBillyFilesystem(s.fs)
	if err != nil {
		return nil, WrapError(err, "failed to convert filesystem")
	}

	scoped, err := billyFS.Chroot(s.options.Workdir)
	if err != nil {
		return nil, WrapErrorf(err, "failed to chroot to workdir %q", s.options.Workdir)
	}

	return fsb.NewFS(scoped), nil
}

// signature returns the commit signature, filling in the timestamp.
func (s *Store) signature() (Signature, error) {
	sig := s.options.Author
	if sig.Name == "" || sig.Email == "" {
		return Signature{}, WrapError(ErrInvalidOptions, "author name and email are required")
	}
	if sig.When.IsZero() {
		sig.When = time.Now()
	}
	return sig, nil
}
