// Package storetest provides in-memory stores and a simulated remote for
// tests. The remote side is a second in-memory store; FetchVia and PushVia
// move objects between the two object databases directly, so tests exercise
// the full pull and push paths without a network or an on-disk repository.
package storetest

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/require"

	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// RemoteURL is the placeholder URL linked stores point at. The simulated
// transport never dials it.
const RemoteURL = "memory://origin"

// NewStore creates an initialized in-memory store with a test author.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	return newStore(t, store.Options{})
}

// NewLinked creates an in-memory store whose fetch and push phases move
// objects to and from origin's object database.
func NewLinked(t testing.TB, origin *store.Store) *store.Store {
	t.Helper()

	s := newStore(t, store.Options{
		Fetch: FetchVia(origin),
		Push:  PushVia(origin),
	})
	require.NoError(t, s.EnsureRemote(RemoteURL))

	return s
}

func newStore(t testing.TB, opts store.Options) *store.Store {
	t.Helper()

	opts.FS = fsb.NewInMemoryFS()
	opts.Author = store.Signature{Name: "Test User", Email: "test@example.com"}

	s, err := store.Init(context.Background(), &opts)
	require.NoError(t, err, "failed to initialize test store")

	return s
}

// CommitFiles writes the given files into the working copy, stages them and
// commits. It returns the commit hash.
func CommitFiles(t testing.TB, s *store.Store, files map[string]string, msg string) string {
	t.Helper()

	raw := make(map[string][]byte, len(files))
	for path, content := range files {
		raw[path] = []byte(content)
	}

	ctx := context.Background()
	require.NoError(t, s.RestoreFiles(ctx, raw))

	info, err := s.Commit(ctx, msg, store.CommitOpts{})
	require.NoError(t, err, "failed to commit test files")

	return info.Hash
}

// FetchVia returns a FetchFunc that copies origin's branches into the local
// repository's remote-tracking references. An origin without commits yields
// the same error a real empty remote would.
func FetchVia(origin *store.Store) store.FetchFunc {
	return func(ctx context.Context, local *git.Repository, o *git.FetchOptions) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		remoteName := o.RemoteName
		if remoteName == "" {
			remoteName = store.DefaultRemoteName
		}

		originRepo := origin.Raw()
		refs, err := originRepo.References()
		if err != nil {
			return err
		}

		copied := false
		err = refs.ForEach(func(ref *plumbing.Reference) error {
			if !ref.Name().IsBranch() {
				return nil
			}

			commit, err := originRepo.CommitObject(ref.Hash())
			if err != nil {
				return err
			}
			if err := copyReachable(originRepo, local, commit); err != nil {
				return err
			}
			copied = true

			tracking := plumbing.NewRemoteReferenceName(remoteName, ref.Name().Short())
			return local.Storer.SetReference(plumbing.NewHashReference(tracking, ref.Hash()))
		})
		if err != nil {
			return err
		}

		if !copied {
			return transport.ErrEmptyRemoteRepository
		}

		return nil
	}
}

// PushVia returns a PushFunc that copies the local branch head into origin's
// object database and advances origin's branch reference. Non-fast-forward
// pushes fail the way a real remote rejects them unless Force is set.
func PushVia(origin *store.Store) store.PushFunc {
	return func(ctx context.Context, local *git.Repository, o *git.PushOptions) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		head, err := local.Head()
		if err != nil {
			return err
		}
		branchRef := plumbing.NewBranchReferenceName(head.Name().Short())

		originRepo := origin.Raw()
		commit, err := local.CommitObject(head.Hash())
		if err != nil {
			return err
		}

		if existing, refErr := originRepo.Reference(branchRef, true); refErr == nil && !o.Force {
			if existing.Hash() != head.Hash() {
				ff, ancErr := isAncestorOf(local, originRepo, existing.Hash(), commit)
				if ancErr != nil {
					return ancErr
				}
				if !ff {
					return git.ErrNonFastForwardUpdate
				}
			}
		}

		if err := copyReachable(local, originRepo, commit); err != nil {
			return err
		}
		if err := originRepo.Storer.SetReference(plumbing.NewHashReference(branchRef, head.Hash())); err != nil {
			return err
		}

		// Align origin's working copy with its advanced branch.
		if wt, wtErr := originRepo.Worktree(); wtErr == nil {
			return wt.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.HardReset})
		}

		return nil
	}
}

// isAncestorOf reports whether old is an ancestor of the pushed commit. The
// old commit is resolved in the local repository, where the push already
// copied every reachable object.
func isAncestorOf(local *git.Repository, origin *git.Repository, old plumbing.Hash, pushed *object.Commit) (bool, error) {
	oldCommit, err := local.CommitObject(old)
	if err != nil {
		// The local side never fetched this commit, so it cannot descend
		// from it.
		if _, originErr := origin.CommitObject(old); originErr == nil {
			return false, nil
		}
		return false, err
	}

	return oldCommit.IsAncestor(pushed)
}

// copyReachable copies a commit and everything reachable from it between
// object databases. Parents already present in the destination stop the
// recursion.
func copyReachable(from, to *git.Repository, commit *object.Commit) error {
	obj := from.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return err
	}
	if _, err := to.Storer.SetEncodedObject(obj); err != nil {
		return err
	}

	tree, err := commit.Tree()
	if err != nil {
		return err
	}
	if err := copyTree(from, to, tree); err != nil {
		return err
	}

	return commit.Parents().ForEach(func(parent *object.Commit) error {
		if _, err := to.CommitObject(parent.Hash); err == nil {
			return nil
		}
		return copyReachable(from, to, parent)
	})
}

// copyTree copies a tree object, its blobs and its subtrees.
func copyTree(from, to *git.Repository, tree *object.Tree) error {
	obj := from.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return err
	}
	if _, err := to.Storer.SetEncodedObject(obj); err != nil {
		return err
	}

	for _, entry := range tree.Entries {
		if entry.Mode.IsFile() {
			if err := copyBlob(from, to, entry.Hash); err != nil {
				return err
			}
			continue
		}
		if entry.Mode == filemode.Dir {
			subtree, err := from.TreeObject(entry.Hash)
			if err != nil {
				return err
			}
			if err := copyTree(from, to, subtree); err != nil {
				return err
			}
		}
	}

	return nil
}

func copyBlob(from, to *git.Repository, hash plumbing.Hash) error {
	blob, err := from.BlobObject(hash)
	if err != nil {
		return err
	}
	obj := from.Storer.NewEncodedObject()
	if err := blob.Encode(obj); err != nil {
		return err
	}
	_, err = to.Storer.SetEncodedObject(obj)
	return err
}
