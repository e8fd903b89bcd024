// Package store manages the versioned working copy that backs a model
// repository: a git repository whose tree holds one file per model object.
//
// The package wraps go-git behind a task-oriented facade shaped around the
// model synchronization workflow rather than general git plumbing. All
// operations work with both on-disk and in-memory repositories through the
// project's filesystem abstraction.
//
// # Basic Usage
//
// Initialize or open a working copy:
//
//	import (
//	    "context"
//	    fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
//	    "github.com/architectureofthings/archi-modelrepository-plugin/store"
//	)
//
//	// Create filesystem (can be OS-backed or in-memory)
//	fs := fsb.NewOSFS("/path/to/working/copy")
//
//	s, err := store.Open(context.Background(), &store.Options{
//	    FS: fs,
//	    Author: store.Signature{Name: "Jane Doe", Email: "jane@example.com"},
//	})
//
//	// Or initialize a new one
//	s, err := store.Init(context.Background(), &store.Options{FS: fs, Author: author})
//
//	// Or clone an existing remote (an empty remote downgrades to Init)
//	s, err := store.Clone(ctx, "https://github.com/example/model.git", &store.Options{FS: fs, Author: author})
//
// # Snapshots and Commits
//
// The model side of the system hands the store flat snapshots, maps from
// repository-relative paths to file contents:
//
//	err = s.ExportSnapshot(ctx, snap)
//
//	dirty, err := s.HasUncommittedChanges()
//	if dirty {
//	    info, err := s.Commit(ctx, "Export model", store.CommitOpts{})
//	}
//
// # Synchronization
//
// Pull fetches the remote and merges, reporting what happened instead of
// failing on divergence:
//
//	outcome, err := s.Pull(ctx, store.PullOptions{
//	    Credentials: &store.Credentials{Username: "jane", Password: token},
//	})
//
//	switch outcome.State {
//	case store.UpToDate:
//	    // nothing to do
//	case store.FastForward, store.MergedClean:
//	    // reload the model from the working copy
//	case store.Conflicted:
//	    // outcome.Conflicts carries base/ours/theirs per path
//	}
//
// A Conflicted outcome leaves the working copy exactly as it was before the
// pull. Resolution either commits a merged state with CommitMerge or walks
// away with ResetToPreMergeState.
//
// # Authentication
//
// Per-operation Credentials take precedence. A store-wide AuthProvider can
// answer credentials by URL instead:
//
//	opts := &store.Options{
//	    FS:   fs,
//	    Auth: store.NewHTTPSAuthProvider("jane", token, "*.github.com"),
//	}
//
// # Testing
//
// The Fetch and Push fields of Options replace the network phase. The
// storetest subpackage uses them to link two in-memory stores so the full
// pull, merge and push paths run without a network:
//
//	origin := storetest.NewStore(t)
//	local := storetest.NewLinked(t, origin)
//
// # Error Handling
//
// The package provides sentinel errors for conditions callers branch on:
//
//	_, err := s.Pull(ctx, store.PullOptions{})
//	if errors.Is(err, store.ErrAuthRequired) {
//	    // prompt for credentials
//	}
//
// # Thread Safety
//
// A Store is NOT safe for concurrent writes. Read operations (History,
// SnapshotAt, CurrentBranch, Head) can run concurrently; mutating
// operations must be serialized by the caller. The refresh package
// enforces one synchronization at a time per working copy.
package store
