package store

// MergeState classifies the result of attempting to combine the local and
// remote histories during a pull.
type MergeState int8

const (
	// UpToDate means the local branch already contains everything the
	// remote advertised (including the empty-remote case).
	UpToDate MergeState = iota

	// FastForward means the local branch was behind and has been moved
	// forward to the remote commit without creating a merge commit.
	FastForward

	// MergedClean means the histories diverged but every path merged
	// automatically; a merge commit with both parents was created.
	MergedClean

	// Conflicted means at least one path changed incompatibly on both
	// sides. The working copy is left at the local commit; resolution or
	// abort must follow.
	Conflicted

	// Aborted means a conflicted merge was abandoned and the working copy
	// reset to its pre-pull state.
	Aborted
)

// String returns a human-readable name for the merge state.
func (s MergeState) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case FastForward:
		return "fast-forward"
	case MergedClean:
		return "merged-clean"
	case Conflicted:
		return "conflicted"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ConflictEntry describes one path that changed incompatibly on both sides
// of a merge. A nil side means the path has no file on that side.
type ConflictEntry struct {
	// Path is the repository-relative file path.
	Path string

	// ObjectID is the model object the path belongs to; empty when the
	// path is outside the snapshot layout (e.g. the manifest).
	ObjectID string

	// Base is the content at the merge base; nil when the path did not
	// exist there.
	Base []byte

	// Ours is the local content; nil when locally deleted or never added.
	Ours []byte

	// Theirs is the remote content; nil when remotely deleted or never
	// added.
	Theirs []byte
}

// MergeOutcome is the result of a pull's merge analysis. Conflicted
// outcomes carry everything a resolver needs: the conflicting entries and
// the auto-merged content for all non-conflicting paths.
type MergeOutcome struct {
	// State classifies the outcome.
	State MergeState

	// Remote names the remote the merged state came from.
	Remote string

	// PreMergeHead is the local HEAD before the pull began. Reset targets
	// this commit.
	PreMergeHead string

	// BaseHead is the merge-base commit of the two heads; empty for
	// unrelated histories and for outcomes without a merge.
	BaseHead string

	// LocalHead is the local commit that took part in the merge analysis.
	LocalHead string

	// RemoteHead is the remote commit that took part in the merge
	// analysis; empty for the empty-remote case.
	RemoteHead string

	// MergeCommit is the commit created by a fast-forward, clean merge or
	// applied resolution; empty otherwise.
	MergeCommit string

	// Repaired lists element files copied back into the merged tree
	// because a surviving relation still referenced them: the endpoint was
	// deleted on one side while the other side kept or modified the
	// relation. Set on merged-clean and resolved outcomes.
	Repaired []string

	// Conflicts lists the incompatibly changed paths; only set when State
	// is Conflicted.
	Conflicts []ConflictEntry

	// MergedFiles is the complete post-merge file set for the
	// non-conflicting paths, keyed by repository-relative path. Only set
	// when State is Conflicted; a resolver combines it with decisions for
	// the conflicting paths to build the final tree.
	MergedFiles map[string][]byte
}

// ConflictPaths returns the conflicting paths in stable order.
func (o *MergeOutcome) ConflictPaths() []string {
	out := make([]string, 0, len(o.Conflicts))
	for _, c := range o.Conflicts {
		out = append(out, c.Path)
	}
	return out
}
