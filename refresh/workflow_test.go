package refresh_test

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architectureofthings/archi-modelrepository-plugin/events"
	"github.com/architectureofthings/archi-modelrepository-plugin/merge"
	"github.com/architectureofthings/archi-modelrepository-plugin/model"
	"github.com/architectureofthings/archi-modelrepository-plugin/refresh"
	"github.com/architectureofthings/archi-modelrepository-plugin/snapshot"
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
	"github.com/architectureofthings/archi-modelrepository-plugin/store/storetest"
)

// buildModel creates a small model: two elements joined by one relation.
func buildModel(t *testing.T) *model.Model {
	t.Helper()

	m := model.New("Ordering")
	require.NoError(t, m.AddElement(&model.Object{ID: "elem-x", Kind: "BusinessActor", Name: "Customer"}))
	require.NoError(t, m.AddElement(&model.Object{ID: "elem-y", Kind: "BusinessRole", Name: "Buyer"}))
	require.NoError(t, m.AddRelation(&model.Relation{
		Object:   model.Object{ID: "rel-1", Kind: "Assignment"},
		SourceID: "elem-x",
		TargetID: "elem-y",
	}))

	return m
}

func newWorkflow(t *testing.T, s *store.Store, opts refresh.Options) *refresh.Workflow {
	t.Helper()

	opts.Store = s
	w, err := refresh.New(opts)
	require.NoError(t, err)

	return w
}

// openModel loads the model from the store's current head commit.
func openModel(t *testing.T, s *store.Store) *model.Model {
	t.Helper()

	snap, err := s.SnapshotAt(context.Background(), "HEAD")
	require.NoError(t, err)
	m, err := snapshot.ToModel(snap)
	require.NoError(t, err)

	return m
}

// cloneFrom creates a linked store, pulls origin's state into it and loads
// the model, the way a fresh checkout starts.
func cloneFrom(t *testing.T, origin *store.Store) (*store.Store, *model.Model) {
	t.Helper()

	s := storetest.NewLinked(t, origin)
	_, err := s.Pull(context.Background(), store.PullOptions{})
	require.NoError(t, err)

	return s, openModel(t, s)
}

// runAndPublish refreshes and publishes, requiring both to complete.
func runAndPublish(t *testing.T, w *refresh.Workflow, m *model.Model) {
	t.Helper()
	ctx := context.Background()

	res, err := w.Run(ctx, m)
	require.NoError(t, err)
	require.True(t, res.Completed)

	ok, err := w.Publish(ctx, m)
	require.NoError(t, err)
	require.True(t, ok)
}

// cloneFromWorkflow clones origin into a fresh working copy and hands a
// workflow over it, plus the loaded model, to fn. It models the second user.
func cloneFromWorkflow(t *testing.T, origin *store.Store, fn func(*refresh.Workflow, *model.Model)) {
	t.Helper()

	s, m := cloneFrom(t, origin)
	w := newWorkflow(t, s, refresh.Options{})
	fn(w, m)
}

// newCountingLinked builds a linked store that counts fetch attempts, for
// asserting that aborted workflows never reach the network.
func newCountingLinked(t *testing.T, origin *store.Store) (*store.Store, *int) {
	t.Helper()

	fetches := 0
	inner := storetest.FetchVia(origin)
	opts := store.Options{
		FS:     fsb.NewInMemoryFS(),
		Author: store.Signature{Name: "Test User", Email: "test@example.com"},
		Fetch: func(ctx context.Context, repo *git.Repository, o *git.FetchOptions) error {
			fetches++
			return inner(ctx, repo, o)
		},
		Push: storetest.PushVia(origin),
	}

	s, err := store.Init(context.Background(), &opts)
	require.NoError(t, err)
	require.NoError(t, s.EnsureRemote(storetest.RemoteURL))

	return s, &fetches
}

// eventRecorder captures the order of events published on a bus. Dispatch is
// synchronous, so no locking is needed.
type eventRecorder struct {
	types []events.Type
}

func recordEvents(bus *events.Bus) *eventRecorder {
	rec := &eventRecorder{}
	for _, et := range []events.Type{
		events.RefreshStarted,
		events.RefreshFinished,
		events.HistoryChanged,
		events.ModelReloaded,
	} {
		bus.Subscribe(et, func(e events.Event) { rec.types = append(rec.types, e.Type) })
	}
	return rec
}

// scriptedPersister reports a fixed dirty state and answers Save with a
// canned decision, counting how often it was asked.
type scriptedPersister struct {
	dirty bool
	allow bool
	saves int
}

func (p *scriptedPersister) IsDirty(*model.Model) bool { return p.dirty }

func (p *scriptedPersister) Save(context.Context, *model.Model) (bool, error) {
	p.saves++
	return p.allow, nil
}

// decliningPrompt refuses every commit.
type decliningPrompt struct {
	asked int
}

func (p *decliningPrompt) ConfirmCommit(context.Context, *model.Model) (string, bool, error) {
	p.asked++
	return "", false, nil
}

func TestNewRequiresStore(t *testing.T) {
	_, err := refresh.New(refresh.Options{})
	assert.ErrorIs(t, err, store.ErrInvalidOptions)
}

func TestRunRequiresModel(t *testing.T) {
	w := newWorkflow(t, storetest.NewStore(t), refresh.Options{})

	_, err := w.Run(context.Background(), nil)
	assert.ErrorIs(t, err, store.ErrInvalidOptions)

	ok, err := w.Publish(context.Background(), nil)
	assert.ErrorIs(t, err, store.ErrInvalidOptions)
	assert.False(t, ok)
}

func TestRunFirstRefreshAgainstEmptyRemote(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local := storetest.NewLinked(t, origin)
	w := newWorkflow(t, local, refresh.Options{Workdir: "alice"})
	rec := recordEvents(w.Bus())

	m := buildModel(t)
	require.True(t, m.Dirty(), "a freshly built model starts with unsaved edits")

	res, err := w.Run(ctx, m)
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Same(t, m, res.Model, "no remote changes, so no reload")
	assert.Equal(t, store.UpToDate, res.Outcome.State)
	assert.True(t, res.Restored.Empty())
	assert.False(t, m.Dirty(), "the workflow saves before exporting")

	history, err := local.History(ctx, store.HistoryOptions{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Export model changes", history[0].Summary())

	dirty, err := local.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NotEmpty(t, rec.types)
	assert.Equal(t, events.RefreshStarted, rec.types[0])
	assert.Equal(t, events.RefreshFinished, rec.types[len(rec.types)-1])
	assert.Contains(t, rec.types, events.HistoryChanged)
}

func TestRunSecondRefreshMakesNoNewCommit(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local := storetest.NewLinked(t, origin)
	w := newWorkflow(t, local, refresh.Options{})
	m := buildModel(t)

	_, err := w.Run(ctx, m)
	require.NoError(t, err)

	res, err := w.Run(ctx, m)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, store.UpToDate, res.Outcome.State)

	history, err := local.History(ctx, store.HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, history, 1, "an unchanged model must not produce a second commit")
}

func TestRunFastForwardsAndReloadsRemoteChanges(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	// A second user renames an element and publishes.
	cloneFromWorkflow(t, origin, func(wb *refresh.Workflow, mb *model.Model) {
		mb.Element("elem-x").Name = "Customer (renamed)"
		mb.Touch()
		runAndPublish(t, wb, mb)
	})

	rec := recordEvents(wa.Bus())
	res, err := wa.Run(ctx, ma)
	require.NoError(t, err)

	require.True(t, res.Completed)
	assert.Equal(t, store.FastForward, res.Outcome.State)
	require.NotSame(t, ma, res.Model, "remote changes must produce a reloaded model")
	require.NotNil(t, res.Model.Element("elem-x"))
	assert.Equal(t, "Customer (renamed)", res.Model.Element("elem-x").Name)
	assert.True(t, res.Restored.Empty())
	assert.Contains(t, rec.types, events.ModelReloaded)

	history, err := alice.History(ctx, store.HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, history, 2, "a fast-forward adds no merge or restore commit")
}

func TestRunDeclinedSaveAbortsBeforeAnySideEffect(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local, fetches := newCountingLinked(t, origin)

	persister := &scriptedPersister{dirty: true}
	w := newWorkflow(t, local, refresh.Options{Persister: persister})

	res, err := w.Run(ctx, buildModel(t))
	require.NoError(t, err, "a declined save is not an error")

	assert.False(t, res.Completed)
	assert.Equal(t, 1, persister.saves)
	assert.Equal(t, 0, *fetches, "no network call before the model is saved")

	_, err = local.Head()
	assert.ErrorIs(t, err, store.ErrUnbornHead, "nothing must have been committed")

	workFS, err := local.WorkFS()
	require.NoError(t, err)
	exported, err := workFS.Exists(snapshot.ManifestPath)
	require.NoError(t, err)
	assert.False(t, exported, "nothing must have been exported")
}

func TestRunDeclinedCommitStopsBeforePull(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local, fetches := newCountingLinked(t, origin)

	prompt := &decliningPrompt{}
	w := newWorkflow(t, local, refresh.Options{CommitPrompt: prompt})

	res, err := w.Run(ctx, buildModel(t))
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.Equal(t, 1, prompt.asked)
	assert.Equal(t, 0, *fetches)

	_, err = local.Head()
	assert.ErrorIs(t, err, store.ErrUnbornHead)

	// The export itself happens before the commit checkpoint.
	workFS, err := local.WorkFS()
	require.NoError(t, err)
	exported, err := workFS.Exists(snapshot.ManifestPath)
	require.NoError(t, err)
	assert.True(t, exported)
}

func TestRunCancelledCredentialsAbortSilently(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local, fetches := newCountingLinked(t, origin)
	require.NoError(t, local.EnsureRemote("https://git.example.com/shared/model.git"))

	m := buildModel(t)

	// The default credentials source answers with none.
	w := newWorkflow(t, local, refresh.Options{})
	res, err := w.Run(ctx, m)
	require.NoError(t, err, "a cancelled credentials prompt is not an error")

	assert.False(t, res.Completed)
	assert.Equal(t, 0, *fetches, "no fetch without credentials")

	// The local commit made before the checkpoint remains.
	history, err := local.History(ctx, store.HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// With credentials supplied the same refresh goes through.
	w = newWorkflow(t, local, refresh.Options{
		Credentials: refresh.StaticCredentials{Username: "user", Password: "token"},
	})
	res, err = w.Run(ctx, m)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, *fetches)
}

func TestRunDeclinedConflictResolutionResetsCleanly(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	cloneFromWorkflow(t, origin, func(wb *refresh.Workflow, mb *model.Model) {
		mb.Element("elem-x").Name = "Customer (bob)"
		mb.Touch()
		runAndPublish(t, wb, mb)
	})

	ma.Element("elem-x").Name = "Customer (alice)"
	ma.Touch()

	rec := recordEvents(wa.Bus())
	res, err := wa.Run(ctx, ma)
	require.NoError(t, err, "declining conflict resolution is not an error")

	assert.False(t, res.Completed)
	assert.Equal(t, store.Aborted, res.Outcome.State)
	assert.Same(t, ma, res.Model)
	require.Len(t, res.Outcome.Conflicts, 1)
	assert.Equal(t, snapshot.ElementPath("BusinessActor", "elem-x"), res.Outcome.Conflicts[0].Path)
	assert.Contains(t, rec.types, events.HistoryChanged,
		"moved references still notify history listeners")

	// The working copy is back on the commit made just before the pull.
	head, err := alice.Head()
	require.NoError(t, err)
	assert.Equal(t, res.Outcome.PreMergeHead, head)

	dirty, err := alice.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	committed, err := alice.SnapshotAt(ctx, "HEAD")
	require.NoError(t, err)
	workFS, err := alice.WorkFS()
	require.NoError(t, err)
	working, err := snapshot.Read(workFS)
	require.NoError(t, err)
	assert.True(t, working.Equal(committed),
		"working copy must match the pre-pull commit bit for bit")

	data := committed[snapshot.ElementPath("BusinessActor", "elem-x")]
	assert.Contains(t, string(data), "Customer (alice)", "the local edit survives the abort")
}

func TestRunResolvesConflictsWithPolicy(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{Policy: merge.FavorRemote()})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	cloneFromWorkflow(t, origin, func(wb *refresh.Workflow, mb *model.Model) {
		mb.Element("elem-x").Name = "Customer (bob)"
		mb.Touch()
		runAndPublish(t, wb, mb)
	})

	ma.Element("elem-x").Name = "Customer (alice)"
	ma.Touch()

	res, err := wa.Run(ctx, ma)
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, store.MergedClean, res.Outcome.State)
	require.NotNil(t, res.Model.Element("elem-x"))
	assert.Equal(t, "Customer (bob)", res.Model.Element("elem-x").Name)
	assert.True(t, res.Restored.Empty())

	history, err := alice.History(ctx, store.HistoryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.True(t, history[0].IsMerge())
	assert.Contains(t, history[0].Message, "1 conflict resolved")
}

func TestRunKeepsModifiedObjectWhenRemoteDeletes(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	// The remote deletes the role, cascading to the relation that targets it.
	cloneFromWorkflow(t, origin, func(wb *refresh.Workflow, mb *model.Model) {
		require.NoError(t, mb.Delete("elem-y"))
		runAndPublish(t, wb, mb)
	})

	// The local user is editing that same role.
	ma.Element("elem-y").Name = "Buyer (edited)"
	ma.Touch()

	// The default policy declines, but a deletion-vs-modification conflict
	// needs no choice: the edited version survives.
	res, err := wa.Run(ctx, ma)
	require.NoError(t, err)

	require.True(t, res.Completed)
	assert.Equal(t, store.MergedClean, res.Outcome.State)
	require.Len(t, res.Outcome.Conflicts, 1)

	require.NotNil(t, res.Model.Element("elem-y"))
	assert.Equal(t, "Buyer (edited)", res.Model.Element("elem-y").Name)

	// The relation was deleted cleanly on the remote side and came back
	// through restoration.
	require.NotNil(t, res.Model.Relation("rel-1"))
	require.Len(t, res.Restored.Objects, 1)
	assert.Equal(t, "rel-1", res.Restored.Objects[0].ID)
}

func TestRunRestoresObjectsDeletedByRemote(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	// The remote deletes the actor, cascading to its relation.
	cloneFromWorkflow(t, origin, func(wb *refresh.Workflow, mb *model.Model) {
		require.NoError(t, mb.Delete("elem-x"))
		runAndPublish(t, wb, mb)
	})

	// The local user edits an unrelated element, then refreshes.
	ma.Element("elem-y").Name = "Buyer (senior)"
	ma.Touch()

	res, err := wa.Run(ctx, ma)
	require.NoError(t, err)
	require.True(t, res.Completed)

	assert.Equal(t, store.MergedClean, res.Outcome.State)
	assert.Empty(t, res.Outcome.Conflicts,
		"a deletion against an untouched object merges cleanly")

	// The deleted objects are back, exactly once each.
	require.NotNil(t, res.Model.Element("elem-x"))
	assert.Equal(t, "Customer", res.Model.Element("elem-x").Name)
	require.NotNil(t, res.Model.Relation("rel-1"))
	assert.Equal(t, "Buyer (senior)", res.Model.Element("elem-y").Name)
	assert.Len(t, res.Model.Elements(), 2)
	assert.Len(t, res.Model.Relations(), 1)

	require.Len(t, res.Restored.Objects, 2)
	assert.Equal(t, "elem-x", res.Restored.Objects[0].ID)
	assert.Equal(t, "rel-1", res.Restored.Objects[1].ID)

	// The restoration went into its own commit on top of the merge.
	history, err := alice.History(ctx, store.HistoryOptions{})
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "Restore objects removed by merge", history[0].Summary())
	assert.Contains(t, history[0].Message, `BusinessActor "Customer" (elem-x)`)
	assert.Contains(t, history[0].Message, "Assignment (rel-1)")
	assert.True(t, history[1].IsMerge())

	dirty, err := alice.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	// Refreshing again finds nothing new and adds nothing.
	res, err = wa.Run(ctx, res.Model)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, store.UpToDate, res.Outcome.State)
	assert.True(t, res.Restored.Empty())

	history, err = alice.History(ctx, store.HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, history, 4, "an up-to-date refresh must not add commits")
}

func TestRunCorruptRemoteSnapshotAborts(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	// A commit with a dangling relation arrives on the remote.
	bob := storetest.NewLinked(t, origin)
	_, err := bob.Pull(ctx, store.PullOptions{})
	require.NoError(t, err)
	corrupt := storetest.CommitFiles(t, bob, map[string]string{
		"relations/Assignment/rel-bad.json": `{"id":"rel-bad","kind":"Assignment","source":"ghost","target":"ghost"}`,
	}, "add dangling relation")
	require.NoError(t, bob.Push(ctx, store.PushOptions{}))

	res, err := wa.Run(ctx, ma)
	require.ErrorIs(t, err, snapshot.ErrCorruptSnapshot)

	assert.False(t, res.Completed)
	assert.Same(t, ma, res.Model, "the in-memory model stays untouched")
	require.NotNil(t, ma.Element("elem-x"))

	// The fetched commit is in place and nothing half-reloaded was staged.
	head, err := alice.Head()
	require.NoError(t, err)
	assert.Equal(t, corrupt, head)

	dirty, err := alice.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local := storetest.NewLinked(t, origin)
	w := newWorkflow(t, local, refresh.Options{})
	m := buildModel(t)

	var nestedErr error
	ran := false
	w.Bus().Subscribe(events.RefreshStarted, func(events.Event) {
		ran = true
		_, nestedErr = w.Run(ctx, m)
	})

	res, err := w.Run(ctx, m)
	require.NoError(t, err)
	assert.True(t, res.Completed)

	require.True(t, ran)
	assert.ErrorIs(t, nestedErr, refresh.ErrRefreshInProgress)
}

func TestPublishPushesLocalCommits(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local := storetest.NewLinked(t, origin)
	w := newWorkflow(t, local, refresh.Options{})
	m := buildModel(t)

	res, err := w.Run(ctx, m)
	require.NoError(t, err)
	require.True(t, res.Completed)

	ok, err := w.Publish(ctx, m)
	require.NoError(t, err)
	assert.True(t, ok)

	localHead, err := local.Head()
	require.NoError(t, err)
	originHead, err := origin.Head()
	require.NoError(t, err)
	assert.Equal(t, localHead, originHead)

	// Publishing again with nothing new is still a success.
	ok, err = w.Publish(ctx, m)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublishRejectedAsNonFastForwardThenRefreshAndRetry(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	cloneFromWorkflow(t, origin, func(wb *refresh.Workflow, mb *model.Model) {
		mb.Element("elem-x").Name = "Customer (bob)"
		mb.Touch()
		runAndPublish(t, wb, mb)
	})

	// Publishing without refreshing first is rejected.
	ma.Element("elem-y").Name = "Buyer (alice)"
	ma.Touch()
	ok, err := wa.Publish(ctx, ma)
	assert.False(t, ok)
	require.ErrorIs(t, err, store.ErrNotFastForward)

	// Refresh merges the remote commit, then the publish goes through.
	res, err := wa.Run(ctx, ma)
	require.NoError(t, err)
	require.True(t, res.Completed)
	assert.Equal(t, store.MergedClean, res.Outcome.State)
	assert.Equal(t, "Customer (bob)", res.Model.Element("elem-x").Name)
	assert.Equal(t, "Buyer (alice)", res.Model.Element("elem-y").Name)

	ok, err = wa.Publish(ctx, res.Model)
	require.NoError(t, err)
	assert.True(t, ok)

	localHead, err := alice.Head()
	require.NoError(t, err)
	originHead, err := origin.Head()
	require.NoError(t, err)
	assert.Equal(t, localHead, originHead)
}

func TestPublishDeclinedCommitStopsBeforePush(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)
	local := storetest.NewLinked(t, origin)

	prompt := &decliningPrompt{}
	w := newWorkflow(t, local, refresh.Options{CommitPrompt: prompt})

	ok, err := w.Publish(ctx, buildModel(t))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, prompt.asked)

	_, err = origin.Head()
	assert.ErrorIs(t, err, store.ErrUnbornHead, "nothing must have been pushed")
}

func TestRunRestoresEndpointWhenLocalDeletesAndRemoteModifiesRelation(t *testing.T) {
	ctx := context.Background()
	origin := storetest.NewStore(t)

	alice := storetest.NewLinked(t, origin)
	wa := newWorkflow(t, alice, refresh.Options{})
	ma := buildModel(t)
	runAndPublish(t, wa, ma)

	// The remote renames the relation.
	cloneFromWorkflow(t, origin, func(wb *refresh.Workflow, mb *model.Model) {
		mb.Relation("rel-1").Name = "fills (bob)"
		mb.Touch()
		runAndPublish(t, wb, mb)
	})

	// The local user deletes the role, cascading to that same relation.
	require.NoError(t, ma.Delete("elem-y"))

	res, err := wa.Run(ctx, ma)
	require.NoError(t, err)
	require.True(t, res.Completed)

	assert.Equal(t, store.MergedClean, res.Outcome.State)
	require.Len(t, res.Outcome.Conflicts, 1)

	// The renamed relation survives the deletion, and its endpoint comes
	// back with it even though the endpoint's own deletion merged without
	// a conflict.
	require.NotNil(t, res.Model.Relation("rel-1"))
	assert.Equal(t, "fills (bob)", res.Model.Relation("rel-1").Name)
	require.NotNil(t, res.Model.Element("elem-y"))

	require.Len(t, res.Restored.Objects, 1)
	assert.Equal(t, "elem-y", res.Restored.Objects[0].ID)
	assert.Equal(t, "BusinessRole", res.Restored.Objects[0].Kind)

	// The endpoint went into the merge commit itself, so nothing is left
	// to commit and the working copy loads cleanly from here on.
	dirty, err := alice.HasUncommittedChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	res, err = wa.Run(ctx, res.Model)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, store.UpToDate, res.Outcome.State)
}
