// Package refresh orchestrates the synchronization workflow that keeps an
// in-memory model, its working copy and the shared remote in agreement:
// export, local commit, pull, conflict resolution, restoration of objects
// the merge lost, reload and follow-up commit.
//
// The workflow is an explicit sequence of steps. Every step ends in one of
// three ways: it succeeds and the next step runs, the user declines at a
// defined checkpoint and the run stops without an error, or it fails and
// the error aborts the remaining steps. The working copy is never left
// mid-merge: conflicted pulls either end in a merge commit or in a reset to
// the pre-pull commit.
package refresh

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"

	"github.com/architectureofthings/archi-modelrepository-plugin/events"
	"github.com/architectureofthings/archi-modelrepository-plugin/merge"
	"github.com/architectureofthings/archi-modelrepository-plugin/model"
	"github.com/architectureofthings/archi-modelrepository-plugin/snapshot"
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// ErrRefreshInProgress means a refresh or publish is already running
// against this working copy. The working copy is an exclusively held
// resource for the duration of one run.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Options configures a Workflow.
type Options struct {
	// Store is the working copy the workflow operates on. Required.
	Store *store.Store

	// Workdir is the display path used in published events.
	Workdir string

	// Bus receives HistoryChanged, ModelReloaded and lifecycle events.
	// Defaults to a private bus nobody listens to.
	Bus *events.Bus

	// Persister guards against exporting unsaved edits. Defaults to
	// AutoSave.
	Persister Persister

	// CommitPrompt confirms local commits. Defaults to AutoCommit.
	CommitPrompt CommitPrompt

	// Credentials supplies remote credentials. Defaults to NoCredentials,
	// which silently aborts refreshes against HTTP remotes.
	Credentials CredentialsSource

	// Proxy resolves proxy settings per remote. Defaults to a direct
	// connection.
	Proxy ProxySource

	// Policy resolves merge conflicts. Defaults to declining, which
	// aborts conflicted merges back to the pre-pull commit.
	Policy merge.Policy

	// Progress receives phase updates. Defaults to discarding them.
	Progress ProgressTracker

	// Logger receives operational logging. Nil means no logging.
	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Bus == nil {
		o.Bus = events.NewBus()
	}
	if o.Persister == nil {
		o.Persister = AutoSave{}
	}
	if o.CommitPrompt == nil {
		o.CommitPrompt = AutoCommit("")
	}
	if o.Credentials == nil {
		o.Credentials = NoCredentials{}
	}
	if o.Proxy == nil {
		o.Proxy = DirectConnection{}
	}
	if o.Policy == nil {
		o.Policy = merge.Decline()
	}
	if o.Progress == nil {
		o.Progress = NopProgress{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Result reports how a refresh ended.
type Result struct {
	// Completed is true when the refresh ran to the end and the model is
	// current. False means the user declined or cancelled at a defined
	// checkpoint; the working copy is at its last-known-good commit.
	Completed bool

	// Model is the current model after the run: the reloaded one when the
	// refresh brought changes, the original otherwise.
	Model *model.Model

	// Outcome describes what the pull found.
	Outcome store.MergeOutcome

	// Restored lists objects brought back after the merge dropped them.
	Restored Report
}

// Workflow runs refreshes against one working copy. Create it with New and
// reuse it; concurrent runs against the same Workflow are rejected.
type Workflow struct {
	store    *store.Store
	workdir  string
	bus      *events.Bus
	persist  Persister
	prompt   CommitPrompt
	creds    CredentialsSource
	proxy    ProxySource
	policy   merge.Policy
	progress ProgressTracker
	log      *zap.Logger

	busy atomic.Bool
}

// New creates a Workflow from the given options.
func New(opts Options) (*Workflow, error) {
	if opts.Store == nil {
		return nil, store.WrapError(store.ErrInvalidOptions, "workflow requires a store")
	}
	opts.applyDefaults()

	return &Workflow{
		store:    opts.Store,
		workdir:  opts.Workdir,
		bus:      opts.Bus,
		persist:  opts.Persister,
		prompt:   opts.CommitPrompt,
		creds:    opts.Credentials,
		proxy:    opts.Proxy,
		policy:   opts.Policy,
		progress: opts.Progress,
		log:      opts.Logger,
	}, nil
}

// Bus returns the event bus the workflow publishes to.
func (w *Workflow) Bus() *events.Bus {
	return w.bus
}

// transition is the typed result of one workflow step.
type transition int8

const (
	// next proceeds to the following step.
	next transition = iota

	// declined stops the run at a user checkpoint; not an error.
	declined

	// finished jumps past the remaining steps to the final notification.
	finished
)

// run carries state across the steps of one refresh.
type run struct {
	model    *model.Model
	remote   string
	creds    *store.Credentials
	proxy    *transport.ProxyOptions
	outcome  store.MergeOutcome
	reloaded *model.Model
	report   Report
}

type step struct {
	name string
	fn   func(context.Context, *run) (transition, error)
}

// Run executes the refresh workflow for the given model. It returns the
// result and an error only for genuine failures; user declines end with
// Completed=false and a nil error.
func (w *Workflow) Run(ctx context.Context, m *model.Model) (Result, error) {
	if m == nil {
		return Result{}, store.WrapError(store.ErrInvalidOptions, "refresh requires a model")
	}
	if !w.busy.CompareAndSwap(false, true) {
		return Result{Model: m}, ErrRefreshInProgress
	}
	defer w.busy.Store(false)

	w.bus.Publish(events.Event{Type: events.RefreshStarted, Workdir: w.workdir, ModelID: m.ID})
	defer w.bus.Publish(events.Event{Type: events.RefreshFinished, Workdir: w.workdir, ModelID: m.ID})

	steps := []step{
		{name: "save model", fn: w.ensureSaved},
		{name: "export model", fn: w.export},
		{name: "commit changes", fn: w.commitLocal},
		{name: "authenticate", fn: w.authenticate},
		{name: "configure proxy", fn: w.configureProxy},
		{name: "pull", fn: w.pull},
		{name: "resolve conflicts", fn: w.resolve},
		{name: "reload model", fn: w.reload},
		{name: "commit restored objects", fn: w.commitRestored},
	}

	r := &run{model: m}
	t, err := w.execute(ctx, r, steps)
	if err != nil {
		return Result{Model: m, Outcome: r.outcome, Restored: r.report}, err
	}
	if t == declined {
		return Result{Model: m, Outcome: r.outcome, Restored: r.report}, nil
	}

	current := r.model
	if r.reloaded != nil {
		current = r.reloaded
	}

	w.bus.PublishHistoryChanged(w.workdir, current.ID)
	w.progress.Complete()
	w.log.Info("refresh completed",
		zap.String("state", r.outcome.State.String()),
		zap.Int("restored", len(r.report.Objects)))

	return Result{Completed: true, Model: current, Outcome: r.outcome, Restored: r.report}, nil
}

// execute runs steps in order until one declines, finishes or fails.
func (w *Workflow) execute(ctx context.Context, r *run, steps []step) (transition, error) {
	for _, s := range steps {
		w.progress.Begin(s.name)

		t, err := s.fn(ctx, r)
		if err != nil {
			w.progress.Error(err)
			w.log.Error("workflow aborted", zap.String("step", s.name), zap.Error(err))
			return next, err
		}

		switch t {
		case declined:
			w.progress.Complete()
			w.log.Info("workflow stopped by user", zap.String("step", s.name))
			return declined, nil
		case finished:
			return next, nil
		case next:
		}
	}

	return next, nil
}

// ensureSaved asks the persister to save a dirty model before anything is
// exported.
func (w *Workflow) ensureSaved(ctx context.Context, r *run) (transition, error) {
	if !w.persist.IsDirty(r.model) {
		return next, nil
	}

	ok, err := w.persist.Save(ctx, r.model)
	if err != nil {
		return next, err
	}
	if !ok {
		return declined, nil
	}

	return next, nil
}

// export serializes the model into the working copy.
func (w *Workflow) export(ctx context.Context, r *run) (transition, error) {
	snap, err := snapshot.FromModel(r.model)
	if err != nil {
		return next, err
	}

	if err := w.store.ExportSnapshot(ctx, snap); err != nil {
		return next, err
	}

	return next, nil
}

// commitLocal commits pending changes after confirmation.
func (w *Workflow) commitLocal(ctx context.Context, r *run) (transition, error) {
	dirty, err := w.store.HasUncommittedChanges(ctx)
	if err != nil {
		return next, err
	}
	if !dirty {
		return next, nil
	}

	msg, ok, err := w.prompt.ConfirmCommit(ctx, r.model)
	if err != nil {
		return next, err
	}
	if !ok {
		return declined, nil
	}

	if _, err := w.store.Commit(ctx, msg, store.CommitOpts{}); err != nil {
		return next, err
	}

	// The commit now carries the deletions; the ledger starts over.
	r.model.ClearTombstones()
	w.bus.PublishHistoryChanged(w.workdir, r.model.ID)

	return next, nil
}

// authenticate resolves the remote URL and obtains credentials for it.
// A cancelled credentials prompt stops the run silently.
func (w *Workflow) authenticate(ctx context.Context, r *run) (transition, error) {
	url, err := w.store.RemoteURL()
	if err != nil {
		return next, err
	}
	r.remote = url

	if !needsCredentials(url) {
		return next, nil
	}

	creds, err := w.creds.Credentials(ctx, url)
	if err != nil {
		return next, err
	}
	if creds == nil {
		return declined, nil
	}
	r.creds = creds

	return next, nil
}

// configureProxy resolves proxy settings for the remote.
func (w *Workflow) configureProxy(ctx context.Context, r *run) (transition, error) {
	proxy, err := w.proxy.Proxy(ctx, r.remote)
	if err != nil {
		return next, err
	}
	r.proxy = proxy

	return next, nil
}

// pull fetches and merges the remote state. An up-to-date outcome skips the
// reload entirely.
func (w *Workflow) pull(ctx context.Context, r *run) (transition, error) {
	outcome, err := w.store.Pull(ctx, store.PullOptions{Credentials: r.creds, Proxy: r.proxy})
	if err != nil {
		return next, err
	}
	r.outcome = outcome

	if outcome.State == store.UpToDate {
		return finished, nil
	}

	return next, nil
}

// resolve drives conflict resolution through the configured policy. A
// declined resolution resets to the pre-merge commit; the moved references
// still warrant a history notification.
func (w *Workflow) resolve(ctx context.Context, r *run) (transition, error) {
	if r.outcome.State != store.Conflicted {
		return next, nil
	}

	resolver := merge.NewResolver(w.store, w.log)
	_, resolved, err := resolver.Run(ctx, &r.outcome, w.policy)
	if err != nil {
		return next, err
	}
	if !resolved {
		w.bus.PublishHistoryChanged(w.workdir, r.model.ID)
		return declined, nil
	}

	return next, nil
}

// reload rebuilds the model from the merged snapshot, restoring objects the
// merge dropped. The reload is validated in memory before any file is
// touched, so a corrupt snapshot aborts with the merged commit intact and
// nothing staged.
func (w *Workflow) reload(ctx context.Context, r *run) (transition, error) {
	merged, err := w.store.SnapshotAt(ctx, "HEAD")
	if err != nil {
		return next, err
	}

	var prior snapshot.Snapshot
	if r.outcome.PreMergeHead != "" {
		prior, err = w.store.SnapshotAt(ctx, r.outcome.PreMergeHead)
		if err != nil {
			return next, err
		}
	}

	files, report := Reconcile(prior, merged, r.model.Tombstones())

	// Endpoints the merge repair already committed are restorations too;
	// they belong in the same report. Reconcile cannot see them: they are
	// present in the merged snapshot and often absent from the prior one.
	report.Objects = append(report.Objects, repairedObjects(merged, r.outcome.Repaired)...)

	combined := merged
	if len(files) > 0 {
		combined = merged.Clone()
		for p, data := range files {
			combined[p] = data
		}
	}

	reloaded, err := snapshot.ToModel(combined)
	if err != nil {
		return next, err
	}

	if len(files) > 0 {
		if err := w.store.RestoreFiles(ctx, files); err != nil {
			return next, err
		}
		w.log.Info("restored objects dropped by merge", zap.Int("objects", len(report.Objects)))
	}

	r.reloaded = reloaded
	r.report = report
	w.bus.PublishModelReloaded(w.workdir, reloaded.ID)

	return next, nil
}

// commitRestored commits the files the reconciler brought back, if any.
func (w *Workflow) commitRestored(ctx context.Context, r *run) (transition, error) {
	if r.report.Empty() {
		return next, nil
	}

	dirty, err := w.store.HasUncommittedChanges(ctx)
	if err != nil {
		return next, err
	}
	if !dirty {
		return next, nil
	}

	if _, err := w.store.Commit(ctx, restoreCommitMessage(&r.report), store.CommitOpts{}); err != nil {
		return next, err
	}

	return next, nil
}

func restoreCommitMessage(report *Report) string {
	return "Restore objects removed by merge\n\n" + report.String()
}

// needsCredentials reports whether the remote URL is one that carries
// authentication. File and custom-scheme remotes do not.
func needsCredentials(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
