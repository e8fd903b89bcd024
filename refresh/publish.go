package refresh

import (
	"context"

	"github.com/architectureofthings/archi-modelrepository-plugin/model"
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// Publish exports and commits local changes, then pushes the current branch
// to the remote. It shares the refresh checkpoints: a declined save or
// commit, or a cancelled credentials prompt, stops the run with
// completed=false and no error. A push rejected as non-fast-forward
// surfaces store.ErrNotFastForward; refresh first, then publish again.
func (w *Workflow) Publish(ctx context.Context, m *model.Model) (bool, error) {
	if m == nil {
		return false, store.WrapError(store.ErrInvalidOptions, "publish requires a model")
	}
	if !w.busy.CompareAndSwap(false, true) {
		return false, ErrRefreshInProgress
	}
	defer w.busy.Store(false)

	steps := []step{
		{name: "save model", fn: w.ensureSaved},
		{name: "export model", fn: w.export},
		{name: "commit changes", fn: w.commitLocal},
		{name: "authenticate", fn: w.authenticate},
		{name: "configure proxy", fn: w.configureProxy},
		{name: "push", fn: w.push},
	}

	r := &run{model: m}
	t, err := w.execute(ctx, r, steps)
	if err != nil {
		return false, err
	}
	if t == declined {
		return false, nil
	}

	w.progress.Complete()
	w.log.Info("publish completed")

	return true, nil
}

// push publishes the current branch.
func (w *Workflow) push(ctx context.Context, r *run) (transition, error) {
	if err := w.store.Push(ctx, store.PushOptions{Credentials: r.creds, Proxy: r.proxy}); err != nil {
		return next, err
	}
	return next, nil
}
