package refresh

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/architectureofthings/archi-modelrepository-plugin/model"
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// Persister owns the relationship between the in-memory model and whatever
// the user considers "saved". The workflow never exports a model with
// unsaved edits; it asks the persister to save first.
type Persister interface {
	// IsDirty reports whether the model has edits not yet saved.
	IsDirty(m *model.Model) bool

	// Save persists the model. Returning ok=false means the user declined,
	// which aborts the refresh without being an error.
	Save(ctx context.Context, m *model.Model) (ok bool, err error)
}

// CommitPrompt confirms committing local changes before a pull. Interactive
// implementations show the user what is pending; automated ones answer with
// a canned message.
type CommitPrompt interface {
	// ConfirmCommit returns the commit message to use. Returning ok=false
	// declines the commit and aborts the refresh without being an error.
	ConfirmCommit(ctx context.Context, m *model.Model) (message string, ok bool, err error)
}

// CredentialsSource supplies credentials for a remote. Returning nil
// credentials with a nil error means the user cancelled; the workflow
// aborts silently.
type CredentialsSource interface {
	Credentials(ctx context.Context, remoteURL string) (*store.Credentials, error)
}

// ProxySource resolves proxy settings for a remote URL. A nil result means
// a direct connection.
type ProxySource interface {
	Proxy(ctx context.Context, remoteURL string) (*transport.ProxyOptions, error)
}

// ProgressTracker receives phase updates while a workflow runs. Progress is
// indeterminate; phases are named, not measured.
type ProgressTracker interface {
	// Begin is called when a named phase starts.
	Begin(phase string)

	// Complete is called when the workflow ends without error.
	Complete()

	// Error is called when the workflow fails.
	Error(err error)
}

// NopProgress discards all progress updates.
type NopProgress struct{}

// Begin implements ProgressTracker.
func (NopProgress) Begin(string) {}

// Complete implements ProgressTracker.
func (NopProgress) Complete() {}

// Error implements ProgressTracker.
func (NopProgress) Error(error) {}

// StaticCredentials is a CredentialsSource that always answers with the
// same credentials, for configuration-backed and test use.
type StaticCredentials store.Credentials

// Credentials implements CredentialsSource.
func (c StaticCredentials) Credentials(context.Context, string) (*store.Credentials, error) {
	creds := store.Credentials(c)
	return &creds, nil
}

// NoCredentials is a CredentialsSource that answers with none, aborting any
// workflow that needs them. It models "user cancelled the prompt".
type NoCredentials struct{}

// Credentials implements CredentialsSource.
func (NoCredentials) Credentials(context.Context, string) (*store.Credentials, error) {
	return nil, nil
}

// DirectConnection is a ProxySource that never configures a proxy.
type DirectConnection struct{}

// Proxy implements ProxySource.
func (DirectConnection) Proxy(context.Context, string) (*transport.ProxyOptions, error) {
	return nil, nil
}

// AutoSave is a Persister for models that have no external editor: saving
// is a no-op and the model is dirty only when it says so itself.
type AutoSave struct{}

// IsDirty implements Persister.
func (AutoSave) IsDirty(m *model.Model) bool { return m.Dirty() }

// Save implements Persister.
func (AutoSave) Save(_ context.Context, m *model.Model) (bool, error) {
	m.MarkSaved()
	return true, nil
}

// AutoCommit is a CommitPrompt that always accepts with a fixed message.
type AutoCommit string

// ConfirmCommit implements CommitPrompt.
func (a AutoCommit) ConfirmCommit(context.Context, *model.Model) (string, bool, error) {
	msg := string(a)
	if msg == "" {
		msg = "Export model changes"
	}
	return msg, true, nil
}
