package merge

import (
	"context"
)

// Side selects which version of a conflicting path survives.
type Side int8

const (
	// KeepLocal keeps the working copy's version.
	KeepLocal Side = iota

	// KeepRemote keeps the fetched version.
	KeepRemote
)

// String returns the side name.
func (s Side) String() string {
	if s == KeepRemote {
		return "remote"
	}
	return "local"
}

// Choice is one resolution decision, keyed by conflicting path.
type Choice struct {
	Path string
	Keep Side
}

// Policy supplies resolution choices for a set of classified conflicts.
// Interactive implementations present the conflicts to the user; automated
// ones answer directly. Returning ErrDeclined means the user walked away
// from the merge, which aborts it without being a failure.
type Policy interface {
	Resolve(ctx context.Context, conflicts []Conflict) ([]Choice, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, conflicts []Conflict) ([]Choice, error)

// Resolve implements Policy.
func (f PolicyFunc) Resolve(ctx context.Context, conflicts []Conflict) ([]Choice, error) {
	return f(ctx, conflicts)
}

// FavorLocal answers every conflict with the working copy's version.
func FavorLocal() Policy {
	return favorSide(KeepLocal)
}

// FavorRemote answers every conflict with the fetched version.
func FavorRemote() Policy {
	return favorSide(KeepRemote)
}

func favorSide(side Side) Policy {
	return PolicyFunc(func(_ context.Context, conflicts []Conflict) ([]Choice, error) {
		choices := make([]Choice, 0, len(conflicts))
		for _, c := range conflicts {
			if !c.NeedsChoice() {
				continue
			}
			choices = append(choices, Choice{Path: c.Path, Keep: side})
		}
		return choices, nil
	})
}

// Decline is a policy that always declines resolution. It exists for tests
// and for "ask later" flows.
func Decline() Policy {
	return PolicyFunc(func(context.Context, []Conflict) ([]Choice, error) {
		return nil, ErrDeclined
	})
}
