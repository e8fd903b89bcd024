// Package merge turns a conflicted pull outcome into either a merged commit
// or a clean abort. It classifies each conflicting path, asks a pluggable
// policy how to resolve the classes that genuinely have two answers, and
// enforces the one rule that is not up to policy: a deletion never wins over
// a modification, because losing someone's edits silently is worse than
// keeping an object the other side removed.
package merge

import (
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

// Classification names the shape of a single path conflict.
type Classification int8

const (
	// DeletionVsModification: one side deleted the object, the other
	// changed it. Resolved without consulting policy; the modified side
	// survives.
	DeletionVsModification Classification = iota

	// ModificationVsModification: both sides changed the object
	// differently.
	ModificationVsModification

	// AdditionVsAddition: both sides created the same path with different
	// content.
	AdditionVsAddition
)

// String returns the classification name used in reports and logs.
func (c Classification) String() string {
	switch c {
	case DeletionVsModification:
		return "deletion-vs-modification"
	case ModificationVsModification:
		return "modification-vs-modification"
	case AdditionVsAddition:
		return "addition-vs-addition"
	default:
		return "unknown"
	}
}

// Classify determines the classification of one conflict entry.
func Classify(e store.ConflictEntry) Classification {
	if e.Base == nil {
		return AdditionVsAddition
	}
	if e.Ours == nil || e.Theirs == nil {
		return DeletionVsModification
	}
	return ModificationVsModification
}

// Conflict pairs a conflicting path with its classification.
type Conflict struct {
	store.ConflictEntry

	Classification Classification
}

// String renders the conflict for user display.
func (c Conflict) String() string {
	subject := c.ObjectID
	if subject == "" {
		subject = c.Path
	}
	return subject + " (" + c.Classification.String() + ")"
}

// NeedsChoice reports whether resolving this conflict requires a policy
// decision. Deletion-vs-modification conflicts resolve themselves.
func (c Conflict) NeedsChoice() bool {
	return c.Classification != DeletionVsModification
}

// Conflicts classifies every conflicting path of an outcome, in path order.
func Conflicts(outcome *store.MergeOutcome) []Conflict {
	if outcome == nil || len(outcome.Conflicts) == 0 {
		return nil
	}

	conflicts := make([]Conflict, 0, len(outcome.Conflicts))
	for _, entry := range outcome.Conflicts {
		conflicts = append(conflicts, Conflict{
			ConflictEntry:  entry,
			Classification: Classify(entry),
		})
	}

	return conflicts
}
