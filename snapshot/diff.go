package snapshot

import (
	"bytes"
	"sort"
)

// ChangeType qualifies how a path differs between two snapshots.
type ChangeType int

const (
	// ChangeAdd marks a path present only in the newer snapshot.
	ChangeAdd ChangeType = iota

	// ChangeDelete marks a path present only in the older snapshot.
	ChangeDelete

	// ChangeUpdate marks a path whose content differs between the two.
	ChangeUpdate
)

// String returns the single-letter marker used in change listings.
func (t ChangeType) String() string {
	switch t {
	case ChangeAdd:
		return "A"
	case ChangeDelete:
		return "D"
	case ChangeUpdate:
		return "U"
	default:
		return "?"
	}
}

// Change records one path-level difference between two snapshots.
type Change struct {
	// Type says whether the path was added, deleted or updated.
	Type ChangeType

	// Path is the snapshot-relative file path.
	Path string

	// ObjectID is the model object the path belongs to; empty for the
	// manifest.
	ObjectID string
}

// Diff compares two snapshots and returns the per-path changes from old to
// new, sorted by path. Identical content yields no change.
func Diff(old, new Snapshot) []Change {
	var changes []Change

	for p, oldData := range old {
		newData, ok := new[p]
		if !ok {
			changes = append(changes, newChange(ChangeDelete, p))
			continue
		}
		if !bytes.Equal(oldData, newData) {
			changes = append(changes, newChange(ChangeUpdate, p))
		}
	}

	for p := range new {
		if _, ok := old[p]; !ok {
			changes = append(changes, newChange(ChangeAdd, p))
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	return changes
}

func newChange(t ChangeType, p string) Change {
	id, _ := ObjectIDFromPath(p)
	return Change{Type: t, Path: p, ObjectID: id}
}
